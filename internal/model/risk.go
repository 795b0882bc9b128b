package model

// RiskStatus is the triage verdict for a record.
// It is a heuristic, not a legal determination.
type RiskStatus int

const (
	// RiskSafe means the metadata matched a rule that marks the work as
	// very likely free to use.
	RiskSafe RiskStatus = iota

	// RiskReview means no rule decided; a human should look.
	RiskReview

	// RiskHigh means the metadata matched a rule that marks the work as
	// likely still under copyright.
	RiskHigh
)

// String returns the status as printed in the audit report.
func (s RiskStatus) String() string {
	switch s {
	case RiskSafe:
		return "SAFE"
	case RiskReview:
		return "REVIEW"
	case RiskHigh:
		return "HIGH_RISK"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s RiskStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// RiskAssessment is the classifier's output for one record.
type RiskAssessment struct {
	Status RiskStatus `json:"status"`
	Reason string     `json:"reason"`

	// Year is the year the decision was based on, or 0 when unknown.
	Year int `json:"year,omitempty"`
}
