package assemble

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/nao1215/corpuscrawl/internal/model"
)

// Classification thresholds.
const (
	// PublicDomainYear is the first year no longer treated as safe by age.
	PublicDomainYear = 1930

	// DefaultModernThreshold is the first year treated as high risk.
	DefaultModernThreshold = 1990
)

// Classifier assigns a RiskAssessment to record metadata.
// Rules are evaluated in a fixed order and the first match wins:
//
//  1. translator contains a blocked fragment: HIGH_RISK
//  2. translator contains a safe fragment: SAFE
//  3. year before PublicDomainYear: SAFE
//  4. year at or after the modern threshold: HIGH_RISK
//  5. otherwise: REVIEW
//
// Fragments match case-insensitively. An empty or "Unknown" translator
// never matches a list, and a missing year skips rules 3 and 4.
type Classifier struct {
	safe      []string
	blocked   []string
	threshold int
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithSafeList sets the safe translator fragments.
func WithSafeList(fragments []string) ClassifierOption {
	return func(c *Classifier) {
		c.safe = normalizeFragments(fragments)
	}
}

// WithBlockedList sets the blocked translator fragments.
func WithBlockedList(fragments []string) ClassifierOption {
	return func(c *Classifier) {
		c.blocked = normalizeFragments(fragments)
	}
}

// WithModernThreshold sets the first year classified HIGH_RISK. Values at
// or below PublicDomainYear are ignored.
func WithModernThreshold(year int) ClassifierOption {
	return func(c *Classifier) {
		if year > PublicDomainYear {
			c.threshold = year
		}
	}
}

// NewClassifier creates a Classifier. Without options both lists are empty.
func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{threshold: DefaultModernThreshold}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Assess classifies meta. It never modifies its input.
func (c *Classifier) Assess(meta model.Metadata) model.RiskAssessment {
	translator := strings.TrimSpace(meta.Translator)
	if strings.EqualFold(translator, "unknown") {
		translator = ""
	}
	year, hasYear := ExtractYear(meta.Date, translator)

	result := func(status model.RiskStatus, reason string) model.RiskAssessment {
		a := model.RiskAssessment{Status: status, Reason: reason}
		if hasYear {
			a.Year = year
		}
		return a
	}

	if translator != "" {
		lower := strings.ToLower(translator)
		if containsAny(lower, c.blocked) {
			return result(model.RiskHigh, "Blocked Translator: "+translator)
		}
		if containsAny(lower, c.safe) {
			return result(model.RiskSafe, "Safe Translator: "+translator)
		}
	}

	if hasYear {
		if year < PublicDomainYear {
			return result(model.RiskSafe, fmt.Sprintf("Pre-%d (%d)", PublicDomainYear, year))
		}
		if year >= c.threshold {
			return result(model.RiskHigh, fmt.Sprintf("Post-%d (%d)", c.threshold-1, year))
		}
	}
	return result(model.RiskReview, "No clear safe criteria")
}

// Threshold returns the first year classified HIGH_RISK.
func (c *Classifier) Threshold() int {
	return c.threshold
}

var yearPattern = regexp.MustCompile(`\b(1\d{3}|20\d{2})\b`)

// ExtractYear returns the largest four-digit year in [1000, 2099] found in
// any of fields. A text naming both an ancient date and a modern edition
// is judged on the edition.
func ExtractYear(fields ...string) (int, bool) {
	best, found := 0, false
	for _, f := range fields {
		for _, m := range yearPattern.FindAllString(f, -1) {
			y, err := strconv.Atoi(m)
			if err != nil {
				continue
			}
			if !found || y > best {
				best, found = y, true
			}
		}
	}
	return best, found
}

func normalizeFragments(fragments []string) []string {
	out := make([]string, 0, len(fragments))
	for _, f := range fragments {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func containsAny(s string, fragments []string) bool {
	for _, f := range fragments {
		if strings.Contains(s, f) {
			return true
		}
	}
	return false
}
