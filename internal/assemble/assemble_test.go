package assemble

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/corpuscrawl/internal/model"
)

// TestMerge tests that catalog metadata wins and extraction fills gaps.
func TestMerge(t *testing.T) {
	t.Parallel()

	ease := 55.0
	catalog := model.Metadata{
		Title:       "The Republic",
		Author:      "Plato",
		Subjects:    []string{"Philosophy"},
		ReadingEase: &ease,
	}
	words := 99
	extracted := model.Metadata{
		Title:           "REPUBLIC",
		Translator:      "Benjamin Jowett",
		Date:            "1871",
		Subjects:        []string{"Politics"},
		SourceWordCount: &words,
	}

	got := Merge(catalog, extracted)

	if got.Title != "The Republic" {
		t.Errorf("expected catalog title to win, got %q", got.Title)
	}
	if got.Translator != "Benjamin Jowett" || got.Date != "1871" {
		t.Errorf("expected extracted fields to fill gaps, got %q / %q", got.Translator, got.Date)
	}
	if strings.Join(got.Subjects, ",") != "Philosophy" {
		t.Errorf("expected catalog subjects, got %v", got.Subjects)
	}
	if got.ReadingEase != &ease {
		t.Error("expected catalog reading ease")
	}
	if got.SourceWordCount == nil || *got.SourceWordCount != 99 {
		t.Error("expected extracted word count to fill the gap")
	}
}

// TestTitleBlockList tests case-insensitive exact matching.
func TestTitleBlockList(t *testing.T) {
	t.Parallel()

	b := NewTitleBlockList("The Republic", "  Meditations ", "", "STRASSE")

	tests := []struct {
		title string
		want  bool
	}{
		{"the republic", true},
		{"THE REPUBLIC", true},
		{"Meditations", true},
		{"Republic", false},
		{"The Republic of Plato", false},
		{"straße", true},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			t.Parallel()
			if got := b.Blocked(tt.title); got != tt.want {
				t.Errorf("Blocked(%q) = %v, want %v", tt.title, got, tt.want)
			}
		})
	}

	if b.Len() != 3 {
		t.Errorf("expected 3 titles, got %d", b.Len())
	}

	var nilList *TitleBlockList
	if nilList.Blocked("anything") {
		t.Error("expected nil list to block nothing")
	}
}

// TestClassifier_RulePriority tests the ordered rule chain.
func TestClassifier_RulePriority(t *testing.T) {
	t.Parallel()

	c := NewClassifier(
		WithBlockedList([]string{"Blocked", " "}),
		WithSafeList([]string{"jowett", "Blocked Safe"}),
	)

	tests := []struct {
		name       string
		meta       model.Metadata
		wantStatus model.RiskStatus
		wantReason string
		wantYear   int
	}{
		{
			name:       "blocked translator outranks pre-1930 year",
			meta:       model.Metadata{Translator: "Jane Blocked", Date: "1800"},
			wantStatus: model.RiskHigh,
			wantReason: "Blocked Translator: Jane Blocked",
			wantYear:   1800,
		},
		{
			name:       "blocked outranks safe",
			meta:       model.Metadata{Translator: "Blocked Safe"},
			wantStatus: model.RiskHigh,
			wantReason: "Blocked Translator: Blocked Safe",
		},
		{
			name:       "safe translator outranks modern year",
			meta:       model.Metadata{Translator: "Benjamin Jowett", Date: "2004 reprint"},
			wantStatus: model.RiskSafe,
			wantReason: "Safe Translator: Benjamin Jowett",
			wantYear:   2004,
		},
		{
			name:       "pre-1930",
			meta:       model.Metadata{Translator: "A. Nobody", Date: "1896"},
			wantStatus: model.RiskSafe,
			wantReason: "Pre-1930 (1896)",
			wantYear:   1896,
		},
		{
			name:       "modern year",
			meta:       model.Metadata{Date: "1995"},
			wantStatus: model.RiskHigh,
			wantReason: "Post-1989 (1995)",
			wantYear:   1995,
		},
		{
			name:       "between thresholds needs review",
			meta:       model.Metadata{Date: "1950"},
			wantStatus: model.RiskReview,
			wantReason: "No clear safe criteria",
			wantYear:   1950,
		},
		{
			name:       "max year wins",
			meta:       model.Metadata{Date: "360 B.C.; published 1962; written 1910"},
			wantStatus: model.RiskReview,
			wantReason: "No clear safe criteria",
			wantYear:   1962,
		},
		{
			name:       "unknown fields",
			meta:       model.Metadata{Translator: "Unknown", Date: "Unknown"},
			wantStatus: model.RiskReview,
			wantReason: "No clear safe criteria",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := c.Assess(tt.meta)
			if got.Status != tt.wantStatus || got.Reason != tt.wantReason {
				t.Errorf("expected (%v, %q), got (%v, %q)", tt.wantStatus, tt.wantReason, got.Status, got.Reason)
			}
			if got.Year != tt.wantYear {
				t.Errorf("expected year %d, got %d", tt.wantYear, got.Year)
			}
		})
	}
}

// TestClassifier_Threshold tests a custom modern threshold.
func TestClassifier_Threshold(t *testing.T) {
	t.Parallel()

	c := NewClassifier(WithModernThreshold(1960))
	got := c.Assess(model.Metadata{Date: "1962"})
	if got.Status != model.RiskHigh || got.Reason != "Post-1959 (1962)" {
		t.Errorf("unexpected assessment %+v", got)
	}

	if NewClassifier(WithModernThreshold(1900)).Threshold() != DefaultModernThreshold {
		t.Error("expected threshold overlapping the pre-1930 rule to be ignored")
	}
}

// TestExtractYear tests max-wins year extraction.
func TestExtractYear(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		fields []string
		want   int
		wantOK bool
	}{
		{"ancient and modern", []string{"360 B.C.", "published 1962"}, 1962, true},
		{"max across fields", []string{"1871", "revised 1892"}, 1892, true},
		{"embedded digits ignored", []string{"ISBN 9781234567890"}, 0, false},
		{"out of range", []string{"year 2150 or 0999"}, 0, false},
		{"none", []string{"", "Unknown"}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ExtractYear(tt.fields...)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ExtractYear(%q) = (%d, %v), want (%d, %v)", tt.fields, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

// TestLoadClassifier tests list loading and degradation.
func TestLoadClassifier(t *testing.T) {
	t.Parallel()

	t.Run("missing lists degrade to empty with a warning", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))

		c, err := LoadClassifier(filepath.Join(dir, "safe.json"), filepath.Join(dir, "blocked.json"), 1990, logger)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := c.Assess(model.Metadata{Translator: "Anyone"}); got.Status != model.RiskReview {
			t.Errorf("expected REVIEW with empty lists, got %v", got.Status)
		}
		if strings.Count(buf.String(), "translator list not found") != 2 {
			t.Errorf("expected two warnings, got: %s", buf.String())
		}
	})

	t.Run("lists are applied", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		blocked := filepath.Join(dir, "blocked.json")
		if err := os.WriteFile(blocked, []byte(`["Modern Press"]`), 0o600); err != nil {
			t.Fatal(err)
		}
		c, err := LoadClassifier("", blocked, 1990, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := c.Assess(model.Metadata{Translator: "modern press staff"}); got.Status != model.RiskHigh {
			t.Errorf("expected HIGH_RISK, got %v", got.Status)
		}
	})

	t.Run("malformed list is an error", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		safe := filepath.Join(dir, "safe.json")
		if err := os.WriteFile(safe, []byte(`{"not": "a list"}`), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadClassifier(safe, "", 1990, nil); err == nil {
			t.Error("expected error for malformed list")
		}
	})
}
