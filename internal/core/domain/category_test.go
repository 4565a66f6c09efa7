package domain

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNormalizeCategoryName(t *testing.T) {
	cases := map[string]string{
		"banking":          "Banking",
		"Banking":          "Banking",
		"  BANKING  ":      "Banking",
		"council   tax":    "Council Tax",
		"\tcOUNCIL\n tax ": "Council Tax",
		"":                 "",
		"   ":              "",
		"élan vital":       "Élan Vital",
	}
	for in, want := range cases {
		if got := NormalizeCategoryName(in); got != want {
			t.Fatalf("NormalizeCategoryName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeCategoryNameTruncates(t *testing.T) {
	got := NormalizeCategoryName(strings.Repeat("word ", 20))
	if utf8.RuneCountInString(got) > MaxCategoryNameChars {
		t.Fatalf("expected at most %d chars, got %d", MaxCategoryNameChars, utf8.RuneCountInString(got))
	}
	if strings.HasSuffix(got, " ") {
		t.Fatalf("expected no trailing space, got %q", got)
	}
}

func TestMatchCategory(t *testing.T) {
	existing := []Category{{ID: "1", Name: "Banking"}, {ID: "2", Name: "council tax"}}

	for _, candidate := range []string{"banking", "Banking", "  BANKING  "} {
		match, ok := MatchCategory(candidate, existing)
		if !ok || match.ID != "1" {
			t.Fatalf("%q: expected Banking match", candidate)
		}
	}
	if match, ok := MatchCategory("Council Tax", existing); !ok || match.ID != "2" {
		t.Fatalf("expected existing names to be normalized too")
	}
	if _, ok := MatchCategory("Energy", existing); ok {
		t.Fatalf("unexpected match")
	}
	if _, ok := MatchCategory("  ", existing); ok {
		t.Fatalf("blank names never match")
	}
}

func TestClampConfidence(t *testing.T) {
	cases := map[float64]float64{1.4: 1, -0.2: 0, 0.5: 0.5, 0: 0, 1: 1}
	for in, want := range cases {
		if got := ClampConfidence(in); got != want {
			t.Fatalf("ClampConfidence(%v) = %v, want %v", in, got, want)
		}
	}
}
