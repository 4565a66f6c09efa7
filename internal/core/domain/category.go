package domain

import (
	"strings"
	"unicode"
)

const (
	MaxCategoryNameChars = 40
	MaxCategorySnippet   = 500
	DefaultAIConfidence  = 0.5
)

// LabelPolicy names how a run derives category_label. Full processing and
// standalone categorization use different policies on purpose.
type LabelPolicy string

const (
	// LabelPolicyExtractorVerbatim stores the extractor's free-text category as
	// is and never links category_id. SaveProcessingResult also clears any
	// category_id left by an earlier workspace match, so a full re-run never
	// keeps a stale link.
	LabelPolicyExtractorVerbatim LabelPolicy = "extractor_verbatim"
	// LabelPolicyWorkspaceMatch normalizes the categorizer's answer and links it
	// to an existing workspace category when the normalized names are equal.
	LabelPolicyWorkspaceMatch LabelPolicy = "workspace_match"
)

// SuggestedCategories is the default vocabulary offered to the categorizer.
var SuggestedCategories = []string{
	"Council Tax",
	"Energy",
	"Banking",
	"Healthcare",
	"Housing",
	"Insurance",
	"School",
	"Employment",
	"Subscriptions",
	"Legal",
	"Other",
}

type CategorizationInput struct {
	Filename           string
	Note               string
	Issuer             string
	Snippet            string
	ExistingCategories []string
	SuggestedVocab     []string
}

type CategorizationResult struct {
	CategoryName  string
	Confidence    float64
	Rationale     string
	ReuseExisting *bool
	RawResponse   string
	Model         string
}

// NormalizeCategoryName trims, collapses inner whitespace, title-cases each
// word and caps the result at MaxCategoryNameChars.
func NormalizeCategoryName(name string) string {
	words := strings.Fields(name)
	if len(words) == 0 {
		return ""
	}
	for i, word := range words {
		words[i] = titleWord(word)
	}
	normalized := Truncate(strings.Join(words, " "), MaxCategoryNameChars)
	return strings.TrimSpace(normalized)
}

func titleWord(word string) string {
	runes := []rune(strings.ToLower(word))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// MatchCategory returns the existing category whose normalized name equals the
// normalized candidate.
func MatchCategory(candidate string, existing []Category) (*Category, bool) {
	target := NormalizeCategoryName(candidate)
	if target == "" {
		return nil, false
	}
	for i := range existing {
		if NormalizeCategoryName(existing[i].Name) == target {
			return &existing[i], true
		}
	}
	return nil, false
}

func CategoryNames(categories []Category) []string {
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		names = append(names, c.Name)
	}
	return names
}
