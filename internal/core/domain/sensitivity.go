package domain

import (
	"regexp"
	"strings"
)

// SensitivityVerdict is the outcome of scanning a document for sensitive terms.
type SensitivityVerdict struct {
	Matched bool   `json:"matched"`
	Reason  string `json:"reason,omitempty"`
}

type sensitivePattern struct {
	re     *regexp.Regexp
	reason string
}

// Order matters: the first match wins.
var sensitivePatterns = []sensitivePattern{
	{regexp.MustCompile(`(?i)\b(passwords?|passwd|passcodes?|secrets?)\b`), "Contains password or secret information"},
	{regexp.MustCompile(`(?i)\bpass\s?phrases?\b`), "Contains a passphrase"},
	{regexp.MustCompile(`(?i)\b(ssn|social\s+security)\b`), "Contains a social security number"},
	{regexp.MustCompile(`(?i)\bpassports?\b`), "Contains passport details"},
	{regexp.MustCompile(`(?i)\bvisas?\b`), "Contains visa details"},
	{regexp.MustCompile(`(?i)\bdriver'?s?\s+licen[cs]e\b`), "Contains driver's license details"},
	{regexp.MustCompile(`(?i)\b(bank\s+account|account\s+(number|no\.?))`), "Contains a bank account number"},
	{regexp.MustCompile(`(?i)\b(card\s+(number|no\.?)|credit\s+card|debit\s+card)`), "Contains a payment card number"},
	{regexp.MustCompile(`(?i)\b(routing\s+(number|no\.?)|sort\s+code)`), "Contains a routing number"},
	{regexp.MustCompile(`(?i)\bpin\b`), "Contains a PIN"},
	{regexp.MustCompile(`(?i)\b(api|secret)[\s_-]?keys?\b`), "Contains an API or secret key"},
}

// DetectSensitiveContent scans the filename followed by the text. The filename
// goes first so that a telling name is caught even when the body is empty.
func DetectSensitiveContent(text, fileName string) SensitivityVerdict {
	input := text
	if name := strings.TrimSpace(fileName); name != "" {
		input = name + "\n" + text
	}
	for _, p := range sensitivePatterns {
		if p.re.MatchString(input) {
			return SensitivityVerdict{Matched: true, Reason: p.reason}
		}
	}
	return SensitivityVerdict{}
}

var sensitiveFieldAllowlist = []*regexp.Regexp{
	regexp.MustCompile(`(?i)document[\s_-]*type`),
	regexp.MustCompile(`(?i)expiry`),
	regexp.MustCompile(`(?i)expiration`),
}

// IsAllowedSensitiveField reports whether key may be kept for a sensitive document.
func IsAllowedSensitiveField(key string) bool {
	for _, re := range sensitiveFieldAllowlist {
		if re.MatchString(key) {
			return true
		}
	}
	return false
}

// FilterSensitiveFields drops every field outside the allowlist when the
// document was flagged. Unflagged documents pass through untouched.
func FilterSensitiveFields(fields []FieldDraft, sensitive bool) []FieldDraft {
	if !sensitive {
		return fields
	}
	kept := make([]FieldDraft, 0, len(fields))
	for _, f := range fields {
		if IsAllowedSensitiveField(f.Key) {
			kept = append(kept, f)
		}
	}
	return kept
}
