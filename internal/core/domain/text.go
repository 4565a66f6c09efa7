package domain

import (
	"regexp"
	"strings"
)

var (
	reLineBreaks  = regexp.MustCompile(`\r\n`)
	reExtraBlanks = regexp.MustCompile(`\n{3,}`)
)

// NormalizeText collapses CRLF to LF (a lone CR is kept), strips trailing whitespace per line,
// collapses three or more consecutive newlines to two and trims the result.
func NormalizeText(s string) string {
	if s == "" {
		return s
	}
	s = reLineBreaks.ReplaceAllString(s, "\n")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t\f\v")
	}
	s = strings.Join(lines, "\n")
	s = reExtraBlanks.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func NormalizePages(pages []string) []string {
	out := make([]string, 0, len(pages))
	for _, page := range pages {
		out = append(out, NormalizeText(page))
	}
	return out
}

func JoinPages(pages []string) string {
	return strings.Join(pages, "\n\n")
}

func WordCount(s string) int {
	return len(strings.Fields(s))
}

// Truncate cuts s to at most limit runes.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
