package caseprep

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// snippetMaxChars caps a single cleaned snippet.
	snippetMaxChars = 400
	// snippetMinChars drops near-empty fragments after cleaning.
	snippetMinChars = 20
	// cleanBudgetChars bounds the total characters passed to a model call;
	// cleaning stops admitting snippets once the budget is spent.
	cleanBudgetChars = 8000
)

var (
	codeFenceRe = regexp.MustCompile("(?s)```.*?```")
	htmlTagRe   = regexp.MustCompile(`<[^>]+>`)
	markupRe    = regexp.MustCompile("[`*_#>|]")
)

// cleanSnippet strips code fences, HTML tags and markdown markup, flattens
// whitespace and caps the length.
func cleanSnippet(s string) string {
	s = codeFenceRe.ReplaceAllString(s, " ")
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = markupRe.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")
	s = truncate(s, snippetMaxChars)
	return strings.TrimSpace(s)
}

// truncate caps s at max bytes without splitting a multi-byte rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// cleanSnippets cleans each snippet, drops near-empty survivors and stops
// once the global character budget is exhausted. Order is preserved.
func cleanSnippets(snippets []string) []string {
	out := make([]string, 0, len(snippets))
	used := 0
	for _, raw := range snippets {
		s := cleanSnippet(raw)
		if len(s) < snippetMinChars {
			continue
		}
		if used+len(s) > cleanBudgetChars {
			break
		}
		used += len(s)
		out = append(out, s)
	}
	return out
}

// normalizeKey lowercases and collapses whitespace; the dedup identity for
// extracted candidates.
func normalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
