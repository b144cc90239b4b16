package token

import "regexp"

// Pattern matches one reference token.
//
// The prefix is one or more letters, digits, hyphens or underscores. The body
// is one or more letters, digits, underscores, '/', ':', '(', ')' or '@'.
// The prefix is matched lazily so the first ':' ends it.
var Pattern = regexp.MustCompile(`[A-Za-z0-9_-]+?:[A-Za-z0-9_/:()@]+`)

// FindAll returns every non-overlapping token in s in order of appearance.
// Returns nil when s contains no token.
func FindAll(s string) []string {
	return Pattern.FindAllString(s, -1)
}

// Distinct removes duplicate matches, keeping the first occurrence of each.
func Distinct(matches []string) []string {
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// Scan returns the distinct tokens of s in first-seen order.
func Scan(s string) []string {
	return Distinct(FindAll(s))
}

// HasToken reports whether s contains at least one token.
func HasToken(s string) bool {
	return Pattern.MatchString(s)
}
