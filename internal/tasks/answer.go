package tasks

import "strings"

// NormalizeAnswer trims whitespace, maps a decimal comma to a point and case-folds.
func NormalizeAnswer(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), ",", "."))
}

// IsCorrect compares a submitted answer with the expected one after normalization.
// An empty expected answer never matches.
func IsCorrect(submitted, correct string) bool {
	if strings.TrimSpace(correct) == "" {
		return false
	}
	return NormalizeAnswer(submitted) == NormalizeAnswer(correct)
}
