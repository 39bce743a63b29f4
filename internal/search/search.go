// Package search filters the directory by username.
package search

import "strings"

// Normalize trims and lower-cases a search term
func Normalize(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}

// Filter returns the usernames containing term, case-insensitively, in their
// original order. An empty or blank term returns usernames unchanged.
func Filter(usernames []string, term string) []string {
	needle := Normalize(term)
	if needle == "" {
		return usernames
	}

	matches := make([]string, 0, len(usernames))
	for _, username := range usernames {
		if strings.Contains(strings.ToLower(username), needle) {
			matches = append(matches, username)
		}
	}
	return matches
}
