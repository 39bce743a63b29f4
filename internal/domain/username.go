package domain

import (
	"regexp"
	"strings"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidUsername reports whether s may be used as a profile route parameter
func ValidUsername(s string) bool {
	return usernamePattern.MatchString(s)
}

// ValidateUsername returns ErrInvalidUsername when s is not a valid username
func ValidateUsername(s string) error {
	if !ValidUsername(s) {
		return ErrInvalidUsername
	}
	return nil
}

// CacheKey is the case-folded form under which a player is cached and stored.
// The upstream treats usernames case-insensitively.
func CacheKey(username string) string {
	return strings.ToLower(username)
}
