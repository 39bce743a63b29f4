package view

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// FormatCount groups digits with thousands separators
func FormatCount(n int64) string {
	return printer.Sprintf("%d", n)
}

// FormatDate formats a unix timestamp as a US calendar date (M/D/YYYY)
func FormatDate(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("1/2/2006")
}

// FormatStatus capitalizes an account status. Empty is "Unknown".
func FormatStatus(status string) string {
	if status == "" {
		return "Unknown"
	}
	return capitalize(status)
}

// FormatPlatform capitalizes a streaming platform type
func FormatPlatform(platform string) string {
	return capitalize(platform)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// Plural returns suffix unless n is exactly one
func Plural(n int, suffix string) string {
	if n == 1 {
		return ""
	}
	return suffix
}
