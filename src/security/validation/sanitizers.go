package validation

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// Strict sanitization policy, initialized once at startup.
	strictHTMLPolicy *bluemonday.Policy
)

func init() {
	strictHTMLPolicy = bluemonday.StrictPolicy() // Removes all HTML tags
}

// SanitizeText removes all HTML tags and attributes from an input string. The
// sheet content is untrusted user input that is echoed back to the frontend,
// so every free-text field passes through here before reaching a response.
func SanitizeText(s string) string {
	return strictHTMLPolicy.Sanitize(s)
}

// CleanField sanitizes and normalizes one free-text cell: HTML stripped,
// unprintable characters dropped, surrounding whitespace trimmed. The policy
// entity-escapes its output, so unescape to keep plain text like "S&P 500"
// intact.
func CleanField(s string) string {
	return strings.TrimSpace(html.UnescapeString(SanitizeText(StripUnprintable(s))))
}

// StripUnprintable removes non-printable characters, allowing common whitespace
// like space, tab, newline, and carriage return.
func StripUnprintable(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		return -1 // Drop the rune
	}, s)
}
