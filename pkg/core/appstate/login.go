package appstate

import (
	"strings"
	"unicode/utf8"
)

// ValidCodes are the published festival access codes.
var ValidCodes = []string{"VIBE2026", "HOUSEMAG", "ADMIN"}

// AttemptLogin reports whether code unlocks the app. The gate is cosmetic: any
// allow-listed code (case-insensitive) passes, and so does any code longer than
// three characters.
func AttemptLogin(code string) bool {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	for _, valid := range ValidCodes {
		if normalized == valid {
			return true
		}
	}
	return utf8.RuneCountInString(code) > 3
}
