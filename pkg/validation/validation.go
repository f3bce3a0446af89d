package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// clientIDRegex restricts a client ID to characters safe to log, use as
// a map key, and echo back in error messages without escaping.
var clientIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateClientID checks the wire-supplied client identifier a viewer
// registers under. Grounded on the teacher's ValidateStreamID/
// ValidatePeerID pair, narrowed to this repository's one identifier kind.
func ValidateClientID(clientID string) error {
	if clientID == "" {
		return fmt.Errorf("client id is required")
	}
	if len(clientID) > 100 {
		return fmt.Errorf("client id is too long (max 100 characters)")
	}
	if !clientIDRegex.MatchString(clientID) {
		return fmt.Errorf("client id contains invalid characters (only letters, numbers, _, - allowed)")
	}
	return nil
}

// ValidateDisplayName checks a viewer's chosen display name. An empty
// name is allowed -- the registry treats it as "leave unchanged" -- so
// this only rejects names that are present but malformed.
func ValidateDisplayName(displayName string) error {
	if displayName == "" {
		return nil
	}
	if !utf8.ValidString(displayName) {
		return fmt.Errorf("display name contains invalid characters")
	}
	if utf8.RuneCountInString(strings.TrimSpace(displayName)) == 0 {
		return fmt.Errorf("display name must not be only whitespace")
	}
	if utf8.RuneCountInString(displayName) > 100 {
		return fmt.Errorf("display name is too long (max 100 characters)")
	}
	return nil
}

// ValidateNonEmptyString validates that string is not empty after trimming.
func ValidateNonEmptyString(s, fieldName string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateStringLength validates string length in runes.
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
