package flows

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"
)

// NormalizeEmail trims surrounding whitespace and lowercases the address so
// lookups and limiter metadata agree on one spelling.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeCode strips surrounding whitespace from a submitted code.
func NormalizeCode(code string) string {
	return strings.TrimSpace(code)
}

// validateEmail accepts bare addresses only, no display names or comments.
func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return fmt.Errorf("email is not a valid address")
	}
	return nil
}

func validateName(field, value string, maxLen int) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	if maxLen > 0 && utf8.RuneCountInString(value) > maxLen {
		return fmt.Errorf("%s must be at most %d characters", field, maxLen)
	}
	return nil
}

func validateUniversity(value string, allowed []string) error {
	if value == "" {
		return fmt.Errorf("university is required")
	}
	if len(allowed) == 0 {
		return nil
	}
	for _, a := range allowed {
		if a == value {
			return nil
		}
	}
	return fmt.Errorf("university must be one of: %s", strings.Join(allowed, ", "))
}
