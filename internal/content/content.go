package content

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"lichka/internal/models"
)

// MaxMessageLength bounds message content, counted in runes.
const MaxMessageLength = 1000

var policy = bluemonday.UGCPolicy()

// Sanitize removes unsafe HTML from the input string.
// Applied to message content once at ingress, before persistence.
func Sanitize(input string) string {
	return policy.Sanitize(input)
}

// ValidateMessage trims, bounds and sanitizes message content.
// Returns the canonical form to persist, or a validation error.
func ValidateMessage(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", fmt.Errorf("%w: content is empty", models.ErrValidation)
	}
	if utf8.RuneCountInString(trimmed) > MaxMessageLength {
		return "", fmt.Errorf("%w: content exceeds %d characters", models.ErrValidation, MaxMessageLength)
	}
	clean := strings.TrimSpace(Sanitize(trimmed))
	if clean == "" {
		return "", fmt.Errorf("%w: content is empty", models.ErrValidation)
	}
	return clean, nil
}
