package contextutils

import (
	"strings"
)

// MaskSecret masks a credential for logging purposes to prevent exposure
// Returns a masked version that shows only first 4 and last 4 characters
func MaskSecret(secret string) string {
	if secret == "" {
		return "[EMPTY]"
	}

	if len(secret) <= 8 {
		return strings.Repeat("*", len(secret))
	}

	return secret[:4] + strings.Repeat("*", len(secret)-8) + secret[len(secret)-4:]
}
