package domain

import (
	"fmt"
	"strings"
)

// IsAdmin reports whether an identity holds admin capability. Any username
// containing "admin" (case-insensitive) qualifies.
func IsAdmin(username string) bool {
	return strings.Contains(strings.ToLower(username), "admin")
}

// DirectChannelName returns the canonical name of the direct channel between
// two identities, independent of argument order.
func DirectChannelName(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("dm_%d_%d", a, b)
}
