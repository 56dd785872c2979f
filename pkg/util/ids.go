package util

import (
	"strings"

	"github.com/google/uuid"
)

// ShortID returns prefix + "_" + the first 8 hex digits of a random UUID.
func ShortID(prefix string) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "_" + hex[:8]
}
