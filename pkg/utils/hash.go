package utils

import (
	"crypto/md5"
	"fmt"
	"strings"
)

// HashString returns the md5 hex digest of input, used for document IDs,
// blob keys and cache keys. Not for anything security sensitive.
func HashString(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}

// HashKey hashes parts joined with a separator so composite cache keys
// stay stable regardless of the parts' content.
func HashKey(parts ...string) string {
	return HashString(strings.Join(parts, "\x1f"))
}
