// Package utils provides utility functions for the application.
package utils

import (
	"crypto/sha1"
	"encoding/hex"
)

func ToPtr[T any](v T) *T {
	return &v
}

// StringValue dereferences s, returning "" for nil
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// SHA1Hex returns the hex encoded SHA-1 of data
func SHA1Hex(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}
