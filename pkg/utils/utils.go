package utils

import (
	"fmt"
	"strings"
)

// ObjectKey builds a user-scoped object storage key from path segments,
// skipping empty ones. Keys are /-delimited; the first segment is always
// the owning user id.
func ObjectKey(userID string, segments ...string) string {
	parts := []string{userID}
	for _, segment := range segments {
		if segment != "" {
			parts = append(parts, segment)
		}
	}
	return strings.Join(parts, "/")
}

// UserPrefix returns the listing prefix covering everything a user owns
func UserPrefix(userID string) string {
	return userID + "/"
}

// LabelPrefix returns the listing prefix for one of a user's labels
func LabelPrefix(userID, label string) string {
	return fmt.Sprintf("%s/%s/", userID, label)
}
