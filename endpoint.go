package tautan

import (
	"strings"

	"github.com/google/uuid"
)

const idPlaceholder = ":id"

// endpointLabel collapses identifier segments of a path so metric labels stay
// bounded: "/items/42/reviews" becomes "/items/:id/reviews".
func endpointLabel(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if isIdentifier(seg) {
			segments[i] = idPlaceholder
		}
	}
	return strings.Join(segments, "/")
}

// isIdentifier reports whether seg looks like a numeric ID, a UUID or a long
// hex token such as an object ID.
func isIdentifier(seg string) bool {
	if seg == "" {
		return false
	}
	if _, err := uuid.Parse(seg); err == nil && len(seg) >= 32 {
		return true
	}
	digits, hex := true, len(seg) >= 16
	for _, r := range seg {
		switch {
		case r >= '0' && r <= '9':
		case (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F'):
			digits = false
		default:
			return false
		}
	}
	return digits || hex
}
