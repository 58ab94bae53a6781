/*
Package randx provides functions for generating unique identifiers and validating
client-supplied identifiers.

It is primarily used to generate UUID connection handles for WebSocket sessions
and to sanity-check room identifiers received from clients.
*/
package randx

import (
	"github.com/google/uuid"
)

const (
	// MaxRoomIDLength is the maximum accepted length for a client-supplied room identifier.
	MaxRoomIDLength = 64
)

// ConnectionID generates a standard UUID v4 string to serve as the opaque handle
// for a live WebSocket connection.
func ConnectionID() string {
	return uuid.New().String()
}

// IsValidRoomID checks if the given string is an acceptable room identifier.
// Validity criteria: non-empty, at most MaxRoomIDLength characters, and composed
// only of letters, digits, '_', '-', ':' or '.'.
func IsValidRoomID(roomID string) bool {
	if roomID == "" || len(roomID) > MaxRoomIDLength {
		return false
	}

	for _, r := range roomID {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'A' && r <= 'Z':
		case r >= 'a' && r <= 'z':
		case r == '_' || r == '-' || r == ':' || r == '.':
		default:
			return false
		}
	}

	return true
}
