package auth

import "github.com/google/uuid"

// NewToken returns a fresh opaque session token (a random UUIDv4).
// The token carries no claims; its meaning lives in the session cache.
func NewToken() string {
	return uuid.NewString()
}
