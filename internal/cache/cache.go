// Package cache stores login sessions: an opaque token mapped to a username
// with a fixed expiry.
package cache

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DefaultTTL is long enough that sessions effectively never expire; logout
// is the normal way a token dies.
const DefaultTTL = 216000 * time.Hour

// SessionStore is the capability the authentication layer depends on.
//
// Keys and values must be non-empty. An empty token is a programming error
// and implementations panic on it.
type SessionStore interface {
	// Set stores token → username with the store's TTL and reports whether
	// the write took effect.
	Set(ctx context.Context, token, username string) (bool, error)
	// Get returns the username for token. ok is false when the token is
	// unknown or expired.
	Get(ctx context.Context, token string) (username string, ok bool, err error)
	// Delete removes token. Deleting an unknown token is not an error.
	Delete(ctx context.Context, token string) (removed bool, err error)
}

// Pinger is implemented by stores that talk to a remote server.
type Pinger interface {
	Ping(ctx context.Context) error
}

func mustKey(token string) {
	if token == "" {
		panic("cache: empty session token")
	}
}

// keyer derives cache keys from tokens. With a secret the raw token never
// reaches the cache; it is replaced by its HMAC.
type keyer struct {
	secret []byte
}

func (k keyer) key(token string) string {
	mustKey(token)
	if len(k.secret) == 0 {
		return "session:" + token
	}
	mac := hmac.New(sha256.New, k.secret)
	mac.Write([]byte(token))
	return "session:" + hex.EncodeToString(mac.Sum(nil))
}
