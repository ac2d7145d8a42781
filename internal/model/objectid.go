package model

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NewID returns a fresh 24-character hexadecimal object id.
//
// Object ids start with a timestamp, so ids created later sort later; the
// store still orders listings by insertion, not by id.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

// IsID reports whether s is shaped like an object id: exactly 24
// hexadecimal characters, in either case.
func IsID(s string) bool {
	if len(s) != 24 {
		return false
	}
	_, err := primitive.ObjectIDFromHex(s)
	return err == nil
}

// NormalizeID lower-cases an id so that upper-case hex input matches the
// stored form. Callers should check IsID first.
func NormalizeID(s string) string {
	return strings.ToLower(s)
}
