package service

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sakif/consulthub/internal/repository"
)

const (
	minUsernameLen = 8
	minPasswordLen = 4
	minQueryLen    = 10
)

// reservedUsernames are path segments the router matches before a
// username: /users/me and /channel/{channel}/questions|multi.
var reservedUsernames = map[string]bool{
	"me":        true,
	"questions": true,
	"multi":     true,
}

// validUsername: at least 8 characters, no whitespace, not reserved.
func validUsername(s string) bool {
	return utf8.RuneCountInString(s) >= minUsernameLen && !hasSpace(s) && !reservedUsernames[s]
}

// validPassword: at least 4 characters and no whitespace.
func validPassword(s string) bool {
	return utf8.RuneCountInString(s) >= minPasswordLen && !hasSpace(s)
}

// emailPattern builds the address matcher for the one accepted domain.
func emailPattern(domain string) *regexp.Regexp {
	return regexp.MustCompile(`^[a-z0-9._%+-]+@` + regexp.QuoteMeta(strings.ToLower(domain)) + `$`)
}

// validField reports whether s is a usable channel name: non-empty, letters
// only, and not the all-channels feed.
func validField(s string) bool {
	if s == "" || reservedField(s) {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// reservedField matches the name the feed routes read as "every channel".
func reservedField(s string) bool {
	return strings.EqualFold(s, repository.AllChannels)
}

func hasSpace(s string) bool {
	return strings.IndexFunc(s, unicode.IsSpace) >= 0
}

// capitalize upper-cases the first letter and lower-cases the rest, the
// way channel names and titles are shown in mail.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// titleFromPath turns a URL-friendly title ("my_question") back into the
// stored form ("my question").
func titleFromPath(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}
