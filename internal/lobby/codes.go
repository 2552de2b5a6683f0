package lobby

import (
	"crypto/rand"
	"regexp"
)

// codeAlphabet deliberately omits 0/O and 1/I so codes read aloud cleanly.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeLength is the fixed length of a lobby invite code.
const CodeLength = 6

var codePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// GenerateCode returns a random 6-character uppercase alphanumeric code.
// Uniqueness among live lobbies is the registry's job; callers retry on
// ErrDuplicateCode.
func GenerateCode() string {
	buf := make([]byte, CodeLength)
	rand.Read(buf)
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf)
}

// ValidCode reports whether s is a well-formed lobby code.
func ValidCode(s string) bool {
	return codePattern.MatchString(s)
}
