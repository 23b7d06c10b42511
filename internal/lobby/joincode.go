package lobby

import "strings"

// JoinCodeAlphabet is the set of characters a join code is drawn from.
const JoinCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DefaultJoinCodeLength is the length of generated join codes.
const DefaultJoinCodeLength = 6

// GenerateJoinCode samples length characters from JoinCodeAlphabet.
//
// Precondition: length > 0; src must be non-nil.
func GenerateJoinCode(src Source, length int) string {
	var b strings.Builder
	b.Grow(length)
	for range length {
		b.WriteByte(JoinCodeAlphabet[src.Intn(len(JoinCodeAlphabet))])
	}
	return b.String()
}

// NormalizeJoinCode trims surrounding whitespace and upper-cases a user-entered code.
func NormalizeJoinCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidJoinCode reports whether code has the given length and only alphabet characters.
func ValidJoinCode(code string, length int) bool {
	if len(code) != length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(JoinCodeAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
