package service

import (
	"regexp"
	"strings"
)

// CodeAlphabet is the 32-symbol set used for code bodies and the checksum
// character. Visually ambiguous characters (0, O, 1, I) are excluded.
// 32 divides 256 evenly, so mapping a random byte with modulo is unbiased.
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// DefaultPrefix is used when a generation request does not name one.
const DefaultPrefix = "RBX"

var (
	// Legacy fixed-prefix codes were issued without a checksum and must
	// remain redeemable.
	legacyCodeRe = regexp.MustCompile(`^RBX100-[A-Z0-9]{4}-[A-Z0-9]{4}$`)
	// Current format: variable prefix, two 4-char segments, one checksum char.
	checksumCodeRe = regexp.MustCompile(`^[A-Z0-9]{2,6}-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]$`)
	prefixRe       = regexp.MustCompile(`^[A-Z0-9]{2,6}$`)
)

// NormalizeCode upper-cases and trims submitted code text.
func NormalizeCode(text string) string {
	return strings.ToUpper(strings.TrimSpace(text))
}

// IsWellFormed reports whether text matches the legacy RBX100-XXXX-XXXX
// shape or the current PREFIX-XXXX-XXXX-C shape. Input is expected to be
// normalized.
func IsWellFormed(text string) bool {
	return legacyCodeRe.MatchString(text) || checksumCodeRe.MatchString(text)
}

// IsValidPrefix reports whether p can be used as a generation prefix.
func IsValidPrefix(p string) bool {
	return prefixRe.MatchString(p)
}

// checksumChar computes the checksum character over the dash-joined
// prefix and body segments.
func checksumChar(base string) byte {
	sum := 0
	for i := 0; i < len(base); i++ {
		sum += int(base[i])
	}
	return CodeAlphabet[sum%len(CodeAlphabet)]
}

// EncodeCode joins prefix and the two body segments with dashes and
// appends the checksum character.
func EncodeCode(prefix, seg1, seg2 string) string {
	base := prefix + "-" + seg1 + "-" + seg2
	return base + "-" + string(checksumChar(base))
}

// VerifyChecksum recomputes the checksum of a current-format code and
// compares it against the trailing character, case-insensitively. Legacy
// codes carry no checksum and always verify. The checksum is a typo aid
// with 32 possible values, not a security control; unpredictability comes
// from the generator's random source.
func VerifyChecksum(text string) bool {
	code := NormalizeCode(text)
	if legacyCodeRe.MatchString(code) {
		return true
	}
	parts := strings.Split(code, "-")
	if len(parts) != 4 {
		return false
	}
	base := parts[0] + "-" + parts[1] + "-" + parts[2]
	return parts[3] == string(checksumChar(base))
}
