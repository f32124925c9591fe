package utils

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// Ambiguous glyphs (0/O, 1/I/L) are excluded so a code survives being read
// off a weathered sticker and typed by hand.
const shortCodeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// ShortCodeLength gives ~31^8 ≈ 8.5e11 combinations per batch space.
const ShortCodeLength = 8

// GenerateShortCode returns a fresh random sticker code (uppercase).
func GenerateShortCode() (string, error) {
	buf := make([]byte, ShortCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	var b strings.Builder
	b.Grow(ShortCodeLength)
	for _, c := range buf {
		b.WriteByte(shortCodeAlphabet[int(c)%len(shortCodeAlphabet)])
	}
	return b.String(), nil
}

// NormalizeShortCode maps user input onto the stored form: codes are matched
// case-insensitively and stored uppercase.
func NormalizeShortCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
