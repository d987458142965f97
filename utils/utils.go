package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

const tokenCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// +, затем 8–15 цифр (E.164, проверяем нестрого)
var phoneE164 = regexp.MustCompile(`^\+[0-9]{8,15}$`)

// NormalizePhone strips common separators and validates the result against a
// permissive E.164 shape. Returns the normalized "+<digits>" form.
func NormalizePhone(raw string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	if !phoneE164.MatchString(cleaned) {
		return "", fmt.Errorf("phone %q is not in international format", raw)
	}
	return cleaned, nil
}

// GenerateNumericCode returns a uniformly random zero-padded numeric string
// of the given length, e.g. "042917" for length 6.
func GenerateNumericCode(length int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < length; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate numeric code: %w", err)
	}
	return fmt.Sprintf("%0*d", length, n), nil
}

// RandomToken returns a random alphanumeric string of the given length.
func RandomToken(length int) (string, error) {
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	b := make([]byte, length)
	for i, rb := range raw {
		b[i] = tokenCharset[int(rb)%len(tokenCharset)]
	}
	return string(b), nil
}
