package utils

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "plain international", input: "+15105550100", want: "+15105550100"},
		{name: "spaces and dashes", input: "+1 510-555-0100", want: "+15105550100"},
		{name: "parentheses and dots", input: "+1 (510) 555.0100", want: "+15105550100"},
		{name: "surrounding whitespace", input: "  +5215512345678 ", want: "+5215512345678"},
		{name: "missing plus", input: "15105550100", wantErr: true},
		{name: "too short", input: "+1234567", wantErr: true},
		{name: "too long", input: "+1234567890123456", wantErr: true},
		{name: "letters", input: "+1510555abcd", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizePhone(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGenerateNumericCode(t *testing.T) {
	sixDigits := regexp.MustCompile(`^[0-9]{6}$`)
	for i := 0; i < 10000; i++ {
		code, err := GenerateNumericCode(6)
		require.NoError(t, err)
		require.Regexp(t, sixDigits, code)
	}
}

func TestGenerateNumericCodeKeepsLeadingZeros(t *testing.T) {
	// Длина фиксирована даже для маленьких значений.
	seen := map[int]bool{}
	for i := 0; i < 200; i++ {
		code, err := GenerateNumericCode(4)
		require.NoError(t, err)
		require.Len(t, code, 4)
		seen[len(code)] = true
	}
	assert.Len(t, seen, 1)
}

func TestRandomToken(t *testing.T) {
	alnum := regexp.MustCompile(`^[a-zA-Z0-9]+$`)

	first, err := RandomToken(32)
	require.NoError(t, err)
	assert.Len(t, first, 32)
	assert.Regexp(t, alnum, first)

	second, err := RandomToken(32)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}
