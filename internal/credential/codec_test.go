package credential

import (
	"encoding/base64"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenEntropyAndUniqueness(t *testing.T) {
	codec := NewCodec()

	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		token, err := codec.Token()
		require.NoError(t, err)

		raw, err := base64.RawURLEncoding.DecodeString(token)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(raw)*8, 128, "token must carry at least 128 bits of entropy")

		_, dup := seen[token]
		assert.False(t, dup, "token collision in a 100-sample run")
		seen[token] = struct{}{}
	}
}

func TestVoucherCodeFormat(t *testing.T) {
	codec := NewCodec()
	pattern := regexp.MustCompile(`^OYIN-[A-Z0-9]{1,4}-[A-Z2-9]{8}$`)

	code, err := codec.VoucherCode("Pizza Party")
	require.NoError(t, err)
	assert.Regexp(t, pattern, code)
	assert.Contains(t, code, "-PIZZ-")

	other, err := codec.VoucherCode("Pizza Party")
	require.NoError(t, err)
	assert.NotEqual(t, code, other, "random part should differ between calls")
}

func TestHint(t *testing.T) {
	testCases := []struct {
		title    string
		expected string
	}{
		{"Pizza Party", "PIZZ"},
		{"50% off", "50OF"},
		{"чой", "GIFT"},
		{"", "GIFT"},
		{"Tea", "TEA"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, Hint(tc.title), "title %q", tc.title)
	}
}

func TestVoucherCodeSamplesWholeAlphabet(t *testing.T) {
	codec := NewCodec()

	counts := make(map[byte]int, len(codeAlphabet))
	for i := 0; i < 2000; i++ {
		code, err := codec.VoucherCode("Tea")
		require.NoError(t, err)

		random := code[len(code)-codeRandomLen:]
		for j := 0; j < len(random); j++ {
			require.Contains(t, codeAlphabet, string(random[j]))
			counts[random[j]]++
		}
	}

	// 16k draws over 29 characters: every character must show up
	assert.Len(t, counts, len(codeAlphabet))
}
