// Package credential generates the secrets attached to issued vouchers:
// the opaque redemption token and the human-presentable voucher code.
// Uniqueness of both is ultimately enforced by the voucher store's unique
// constraints, not by the generator.
package credential

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"
)

const (
	// tokenBytes gives 256 bits of entropy, well above the required minimum.
	tokenBytes = 32

	codePrefix    = "OYIN"
	codeRandomLen = 8
	maxHintLen    = 4
	fallbackHint  = "GIFT"

	// Ambiguous characters (0/O, 1/I/L, U/V) are excluded so codes survive
	// being read out loud or retyped by staff.
	codeAlphabet = "ABCDEFGHJKMNPQRSTWXYZ23456789"
)

// Generator mints voucher tokens and display codes.
type Generator interface {
	Token() (string, error)
	VoucherCode(offerHint string) (string, error)
}

// Codec is the crypto/rand backed Generator implementation.
type Codec struct{}

// NewCodec returns the default credential generator.
func NewCodec() *Codec {
	return &Codec{}
}

// Token returns an unguessable, URL-safe redemption secret.
func (c *Codec) Token() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random token bytes: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// VoucherCode returns a display code in the form OYIN-<hint>-<random>.
// Bytes outside the largest multiple of the alphabet size are rejected so
// every character is drawn uniformly.
func (c *Codec) VoucherCode(offerHint string) (string, error) {
	limit := 256 - 256%len(codeAlphabet)

	random := make([]byte, 0, codeRandomLen)
	var buf [16]byte
	for len(random) < codeRandomLen {
		if _, err := rand.Read(buf[:]); err != nil {
			return "", fmt.Errorf("read random code bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			random = append(random, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(random) == codeRandomLen {
				break
			}
		}
	}

	return fmt.Sprintf("%s-%s-%s", codePrefix, Hint(offerHint), random), nil
}

// Hint condenses an offer title into a short uppercase tag for the code.
func Hint(title string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(title) {
		if b.Len() >= maxHintLen {
			break
		}
		if r > unicode.MaxASCII {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}

	if b.Len() == 0 {
		return fallbackHint
	}

	return b.String()
}
