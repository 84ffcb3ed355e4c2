package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// RequestKey derives the storage key for one logical request, scoping the
// client-supplied Idempotency-Key header to the method and path so the same
// header value cannot bleed across endpoints.
func RequestKey(method, path, clientKey string) string {
	h := sha256.New()
	for _, part := range []string{method, path, clientKey} {
		fmt.Fprintf(h, "%s:", part)
	}

	return hex.EncodeToString(h.Sum(nil))
}
