// Package signature signs and verifies payment provider payloads with
// hex-encoded HMAC-SHA256.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Header carries the signature on provider requests and callbacks
const Header = "X-Signature"

// Sign returns the hex HMAC-SHA256 of payload under secret
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches payload. An empty secret never
// verifies, so an unconfigured rail rejects every callback.
func Verify(payload []byte, secret, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := Sign(payload, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}
