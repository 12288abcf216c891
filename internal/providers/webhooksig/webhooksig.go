// Package webhooksig signs and checks payment webhooks that carry a hex
// HMAC-SHA512 of the raw body, as Paystack and Monnify both do.
package webhooksig

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// Sign returns the hex HMAC-SHA512 of body keyed by secret.
func Sign(secret string, body []byte) string {
	return hex.EncodeToString(sum(secret, body))
}

// Valid reports whether signature matches body. An empty secret or
// signature never matches.
func Valid(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}

	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}

	return hmac.Equal(got, sum(secret, body))
}

func sum(secret string, body []byte) []byte {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)

	return mac.Sum(nil)
}
