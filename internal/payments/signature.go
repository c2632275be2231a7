package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// ErrMissingSecretKey means the adapter was handed an empty signing key.
// Signing with an empty key would produce signatures the gateway rejects (or
// worse, accepts in a misconfigured sandbox), so it is a hard error.
var ErrMissingSecretKey = errors.New("payments: missing signature secret key")

// Sign computes the gateway signature: HMAC-SHA256 over message, Base64
// (standard, padded) encoded. This must stay byte-identical to eSewa's own
// verification routine.
func Sign(secretKey, message string) (string, error) {
	if secretKey == "" {
		return "", ErrMissingSecretKey
	}
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// VerifySignature recomputes the signature for message and compares it to
// got in constant time. An empty secret never verifies.
func VerifySignature(secretKey, message, got string) bool {
	want, err := Sign(secretKey, message)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(want), []byte(got))
}
