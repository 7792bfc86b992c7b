package webhookingester

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// signaturePrefix is the scheme tag carried in the signature header.
const signaturePrefix = "sha256="

// VerifySignature checks an HMAC-SHA256 payload signature of the form
// "sha256=<hex>" against the shared secret. Comparison is constant-time.
// A missing or malformed header verifies false, never errors.
func VerifySignature(body []byte, header, secret string) bool {
	if !strings.HasPrefix(header, signaturePrefix) {
		return false
	}

	want, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}
