package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Compute returns the hex-encoded HMAC-SHA256 digest binding a gateway order
// id and payment id to the shared secret. This is the same construction the
// gateway uses when it signs the checkout callback.
func Compute(gatewayOrderID, paymentID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the expected digest and compares it against the
// submitted signature in constant time. A length mismatch is an ordinary
// verification failure, not an error.
func Verify(gatewayOrderID, paymentID, submitted, secret string) bool {
	expected := Compute(gatewayOrderID, paymentID, secret)
	return hmac.Equal([]byte(expected), []byte(submitted))
}
