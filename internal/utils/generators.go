package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// ReceiptForOrder derives the gateway idempotency receipt from the local
// order id. Retried mint calls for the same order always carry the same
// receipt so the gateway can dedupe them. Gateways cap receipts at 40 chars,
// hence the stripped form.
func ReceiptForOrder(orderID string) string {
	return "rcpt_" + strings.ReplaceAll(orderID, "-", "")
}

// UnlockReceiptForOrder is the receipt for a song order's unlock payment,
// kept distinct from the advance receipt so the gateway mints a second order.
func UnlockReceiptForOrder(orderID string) string {
	return "ulk_" + strings.ReplaceAll(orderID, "-", "")
}

// GenerateAttemptID produces an id for payment-attempt audit rows.
func GenerateAttemptID() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999))
	return fmt.Sprintf("att_%d_%06d", timestamp, randomNum.Int64())
}
