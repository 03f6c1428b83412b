package moniepoint

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

const SignatureHeader = "x-moniepoint-signature"

const (
	EventPaymentReceived     = "payment.received"
	EventSettlementCompleted = "settlement.completed"
	EventSettlementFailed    = "settlement.failed"
)

// Sign returns the hex HMAC-SHA256 of payload under secret.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares the received signature against the expected one
// in constant time. An empty secret never verifies.
func VerifySignature(secret string, payload []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(got, mac.Sum(nil))
}

// WebhookEvent is the envelope of every gateway callback.
type WebhookEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type PaymentReceived struct {
	Reference           string  `json:"reference"`
	Amount              float64 `json:"amount"`
	AccountNumber       string  `json:"account_number"`
	CustomerID          string  `json:"customer_id"`
	CustomerName        string  `json:"customer_name"`
	SourceBankCode      string  `json:"source_bank_code"`
	SourceAccountNumber string  `json:"source_account_number"`
	PaidAt              string  `json:"paid_at"`
}

type SettlementUpdate struct {
	TransactionID string `json:"transaction_id"`
	Reference     string `json:"reference"`
	AccountNumber string `json:"account_number"`
	Reason        string `json:"reason"`
}
