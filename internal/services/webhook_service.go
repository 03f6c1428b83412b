package services

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"time"

	"github.com/coopa/backend/internal/moniepoint"
)

type WebhookResult struct {
	Event     string `json:"event"`
	EscrowID  string `json:"escrowId,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Counted   bool   `json:"counted,omitempty"`
	Ignored   bool   `json:"ignored,omitempty"`
}

// WebhookService authenticates and applies Moniepoint callbacks.
type WebhookService struct {
	escrows *EscrowService
	secret  string
}

func NewWebhookService(escrows *EscrowService, secret string) *WebhookService {
	return &WebhookService{escrows: escrows, secret: secret}
}

// Handle verifies the signature over the raw body before parsing anything.
func (s *WebhookService) Handle(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	if s.secret == "" {
		return nil, newAppError(ErrNotConfigured, "webhook secret not configured", nil)
	}
	if !moniepoint.VerifySignature(s.secret, payload, signature) {
		return nil, newAppError(ErrUnauthorized, "invalid signature", nil)
	}

	var event moniepoint.WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil || event.Event == "" {
		return nil, newAppError(ErrValidation, "malformed webhook payload", err)
	}

	switch event.Event {
	case moniepoint.EventPaymentReceived:
		return s.paymentReceived(ctx, event)
	case moniepoint.EventSettlementCompleted, moniepoint.EventSettlementFailed:
		return s.settlementUpdate(ctx, event)
	}

	log.Printf("[WEBHOOK] Ignoring event %s", event.Event)
	return &WebhookResult{Event: event.Event, Ignored: true}, nil
}

func (s *WebhookService) paymentReceived(ctx context.Context, event moniepoint.WebhookEvent) (*WebhookResult, error) {
	var data moniepoint.PaymentReceived
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return nil, newAppError(ErrValidation, "malformed payment data", err)
	}
	if data.Reference == "" || data.AccountNumber == "" || data.Amount <= 0 {
		return nil, newAppError(ErrValidation, "reference, amount and account_number are required", nil)
	}
	if data.Amount > float64(MaxAmount) {
		return nil, newAppError(ErrValidation, "amount is out of range", nil)
	}
	amount := int64(math.Round(data.Amount))

	paidAt, _ := time.Parse(time.RFC3339, data.PaidAt)
	out, err := s.escrows.RecordDeposit(ctx, DepositInput{
		AccountNumber:       data.AccountNumber,
		Reference:           data.Reference,
		Amount:              amount,
		MemberID:            data.CustomerID,
		MemberName:          data.CustomerName,
		SourceBankCode:      data.SourceBankCode,
		SourceAccountNumber: data.SourceAccountNumber,
		PaidAt:              paidAt,
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[WEBHOOK] Payment %s of %d for %s (duplicate=%t counted=%t)",
		data.Reference, amount, data.AccountNumber, out.Duplicate, out.Counted)
	return &WebhookResult{
		Event:     event.Event,
		EscrowID:  out.Escrow.ID,
		Duplicate: out.Duplicate,
		Counted:   out.Counted,
	}, nil
}

func (s *WebhookService) settlementUpdate(ctx context.Context, event moniepoint.WebhookEvent) (*WebhookResult, error) {
	var data moniepoint.SettlementUpdate
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return nil, newAppError(ErrValidation, "malformed settlement data", err)
	}
	if data.AccountNumber == "" {
		return nil, newAppError(ErrValidation, "account_number is required", nil)
	}

	succeeded := event.Event == moniepoint.EventSettlementCompleted
	e, err := s.escrows.ApplySettlementUpdate(ctx, data.AccountNumber, data.TransactionID, succeeded, data.Reason)
	if err != nil {
		return nil, err
	}
	return &WebhookResult{Event: event.Event, EscrowID: e.ID}, nil
}
