package services

import (
	"context"
	"errors"
	"log"
	"math"
	"time"

	"github.com/coopa/backend/internal/events"
	"github.com/coopa/backend/internal/models"
	"github.com/coopa/backend/internal/repository"
)

type DepositInput struct {
	AccountNumber       string
	Reference           string
	Amount              int64
	MemberID            string
	MemberName          string
	SourceBankCode      string
	SourceAccountNumber string
	PaidAt              time.Time
}

type DepositOutcome struct {
	Escrow    *models.Escrow  `json:"escrow"`
	Deposit   *models.Deposit `json:"deposit,omitempty"`
	Duplicate bool            `json:"duplicate"`
	Counted   bool            `json:"counted"`
}

// MaxAmount bounds every amount in kobo so sums of two amounts cannot
// overflow int64.
const MaxAmount int64 = math.MaxInt64 / 2

const (
	noteNotCollecting = "escrow not collecting"
	noteOverpayment   = "exceeds escrow total"
)

// RecordDeposit appends a gateway-confirmed payment. It counts toward the
// collected amount only while the escrow is collecting and the total plus
// tolerance is not exceeded; other payments are kept unverified so they can
// be refunded. A reference already seen for the escrow is a no-op.
func (s *EscrowService) RecordDeposit(ctx context.Context, in DepositInput) (*DepositOutcome, error) {
	if in.Reference == "" || in.AccountNumber == "" {
		return nil, newAppError(ErrValidation, "reference and account_number are required", nil)
	}
	if in.Amount <= 0 || in.Amount > MaxAmount {
		return nil, newAppError(ErrValidation, "amount must be positive and within range", nil)
	}

	target, err := s.store.GetEscrowByAccountNumber(ctx, in.AccountNumber)
	if err != nil {
		return nil, fromRepository(err, "escrow for account")
	}

	timestamp := in.PaidAt
	if timestamp.IsZero() {
		timestamp = s.now()
	}

	var out *DepositOutcome
	err = s.transition(ctx, func(ctx context.Context, tx repository.EscrowStore) error {
		e, err := s.loadForUpdate(ctx, tx, target.ID)
		if err != nil {
			return err
		}

		dep := &models.Deposit{
			ID:                  s.newID(),
			EscrowID:            e.ID,
			MemberID:            in.MemberID,
			MemberName:          in.MemberName,
			Amount:              in.Amount,
			Reference:           in.Reference,
			SourceBankCode:      in.SourceBankCode,
			SourceAccountNumber: in.SourceAccountNumber,
			Timestamp:           timestamp,
		}
		switch {
		case e.Status != models.EscrowCollecting:
			dep.Note = noteNotCollecting
		case in.Amount > e.TotalAmount+s.cfg.OverpaymentTolerance-e.CollectedAmount:
			dep.Note = noteOverpayment
		default:
			dep.Verified = true
		}

		if err := tx.AppendDeposit(ctx, dep); err != nil {
			if errors.Is(err, repository.ErrDuplicateReference) {
				out = &DepositOutcome{Escrow: e, Duplicate: true}
				return nil
			}
			return err
		}

		if dep.Verified {
			e.CollectedAmount += dep.Amount
			if err := s.save(ctx, tx, e); err != nil {
				return err
			}
		}
		out = &DepositOutcome{Escrow: e, Deposit: dep, Counted: dep.Verified}
		return nil
	})
	if err != nil {
		return nil, fromRepository(err, "escrow")
	}

	if out.Duplicate {
		log.Printf("[ESCROW] Duplicate deposit %s for escrow %s ignored", in.Reference, out.Escrow.ID)
		return out, nil
	}

	s.audit.LogDeposit(out.Escrow.ID, in.Reference, in.Amount, out.Counted)
	if !out.Counted {
		log.Printf("[ESCROW] Deposit %s for escrow %s held unverified: %s", in.Reference, out.Escrow.ID, out.Deposit.Note)
	}
	s.emit(ctx, events.DepositReceived, out.Escrow, map[string]any{
		"reference":       in.Reference,
		"amount":          in.Amount,
		"memberId":        in.MemberID,
		"counted":         out.Counted,
		"collectedAmount": out.Escrow.CollectedAmount,
		"totalAmount":     out.Escrow.TotalAmount,
	})
	return out, nil
}
