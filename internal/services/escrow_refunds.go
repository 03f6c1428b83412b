package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/coopa/backend/internal/events"
	"github.com/coopa/backend/internal/models"
	"github.com/coopa/backend/internal/moniepoint"
	"github.com/coopa/backend/internal/repository"
)

type RefundOutcome struct {
	Escrow    *models.Escrow  `json:"escrow"`
	Succeeded []models.Refund `json:"succeeded"`
	Failed    []models.Refund `json:"failed"`
}

// Complete reports whether every deposit has been returned.
func (o *RefundOutcome) Complete() bool {
	return o.Escrow != nil && o.Escrow.Status == models.EscrowRefunded
}

// RefundReference is the idempotency reference sent with a member refund.
func RefundReference(depositReference string) string {
	return "COOPA-REFUND-" + depositReference
}

func (s *EscrowService) canCancel(actor *models.User, e *models.Escrow) bool {
	if actor == nil {
		return true
	}
	return actor.IsSuperAdmin() || actor.IsGroupAdminOf(e.CoopID)
}

// RefundEscrow returns every deposit not yet refunded to its payer. A nil
// actor marks a system-initiated refund after the deadline. Refunds for
// individual deposits are attempted even if earlier ones fail; the escrow
// stays refunding until a retry succeeds for the remainder.
//
// Each deposit is claimed with a pending refund record in the same
// version-checked transaction that moves the escrow to refunding, so
// overlapping calls never send the same deposit to the gateway twice.
func (s *EscrowService) RefundEscrow(ctx context.Context, actor *models.User, escrowID, reason string) (*RefundOutcome, error) {
	if err := s.gatewayReady(); err != nil {
		return nil, err
	}

	var (
		e        *models.Escrow
		previous models.EscrowStatus
		claims   []refundClaim
		inFlight int
	)
	err := s.transition(ctx, func(ctx context.Context, tx repository.EscrowStore) error {
		claims, inFlight = nil, 0

		current, err := s.loadForUpdate(ctx, tx, escrowID)
		if err != nil {
			return err
		}
		if !s.canCancel(actor, current) {
			return newAppError(ErrForbidden, "only cooperative or platform admins can cancel an escrow", nil)
		}
		switch current.Status {
		case models.EscrowCollecting, models.EscrowGroupApproved:
			if actor == nil && (current.Deadline == nil || !s.now().After(*current.Deadline)) {
				return newAppError(ErrInvalidTransition, "escrow deadline has not passed", nil)
			}
		case models.EscrowRefunding:
		default:
			return invalidTransition(current, "refund")
		}
		previous = current.Status

		deposits, err := tx.ListDeposits(ctx, current.ID)
		if err != nil {
			return err
		}
		history, err := tx.ListRefunds(ctx, current.ID)
		if err != nil {
			return err
		}
		claimed := models.ClaimedReferences(history)
		for _, dep := range deposits {
			switch claimed[dep.Reference] {
			case models.RefundSucceeded:
				continue
			case models.RefundPending:
				inFlight++
				continue
			}
			refund := &models.Refund{
				ID:               s.newID(),
				EscrowID:         current.ID,
				DepositReference: dep.Reference,
				Amount:           dep.Amount,
				Status:           models.RefundPending,
				Timestamp:        s.now(),
			}
			if err := tx.AppendRefund(ctx, refund); err != nil {
				return err
			}
			claims = append(claims, refundClaim{refund: refund, deposit: dep})
		}

		e = current
		if current.Status == models.EscrowRefunding && len(claims) == 0 {
			return nil
		}
		// The version bump makes a concurrent claim on the same escrow retry.
		current.Status = models.EscrowRefunding
		return s.save(ctx, tx, current)
	})
	if err != nil {
		return nil, fromRepository(err, "escrow")
	}
	if previous != models.EscrowRefunding {
		actorID := "system"
		if actor != nil {
			actorID = actor.ID
		}
		s.audit.LogTransition(e.ID, actorID, string(previous), string(models.EscrowRefunding))
		log.Printf("[ESCROW] Refunding escrow %s: %s", e.ID, reason)
	}

	out := &RefundOutcome{Escrow: e}
	for _, c := range claims {
		refund, err := s.refundDeposit(ctx, e, c)
		if err != nil {
			return nil, fromRepository(err, "escrow")
		}
		if refund.Status == models.RefundSucceeded {
			out.Succeeded = append(out.Succeeded, *refund)
		} else {
			out.Failed = append(out.Failed, *refund)
		}
	}

	if len(out.Failed) > 0 {
		s.refreshOutcome(ctx, out)
		details := make(map[string]string, len(out.Failed))
		for _, f := range out.Failed {
			details[f.DepositReference] = f.Error
		}
		appErr := newAppError(ErrGateway,
			fmt.Sprintf("%d of %d refunds failed, retry to resend the remainder", len(out.Failed), len(out.Failed)+len(out.Succeeded)), nil)
		appErr.Details = details
		return out, appErr
	}
	if inFlight > 0 {
		s.refreshOutcome(ctx, out)
		return out, newAppError(ErrConflict,
			fmt.Sprintf("%d refunds for this escrow are already in progress, retry once they complete", inFlight), nil)
	}

	finalized := false
	err = s.transition(ctx, func(ctx context.Context, tx repository.EscrowStore) error {
		finalized = false
		current, err := s.loadForUpdate(ctx, tx, e.ID)
		if err != nil {
			return err
		}
		out.Escrow = current
		if current.Status != models.EscrowRefunding {
			return nil
		}
		deposits, err := tx.ListDeposits(ctx, current.ID)
		if err != nil {
			return err
		}
		history, err := tx.ListRefunds(ctx, current.ID)
		if err != nil {
			return err
		}
		done := models.RefundedReferences(history)
		for _, dep := range deposits {
			if !done[dep.Reference] {
				return nil
			}
		}
		now := s.now()
		current.Status = models.EscrowRefunded
		current.RefundedAt = &now
		if err := s.save(ctx, tx, current); err != nil {
			return err
		}
		finalized = true
		return nil
	})
	if err != nil {
		return nil, fromRepository(err, "escrow")
	}
	if !finalized {
		if out.Complete() {
			return out, nil
		}
		return out, newAppError(ErrConflict, "escrow has deposits still to refund, retry the request", nil)
	}

	s.audit.LogTransition(out.Escrow.ID, "", string(models.EscrowRefunding), string(models.EscrowRefunded))
	s.emit(ctx, events.EscrowRefunded, out.Escrow, map[string]any{
		"refunds": len(out.Succeeded),
		"reason":  reason,
	})
	s.archive(ctx, out.Escrow)
	return out, nil
}

type refundClaim struct {
	refund  *models.Refund
	deposit models.Deposit
}

func (s *EscrowService) refreshOutcome(ctx context.Context, out *RefundOutcome) {
	if latest, err := s.store.GetEscrow(ctx, out.Escrow.ID); err == nil {
		out.Escrow = latest
	}
}

// refundDeposit sends one claimed refund and records its outcome. Only
// storage failures are returned as errors; gateway failures become failed
// records, which release the claim for a later retry.
func (s *EscrowService) refundDeposit(ctx context.Context, e *models.Escrow, c refundClaim) (*models.Refund, error) {
	dep := c.deposit
	refund := c.refund
	refund.Status = models.RefundFailed

	if dep.SourceAccountNumber == "" || dep.SourceBankCode == "" {
		refund.Error = "deposit has no source account to refund to"
	} else {
		result, err := s.gateway.RefundFunds(ctx, moniepoint.Transfer{
			SourceAccount:            e.AccountNumber(),
			Amount:                   dep.Amount,
			DestinationBankCode:      dep.SourceBankCode,
			DestinationAccountNumber: dep.SourceAccountNumber,
			DestinationAccountName:   dep.MemberName,
			Reference:                RefundReference(dep.Reference),
		})
		switch {
		case err != nil:
			log.Printf("[ESCROW] Refund of %s for escrow %s failed: %v", dep.Reference, e.ID, err)
			refund.Error = "payment provider rejected the refund"
		case !result.Accepted():
			refund.TransactionID = result.TransactionID
			refund.Error = fmt.Sprintf("refund returned status %q", result.Status)
		default:
			refund.TransactionID = result.TransactionID
			refund.Status = models.RefundSucceeded
		}
	}
	refund.Timestamp = s.now()

	err := s.transition(ctx, func(ctx context.Context, tx repository.EscrowStore) error {
		if err := tx.CompleteRefund(ctx, refund); err != nil {
			return err
		}
		if refund.Status != models.RefundSucceeded {
			return nil
		}
		deposits, err := tx.ListDeposits(ctx, e.ID)
		if err != nil {
			return err
		}
		verified := false
		for _, d := range deposits {
			if d.Reference == dep.Reference {
				verified = d.Verified
				break
			}
		}
		if !verified {
			return nil
		}
		current, err := s.loadForUpdate(ctx, tx, e.ID)
		if err != nil {
			return err
		}
		if err := tx.SetDepositVerified(ctx, e.ID, dep.Reference, false); err != nil {
			return err
		}
		current.CollectedAmount -= dep.Amount
		return s.save(ctx, tx, current)
	})
	if err != nil {
		return nil, err
	}

	s.audit.LogTransfer("REFUND", e.ID, refund.TransactionID, refund.Amount, string(refund.Status))
	return refund, nil
}

// RefundExpired refunds every open escrow past its deadline and returns
// how many were fully refunded.
func (s *EscrowService) RefundExpired(ctx context.Context) (int, error) {
	expired, err := s.store.ListEscrowsPastDeadline(ctx, s.now())
	if err != nil {
		return 0, err
	}

	refunded := 0
	for _, e := range expired {
		out, err := s.RefundEscrow(ctx, nil, e.ID, "deadline passed")
		if err != nil {
			log.Printf("[ESCROW] Deadline refund for %s incomplete: %v", e.ID, err)
			continue
		}
		if out.Complete() {
			refunded++
		}
	}
	return refunded, nil
}

// RunDeadlineSweep calls RefundExpired every interval until ctx is done.
func (s *EscrowService) RunDeadlineSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.RefundExpired(ctx); err != nil {
				log.Printf("[ESCROW] Deadline sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("[ESCROW] Deadline sweep refunded %d escrows", n)
			}
		}
	}
}
