package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/coopa/backend/internal/audit"
	"github.com/coopa/backend/internal/config"
	"github.com/coopa/backend/internal/events"
	"github.com/coopa/backend/internal/models"
	"github.com/coopa/backend/internal/moniepoint"
	"github.com/coopa/backend/internal/repository"
	"github.com/google/uuid"
)

const txRetries = 3

// EscrowService drives the escrow state machine. Every transition reads the
// current record, checks its guard and writes the result in one store
// transaction; gateway calls happen outside transactions.
type EscrowService struct {
	store     repository.EscrowStore
	gateway   moniepoint.Gateway
	publisher events.Publisher
	audit     *audit.AuditLogger
	cfg       *config.EscrowConfig
	now       func() time.Time
	newID     func() string
}

func NewEscrowService(store repository.EscrowStore, gateway moniepoint.Gateway, publisher events.Publisher, auditLogger *audit.AuditLogger, cfg *config.EscrowConfig) *EscrowService {
	if publisher == nil {
		publisher = events.LogPublisher{}
	}
	if auditLogger == nil {
		auditLogger = audit.NewAuditLogger()
	}
	if cfg == nil {
		cfg = config.LoadEscrowConfig()
	}
	return &EscrowService{
		store:     store,
		gateway:   gateway,
		publisher: publisher,
		audit:     auditLogger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.New().String() },
	}
}

type CreateEscrowInput struct {
	RequestID   string     `json:"requestId" validate:"required,max=128"`
	CoopID      string     `json:"coopId" validate:"required,max=128"`
	CoopName    string     `json:"coopName" validate:"max=140"`
	TotalAmount int64      `json:"totalAmount" validate:"required,gt=0"`
	MemberCount int        `json:"memberCount" validate:"required,gt=0"`
	Deadline    *time.Time `json:"deadline"`
}

type PlatformApprovalInput struct {
	EscrowID              string                `json:"escrowId" validate:"required"`
	Action                models.ApprovalAction `json:"action" validate:"omitempty,oneof=approved flagged"`
	Reason                string                `json:"reason" validate:"max=500"`
	SupplierBankCode      string                `json:"supplierBankCode" validate:"omitempty,bankcode"`
	SupplierAccountNumber string                `json:"supplierAccountNumber" validate:"omitempty,nuban"`
	SupplierName          string                `json:"supplierName" validate:"max=140"`
}

func (s *EscrowService) gatewayReady() error {
	return gatewayReady(s.gateway)
}

func gatewayReady(g moniepoint.Gateway) error {
	if g == nil {
		return newAppError(ErrNotConfigured, "payment provider not configured", nil)
	}
	if c, ok := g.(interface{ Configured() bool }); ok && !c.Configured() {
		return newAppError(ErrNotConfigured, "payment provider not configured", nil)
	}
	return nil
}

// transition runs fn inside a transaction and retries when a concurrent
// writer bumped the escrow version first.
func (s *EscrowService) transition(ctx context.Context, fn func(ctx context.Context, tx repository.EscrowStore) error) error {
	var err error
	for attempt := 0; attempt < txRetries; attempt++ {
		err = s.store.WithinTx(ctx, fn)
		if !errors.Is(err, repository.ErrVersionConflict) {
			return err
		}
	}
	return err
}

func (s *EscrowService) loadForUpdate(ctx context.Context, tx repository.EscrowStore, id string) (*models.Escrow, error) {
	e, err := tx.GetEscrow(ctx, id)
	if err != nil {
		return nil, fromRepository(err, "escrow")
	}
	return e, nil
}

func (s *EscrowService) save(ctx context.Context, tx repository.EscrowStore, e *models.Escrow) error {
	e.UpdatedAt = s.now()
	return tx.SaveEscrow(ctx, e)
}

func invalidTransition(e *models.Escrow, action string) *AppError {
	return newAppError(ErrInvalidTransition, fmt.Sprintf("cannot %s an escrow in status %s", action, e.Status), nil)
}

func (s *EscrowService) emit(ctx context.Context, eventType string, e *models.Escrow, data any) {
	if err := events.Emit(ctx, s.publisher, eventType, e.ID, data); err != nil {
		log.Printf("[ESCROW] Failed to publish %s for %s: %v", eventType, e.ID, err)
	}
}

// GetEscrow returns an escrow with its deposit, approval and refund history.
func (s *EscrowService) GetEscrow(ctx context.Context, id string) (*models.EscrowDetails, error) {
	e, err := s.store.GetEscrow(ctx, id)
	if err != nil {
		return nil, fromRepository(err, "escrow")
	}
	deposits, err := s.store.ListDeposits(ctx, id)
	if err != nil {
		return nil, err
	}
	approvals, err := s.store.ListApprovals(ctx, id)
	if err != nil {
		return nil, err
	}
	refunds, err := s.store.ListRefunds(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.EscrowDetails{
		Escrow:    e,
		Deposits:  deposits,
		Approvals: approvals,
		Refunds:   refunds,
		Active:    models.ActiveApprovals(approvals),
	}, nil
}

// CreateEscrow opens an escrow for a request and provisions its virtual
// account. Repeating the call for the same request returns the existing
// escrow; one left pending by a gateway failure is provisioned again.
func (s *EscrowService) CreateEscrow(ctx context.Context, actor *models.User, in CreateEscrowInput) (*models.Escrow, error) {
	if !actor.IsGroupAdminOf(in.CoopID) && !actor.IsSuperAdmin() {
		return nil, newAppError(ErrForbidden, "only the cooperative admin can open an escrow", nil)
	}
	if in.TotalAmount <= 0 || in.MemberCount <= 0 {
		return nil, newAppError(ErrValidation, "totalAmount and memberCount must be positive", nil)
	}
	if in.TotalAmount > MaxAmount {
		return nil, newAppError(ErrValidation, "totalAmount is out of range", nil)
	}
	if err := s.gatewayReady(); err != nil {
		return nil, err
	}

	e, err := s.store.GetEscrowByRequestID(ctx, in.RequestID)
	switch {
	case err == nil:
		if e.CoopID != in.CoopID {
			return nil, newAppError(ErrConflict, "request already has an escrow for another cooperative", nil)
		}
		if e.Status != models.EscrowPending {
			return e, nil
		}
	case errors.Is(err, repository.ErrNotFound):
		now := s.now()
		e = &models.Escrow{
			ID:          s.newID(),
			RequestID:   in.RequestID,
			CoopID:      in.CoopID,
			TotalAmount: in.TotalAmount,
			MemberCount: in.MemberCount,
			Status:      models.EscrowPending,
			Deadline:    in.Deadline,
			CreatedBy:   actor.ID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.store.CreateEscrow(ctx, e); err != nil {
			if errors.Is(err, repository.ErrAlreadyExists) {
				return s.store.GetEscrowByRequestID(ctx, in.RequestID)
			}
			return nil, err
		}
		s.audit.LogTransition(e.ID, actor.ID, "", string(models.EscrowPending))
	default:
		return nil, err
	}

	coopName := in.CoopName
	if coopName == "" {
		short := in.CoopID
		if len(short) > 8 {
			short = short[:8]
		}
		coopName = "Coopa Co-op " + short
	}

	acct, err := s.gateway.CreateVirtualAccount(ctx, in.RequestID, e.TotalAmount, coopName)
	if err != nil {
		s.audit.LogError(e.ID, "create_virtual_account", err)
		return nil, gatewayError("create virtual account", err)
	}

	err = s.transition(ctx, func(ctx context.Context, tx repository.EscrowStore) error {
		current, err := s.loadForUpdate(ctx, tx, e.ID)
		if err != nil {
			return err
		}
		if current.Status != models.EscrowPending {
			e = current
			return nil
		}
		current.Account = &models.VirtualAccount{
			AccountNumber: acct.AccountNumber,
			AccountName:   acct.AccountName,
			BankName:      acct.BankName,
			Reference:     acct.Reference,
		}
		current.Status = models.EscrowCollecting
		if err := s.save(ctx, tx, current); err != nil {
			return err
		}
		e = current
		return nil
	})
	if err != nil {
		return nil, fromRepository(err, "escrow")
	}

	s.audit.LogTransition(e.ID, actor.ID, string(models.EscrowPending), string(e.Status))
	s.emit(ctx, events.EscrowCreated, e, map[string]any{
		"requestId":     e.RequestID,
		"coopId":        e.CoopID,
		"totalAmount":   e.TotalAmount,
		"accountNumber": e.AccountNumber(),
	})
	log.Printf("[ESCROW] Escrow %s collecting into %s", e.ID, e.AccountNumber())
	return e, nil
}

// ApproveGroup records the cooperative admin decision. Approval requires the
// escrow to be fully funded; rejection is recorded without a status change.
func (s *EscrowService) ApproveGroup(ctx context.Context, actor *models.User, escrowID string, action models.ApprovalAction, reason string) (*models.Escrow, error) {
	if action == "" {
		action = models.ActionApproved
	}
	if action != models.ActionApproved && action != models.ActionRejected {
		return nil, newAppError(ErrValidation, "action must be approved or rejected", nil)
	}

	var e *models.Escrow
	err := s.transition(ctx, func(ctx context.Context, tx repository.EscrowStore) error {
		current, err := s.loadForUpdate(ctx, tx, escrowID)
		if err != nil {
			return err
		}
		if !actor.IsGroupAdminOf(current.CoopID) {
			return newAppError(ErrForbidden, "only the cooperative admin can approve this escrow", nil)
		}
		if current.Status != models.EscrowCollecting {
			return invalidTransition(current, "group-approve")
		}
		if action == models.ActionApproved && current.CollectedAmount < current.TotalAmount {
			return newAppError(ErrInvalidTransition,
				fmt.Sprintf("escrow is not fully funded: collected %d of %d", current.CollectedAmount, current.TotalAmount), nil)
		}

		if err := tx.AppendApproval(ctx, &models.Approval{
			ID:        s.newID(),
			EscrowID:  current.ID,
			AdminID:   actor.ID,
			Role:      models.RoleGroupAdmin,
			Action:    action,
			Reason:    reason,
			Timestamp: s.now(),
		}); err != nil {
			return err
		}

		if action == models.ActionApproved {
			current.Status = models.EscrowGroupApproved
			if err := s.save(ctx, tx, current); err != nil {
				return err
			}
		}
		e = current
		return nil
	})
	if err != nil {
		return nil, fromRepository(err, "escrow")
	}

	s.audit.LogApproval(e.ID, actor.ID, string(models.RoleGroupAdmin), string(action), reason)
	if action == models.ActionApproved {
		s.audit.LogTransition(e.ID, actor.ID, string(models.EscrowCollecting), string(e.Status))
		s.emit(ctx, events.EscrowApproved, e, map[string]any{"adminId": actor.ID})
	}
	return e, nil
}

// ApprovePlatform either flags the escrow back to collecting or verifies the
// gateway balance and settles to the supplier. A failed settlement leaves
// the escrow group_approved and returns a retryable error.
func (s *EscrowService) ApprovePlatform(ctx context.Context, actor *models.User, in PlatformApprovalInput) (*models.Escrow, error) {
	if !actor.IsSuperAdmin() {
		return nil, newAppError(ErrForbidden, "only platform admins can release escrows", nil)
	}
	if in.Action == models.ActionFlagged {
		return s.flag(ctx, actor, in.EscrowID, in.Reason)
	}
	if in.Action != "" && in.Action != models.ActionApproved {
		return nil, newAppError(ErrValidation, "action must be approved or flagged", nil)
	}
	if in.SupplierBankCode == "" || in.SupplierAccountNumber == "" || in.SupplierName == "" {
		return nil, newAppError(ErrValidation, "supplier bank details are required", nil)
	}
	if err := s.gatewayReady(); err != nil {
		return nil, err
	}

	e, err := s.store.GetEscrow(ctx, in.EscrowID)
	if err != nil {
		return nil, fromRepository(err, "escrow")
	}
	if e.Status != models.EscrowGroupApproved {
		return nil, invalidTransition(e, "release")
	}

	balance, err := s.gateway.CheckBalance(ctx, e.AccountNumber())
	if err != nil {
		s.audit.LogError(e.ID, "check_balance", err)
		return nil, gatewayError("check balance", err)
	}
	if balance.Balance < e.CollectedAmount {
		s.audit.LogError(e.ID, "check_balance", fmt.Errorf("balance %d below collected %d", balance.Balance, e.CollectedAmount))
		return nil, newAppError(ErrInsufficientBalance,
			fmt.Sprintf("virtual account balance %d is below collected amount %d", balance.Balance, e.CollectedAmount), nil)
	}

	// Claim the escrow so a concurrent approval cannot settle twice.
	err = s.transition(ctx, func(ctx context.Context, tx repository.EscrowStore) error {
		current, err := s.loadForUpdate(ctx, tx, in.EscrowID)
		if err != nil {
			return err
		}
		if current.Status != models.EscrowGroupApproved {
			return invalidTransition(current, "release")
		}
		current.Status = models.EscrowPlatformApproved
		current.SupplierBankCode = in.SupplierBankCode
		current.SupplierAccountNumber = in.SupplierAccountNumber
		current.SupplierName = in.SupplierName
		current.LastSettlementError = ""
		if err := s.save(ctx, tx, current); err != nil {
			return err
		}
		e = current
		return nil
	})
	if err != nil {
		return nil, fromRepository(err, "escrow")
	}

	result, err := s.gateway.SettleFunds(ctx, moniepoint.Transfer{
		SourceAccount:            e.AccountNumber(),
		Amount:                   e.CollectedAmount,
		DestinationBankCode:      e.SupplierBankCode,
		DestinationAccountNumber: e.SupplierAccountNumber,
		DestinationAccountName:   e.SupplierName,
		Reference:                SettlementReference(e.ID),
	})
	if err == nil && !result.Accepted() {
		err = fmt.Errorf("settlement %s returned status %q", result.TransactionID, result.Status)
	}
	if err != nil {
		s.audit.LogError(e.ID, "settle_funds", err)
		if revertErr := s.revertSettlement(ctx, e.ID, err.Error()); revertErr != nil {
			log.Printf("[ESCROW] Failed to revert escrow %s after settlement failure: %v", e.ID, revertErr)
		}
		return nil, gatewayError("settle funds", err)
	}

	s.audit.LogTransfer("SETTLEMENT", e.ID, result.TransactionID, e.CollectedAmount, result.Status)

	err = s.transition(ctx, func(ctx context.Context, tx repository.EscrowStore) error {
		current, err := s.loadForUpdate(ctx, tx, e.ID)
		if err != nil {
			return err
		}
		if err := tx.AppendApproval(ctx, &models.Approval{
			ID:        s.newID(),
			EscrowID:  current.ID,
			AdminID:   actor.ID,
			Role:      models.RolePlatformAdmin,
			Action:    models.ActionApproved,
			Timestamp: s.now(),
		}); err != nil {
			return err
		}
		current.SettlementTransactionID = result.TransactionID
		if result.Completed() {
			s.markReleased(current)
		}
		if err := s.save(ctx, tx, current); err != nil {
			return err
		}
		e = current
		return nil
	})
	if err != nil {
		return nil, fromRepository(err, "escrow")
	}

	s.audit.LogApproval(e.ID, actor.ID, string(models.RolePlatformAdmin), string(models.ActionApproved), "")
	if e.Status == models.EscrowReleased {
		s.afterRelease(ctx, e)
	} else {
		log.Printf("[ESCROW] Settlement %s for escrow %s is %s, awaiting confirmation", result.TransactionID, e.ID, result.Status)
	}
	return e, nil
}

// SettlementReference is the idempotency reference sent with a settlement.
func SettlementReference(escrowID string) string {
	return "COOPA-SETTLE-" + escrowID
}

func (s *EscrowService) flag(ctx context.Context, actor *models.User, escrowID, reason string) (*models.Escrow, error) {
	if reason == "" {
		return nil, newAppError(ErrValidation, "a reason is required when flagging", nil)
	}

	var e *models.Escrow
	err := s.transition(ctx, func(ctx context.Context, tx repository.EscrowStore) error {
		current, err := s.loadForUpdate(ctx, tx, escrowID)
		if err != nil {
			return err
		}
		if current.Status != models.EscrowGroupApproved {
			return invalidTransition(current, "flag")
		}
		if err := tx.AppendApproval(ctx, &models.Approval{
			ID:        s.newID(),
			EscrowID:  current.ID,
			AdminID:   actor.ID,
			Role:      models.RolePlatformAdmin,
			Action:    models.ActionFlagged,
			Reason:    reason,
			Timestamp: s.now(),
		}); err != nil {
			return err
		}
		current.Status = models.EscrowCollecting
		if err := s.save(ctx, tx, current); err != nil {
			return err
		}
		e = current
		return nil
	})
	if err != nil {
		return nil, fromRepository(err, "escrow")
	}

	s.audit.LogApproval(e.ID, actor.ID, string(models.RolePlatformAdmin), string(models.ActionFlagged), reason)
	s.audit.LogTransition(e.ID, actor.ID, string(models.EscrowGroupApproved), string(e.Status))
	s.emit(ctx, events.EscrowFlagged, e, map[string]any{"adminId": actor.ID, "reason": reason})
	return e, nil
}

func (s *EscrowService) revertSettlement(ctx context.Context, escrowID, reason string) error {
	return s.transition(ctx, func(ctx context.Context, tx repository.EscrowStore) error {
		current, err := s.loadForUpdate(ctx, tx, escrowID)
		if err != nil {
			return err
		}
		if current.Status != models.EscrowPlatformApproved {
			return nil
		}
		current.Status = models.EscrowGroupApproved
		current.LastSettlementError = reason
		return s.save(ctx, tx, current)
	})
}

func (s *EscrowService) markReleased(e *models.Escrow) {
	now := s.now()
	e.Status = models.EscrowReleased
	e.ReleasedAt = &now
	e.LastSettlementError = ""
}

// afterRelease notifies and then archives a released escrow.
func (s *EscrowService) afterRelease(ctx context.Context, e *models.Escrow) {
	s.audit.LogTransition(e.ID, "", string(models.EscrowPlatformApproved), string(models.EscrowReleased))
	s.emit(ctx, events.EscrowReleased, e, map[string]any{
		"amount":        e.CollectedAmount,
		"transactionId": e.SettlementTransactionID,
		"supplierName":  e.SupplierName,
	})
	s.archive(ctx, e)
	log.Printf("[ESCROW] Escrow %s released %d to %s", e.ID, e.CollectedAmount, e.SupplierName)
}

func (s *EscrowService) archive(ctx context.Context, e *models.Escrow) {
	err := s.transition(ctx, func(ctx context.Context, tx repository.EscrowStore) error {
		current, err := s.loadForUpdate(ctx, tx, e.ID)
		if err != nil {
			return err
		}
		if current.ArchivedAt != nil {
			*e = *current
			return nil
		}
		now := s.now()
		current.ArchivedAt = &now
		if err := s.save(ctx, tx, current); err != nil {
			return err
		}
		*e = *current
		return nil
	})
	if err != nil {
		log.Printf("[ESCROW] Failed to archive escrow %s: %v", e.ID, err)
	}
}

// ApplySettlementUpdate resolves a settlement the gateway accepted as
// pending.
func (s *EscrowService) ApplySettlementUpdate(ctx context.Context, accountNumber, transactionID string, succeeded bool, reason string) (*models.Escrow, error) {
	e, err := s.store.GetEscrowByAccountNumber(ctx, accountNumber)
	if err != nil {
		return nil, fromRepository(err, "escrow")
	}

	released, reverted := false, false
	err = s.transition(ctx, func(ctx context.Context, tx repository.EscrowStore) error {
		released, reverted = false, false
		current, err := s.loadForUpdate(ctx, tx, e.ID)
		if err != nil {
			return err
		}
		if current.Status != models.EscrowPlatformApproved {
			e = current
			return nil
		}
		if transactionID != "" && current.SettlementTransactionID != "" && transactionID != current.SettlementTransactionID {
			return newAppError(ErrConflict, "settlement transaction does not match escrow", nil)
		}
		if succeeded {
			s.markReleased(current)
			released = true
		} else {
			current.Status = models.EscrowGroupApproved
			current.LastSettlementError = reason
			reverted = true
		}
		if err := s.save(ctx, tx, current); err != nil {
			return err
		}
		e = current
		return nil
	})
	if err != nil {
		return nil, fromRepository(err, "escrow")
	}

	if released {
		s.afterRelease(ctx, e)
	} else if reverted {
		s.audit.LogTransition(e.ID, "", string(models.EscrowPlatformApproved), string(e.Status))
	}
	return e, nil
}
