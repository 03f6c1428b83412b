// Package repository persists escrows, their append-only histories, and the
// marketplace records around them. Every backend offers the same interfaces
// so workflows can run against Postgres in production and memory in tests.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/coopa/backend/internal/models"
)

var (
	ErrNotFound           = errors.New("record not found")
	ErrDuplicateReference = errors.New("deposit reference already recorded")
	ErrVersionConflict    = errors.New("optimistic lock failed")
	ErrAlreadyExists      = errors.New("record already exists")
)

type EscrowRepository interface {
	CreateEscrow(ctx context.Context, e *models.Escrow) error
	GetEscrow(ctx context.Context, id string) (*models.Escrow, error)
	GetEscrowByRequestID(ctx context.Context, requestID string) (*models.Escrow, error)
	GetEscrowByAccountNumber(ctx context.Context, accountNumber string) (*models.Escrow, error)
	// SaveEscrow writes e if its Version still matches the stored row and
	// bumps e.Version on success.
	SaveEscrow(ctx context.Context, e *models.Escrow) error
	ListEscrowsPastDeadline(ctx context.Context, now time.Time) ([]*models.Escrow, error)
}

type DepositRepository interface {
	// AppendDeposit returns ErrDuplicateReference when the reference is
	// already recorded for the escrow.
	AppendDeposit(ctx context.Context, d *models.Deposit) error
	ListDeposits(ctx context.Context, escrowID string) ([]models.Deposit, error)
	SetDepositVerified(ctx context.Context, escrowID, reference string, verified bool) error
}

type ApprovalRepository interface {
	AppendApproval(ctx context.Context, a *models.Approval) error
	ListApprovals(ctx context.Context, escrowID string) ([]models.Approval, error)
}

type RefundRepository interface {
	// AppendRefund returns ErrVersionConflict when the deposit already has a
	// pending or succeeded refund.
	AppendRefund(ctx context.Context, r *models.Refund) error
	// CompleteRefund records the outcome of a pending refund.
	CompleteRefund(ctx context.Context, r *models.Refund) error
	ListRefunds(ctx context.Context, escrowID string) ([]models.Refund, error)
}

// EscrowStore groups the repositories touched by one escrow transition.
type EscrowStore interface {
	EscrowRepository
	DepositRepository
	ApprovalRepository
	RefundRepository
	// WithinTx runs fn against a store whose writes commit together or not
	// at all. Calling it on a store already inside a transaction reuses it.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx EscrowStore) error) error
}

type UserRepository interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	UpsertUserRole(ctx context.Context, id, role, coopID string) error
}

type CooperativeRepository interface {
	// RegisterCooperative stores c and promotes c.AdminID to coop_admin of it.
	RegisterCooperative(ctx context.Context, c *models.Cooperative) error
	GetCooperative(ctx context.Context, id string) (*models.Cooperative, error)
	ListCooperativesByStatus(ctx context.Context, status string) ([]models.Cooperative, error)
	HasPendingCooperative(ctx context.Context, adminID string) (bool, error)
	UpdateCooperativeStatus(ctx context.Context, id, status, reviewedBy string, approvedAt *time.Time, now time.Time) error
}

type RequestRepository interface {
	CreateRequest(ctx context.Context, r *models.PurchaseRequest) error
}

// Store is everything the server needs from persistence.
type Store interface {
	EscrowStore
	UserRepository
	CooperativeRepository
	RequestRepository
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
