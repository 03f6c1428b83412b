package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coopa/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedEscrow(t *testing.T, store *MemoryStore) *models.Escrow {
	t.Helper()
	e := &models.Escrow{
		ID:          "esc-1",
		RequestID:   "req-1",
		CoopID:      "coop-1",
		TotalAmount: 10000,
		Status:      models.EscrowCollecting,
		Account:     &models.VirtualAccount{AccountNumber: "9012345678"},
	}
	require.NoError(t, store.CreateEscrow(context.Background(), e))
	return e
}

func TestMemoryStore_Escrows(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seedEscrow(t, store)

	t.Run("lookup by account number", func(t *testing.T) {
		e, err := store.GetEscrowByAccountNumber(ctx, "9012345678")
		require.NoError(t, err)
		assert.Equal(t, "esc-1", e.ID)
	})

	t.Run("duplicate request id", func(t *testing.T) {
		err := store.CreateEscrow(ctx, &models.Escrow{ID: "esc-2", RequestID: "req-1"})
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("returned records are copies", func(t *testing.T) {
		e, _ := store.GetEscrow(ctx, "esc-1")
		e.Account.AccountNumber = "changed"
		again, _ := store.GetEscrow(ctx, "esc-1")
		assert.Equal(t, "9012345678", again.Account.AccountNumber)
	})

	t.Run("optimistic locking", func(t *testing.T) {
		first, _ := store.GetEscrow(ctx, "esc-1")
		second, _ := store.GetEscrow(ctx, "esc-1")

		first.CollectedAmount = 500
		require.NoError(t, store.SaveEscrow(ctx, first))

		second.CollectedAmount = 700
		assert.ErrorIs(t, store.SaveEscrow(ctx, second), ErrVersionConflict)

		stored, _ := store.GetEscrow(ctx, "esc-1")
		assert.Equal(t, int64(500), stored.CollectedAmount)
	})
}

func TestMemoryStore_WithinTx(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seedEscrow(t, store)

	t.Run("rollback discards writes", func(t *testing.T) {
		err := store.WithinTx(ctx, func(ctx context.Context, tx EscrowStore) error {
			require.NoError(t, tx.AppendDeposit(ctx, &models.Deposit{EscrowID: "esc-1", Reference: "ref-1", Amount: 100, Verified: true}))
			return errors.New("abort")
		})
		assert.Error(t, err)

		deps, _ := store.ListDeposits(ctx, "esc-1")
		assert.Empty(t, deps)
	})

	t.Run("commit keeps writes", func(t *testing.T) {
		err := store.WithinTx(ctx, func(ctx context.Context, tx EscrowStore) error {
			return tx.AppendDeposit(ctx, &models.Deposit{EscrowID: "esc-1", Reference: "ref-1", Amount: 100, Verified: true})
		})
		require.NoError(t, err)

		deps, _ := store.ListDeposits(ctx, "esc-1")
		assert.Len(t, deps, 1)
	})

	t.Run("duplicate reference per escrow", func(t *testing.T) {
		err := store.AppendDeposit(ctx, &models.Deposit{EscrowID: "esc-1", Reference: "ref-1"})
		assert.ErrorIs(t, err, ErrDuplicateReference)

		assert.NoError(t, store.AppendDeposit(ctx, &models.Deposit{EscrowID: "esc-other", Reference: "ref-1"}))
	})
}

func TestMemoryStore_PastDeadline(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	require.NoError(t, store.CreateEscrow(ctx, &models.Escrow{ID: "a", RequestID: "a", Status: models.EscrowCollecting, Deadline: &past}))
	require.NoError(t, store.CreateEscrow(ctx, &models.Escrow{ID: "b", RequestID: "b", Status: models.EscrowCollecting, Deadline: &future}))
	require.NoError(t, store.CreateEscrow(ctx, &models.Escrow{ID: "c", RequestID: "c", Status: models.EscrowReleased, Deadline: &past}))
	require.NoError(t, store.CreateEscrow(ctx, &models.Escrow{ID: "d", RequestID: "d", Status: models.EscrowCollecting}))

	expired, err := store.ListEscrowsPastDeadline(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "a", expired[0].ID)
}

func TestMemoryStore_Cooperatives(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	require.NoError(t, store.RegisterCooperative(ctx, &models.Cooperative{ID: "coop-1", Name: "Unity", AdminID: "u1", Status: models.CoopStatusPending, CreatedAt: now}))

	pending, err := store.HasPendingCooperative(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, pending)

	u, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.UserRoleCoopAdmin, u.Role)
	assert.Equal(t, "coop-1", u.CoopID)

	require.NoError(t, store.UpdateCooperativeStatus(ctx, "coop-1", models.CoopStatusApproved, "admin", &now, now))
	list, _ := store.ListCooperativesByStatus(ctx, models.CoopStatusPending)
	assert.Empty(t, list)

	assert.ErrorIs(t, store.UpdateCooperativeStatus(ctx, "nope", models.CoopStatusApproved, "admin", nil, now), ErrNotFound)
}

func TestMemoryStore_RefundClaims(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seedEscrow(t, store)

	claim := &models.Refund{ID: "rf-1", EscrowID: "esc-1", DepositReference: "ref-1", Amount: 4000, Status: models.RefundPending}
	require.NoError(t, store.AppendRefund(ctx, claim))

	second := &models.Refund{ID: "rf-2", EscrowID: "esc-1", DepositReference: "ref-1", Amount: 4000, Status: models.RefundPending}
	assert.ErrorIs(t, store.AppendRefund(ctx, second), ErrVersionConflict)

	failed := *claim
	failed.Status = models.RefundFailed
	failed.Error = "timeout"
	require.NoError(t, store.CompleteRefund(ctx, &failed))
	assert.ErrorIs(t, store.CompleteRefund(ctx, &failed), ErrNotFound)

	// A failed attempt releases the deposit for another claim.
	require.NoError(t, store.AppendRefund(ctx, second))

	refunds, err := store.ListRefunds(ctx, "esc-1")
	require.NoError(t, err)
	require.Len(t, refunds, 2)
	assert.Equal(t, models.RefundFailed, refunds[0].Status)
	assert.Equal(t, "timeout", refunds[0].Error)
	assert.Equal(t, models.RefundPending, refunds[1].Status)
	assert.Equal(t, map[string]models.RefundStatus{"ref-1": models.RefundPending}, models.ClaimedReferences(refunds))
}
