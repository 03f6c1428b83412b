package services

import (
	"context"
	"testing"

	"github.com/coopa/backend/internal/models"
	"github.com/coopa/backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCooperativeService_Register(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := NewCooperativeService(store)

	coop, err := svc.Register(ctx, "user-1", RegisterCooperativeInput{Name: "  Ikeja Farmers  ", Address: "12 Allen Ave"})
	require.NoError(t, err)
	assert.Equal(t, "Ikeja Farmers", coop.Name)
	assert.Equal(t, models.CoopStatusPending, coop.Status)
	assert.Equal(t, "user-1", coop.AdminID)

	u, err := ResolveUser(ctx, store, "user-1")
	require.NoError(t, err)
	assert.True(t, u.IsGroupAdminOf(coop.ID))

	_, err = svc.Register(ctx, "user-1", RegisterCooperativeInput{Name: "Second"})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = svc.Register(ctx, "user-2", RegisterCooperativeInput{Name: "   "})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCooperativeService_Review(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := NewCooperativeService(store)

	coop, err := svc.Register(ctx, "user-1", RegisterCooperativeInput{Name: "Ikeja Farmers"})
	require.NoError(t, err)

	_, err = svc.ListPending(ctx, member)
	assert.ErrorIs(t, err, ErrForbidden)

	pending, err := svc.ListPending(ctx, superAdmin)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, coop.ID, pending[0].ID)

	_, err = svc.Review(ctx, coopAdmin, ReviewCooperativeInput{CoopID: coop.ID, Action: "approve"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Review(ctx, superAdmin, ReviewCooperativeInput{CoopID: coop.ID, Action: "maybe"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Review(ctx, superAdmin, ReviewCooperativeInput{CoopID: "missing", Action: "approve"})
	assert.ErrorIs(t, err, ErrNotFound)

	reviewed, err := svc.Review(ctx, superAdmin, ReviewCooperativeInput{CoopID: coop.ID, Action: "approve"})
	require.NoError(t, err)
	assert.Equal(t, models.CoopStatusApproved, reviewed.Status)
	assert.Equal(t, superAdmin.ID, reviewed.ReviewedBy)
	assert.NotNil(t, reviewed.ApprovedAt)

	pending, err = svc.ListPending(ctx, superAdmin)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestResolveUser(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	store.PutUser(models.User{ID: "root", Role: models.UserRoleSuperAdmin})

	u, err := ResolveUser(ctx, store, "root")
	require.NoError(t, err)
	assert.True(t, u.IsSuperAdmin())

	u, err = ResolveUser(ctx, store, "stranger")
	require.NoError(t, err)
	assert.Equal(t, models.UserRoleMember, u.Role)
	assert.False(t, u.IsGroupAdminOf(""))
}
