package services

import (
	"context"
	"testing"

	"github.com/coopa/backend/internal/models"
	"github.com/coopa/backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestService_Create(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := NewRequestService(store)

	req, err := svc.Create(ctx, "user-1", models.RequestKindSingle, PurchaseRequestInput{ItemName: " Fertilizer "})
	require.NoError(t, err)
	assert.Equal(t, "Fertilizer", req.ItemName)
	assert.Equal(t, 1, req.Quantity)
	assert.Equal(t, "open", req.Status)

	qty := 40
	price := 25000.0
	bulk, err := svc.Create(ctx, "user-1", models.RequestKindBulk, PurchaseRequestInput{ItemName: "Rice", Quantity: &qty, TargetPrice: &price, CoopID: "coop-1"})
	require.NoError(t, err)
	assert.Equal(t, 40, bulk.Quantity)
	assert.Equal(t, models.RequestKindBulk, bulk.Kind)
	require.NotNil(t, bulk.TargetPrice)
	assert.InDelta(t, 25000.0, *bulk.TargetPrice, 0.001)

	assert.Len(t, store.Requests(), 2)
}

func TestRequestService_CreateValidation(t *testing.T) {
	ctx := context.Background()
	svc := NewRequestService(repository.NewMemoryStore())

	_, err := svc.Create(ctx, "user-1", models.RequestKindSingle, PurchaseRequestInput{})
	assert.ErrorIs(t, err, ErrValidation)

	zero := 0
	_, err = svc.Create(ctx, "user-1", models.RequestKindSingle, PurchaseRequestInput{ItemName: "Rice", Quantity: &zero})
	assert.ErrorIs(t, err, ErrValidation)
}
