package services

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/coopa/backend/internal/models"
	"github.com/coopa/backend/internal/repository"
	"github.com/google/uuid"
)

type PurchaseRequestInput struct {
	ItemName    string   `json:"itemName" validate:"required,max=200"`
	Quantity    *int     `json:"quantity" validate:"omitempty,gte=1"`
	TargetPrice *float64 `json:"targetPrice" validate:"omitempty,gte=0"`
	CoopID      string   `json:"coopId" validate:"max=128"`
	Notes       string   `json:"notes" validate:"max=1000"`
}

type RequestService struct {
	requests repository.RequestRepository
	now      func() time.Time
}

func NewRequestService(requests repository.RequestRepository) *RequestService {
	return &RequestService{
		requests: requests,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a purchase request. Quantity defaults to 1.
func (s *RequestService) Create(ctx context.Context, userID, kind string, in PurchaseRequestInput) (*models.PurchaseRequest, error) {
	item := strings.TrimSpace(in.ItemName)
	if item == "" {
		return nil, newAppError(ErrValidation, "itemName is required", nil)
	}
	quantity := 1
	if in.Quantity != nil {
		if *in.Quantity < 1 {
			return nil, newAppError(ErrValidation, "quantity must be a positive integer", nil)
		}
		quantity = *in.Quantity
	}

	req := &models.PurchaseRequest{
		ID:          uuid.New().String(),
		Kind:        kind,
		UserID:      userID,
		CoopID:      in.CoopID,
		ItemName:    item,
		Quantity:    quantity,
		TargetPrice: in.TargetPrice,
		Notes:       in.Notes,
		Status:      "open",
		CreatedAt:   s.now(),
	}
	if err := s.requests.CreateRequest(ctx, req); err != nil {
		return nil, fromRepository(err, "request")
	}

	log.Printf("[REQUEST] %s request %s created by %s", kind, req.ID, userID)
	return req, nil
}
