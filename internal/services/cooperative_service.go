package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/coopa/backend/internal/models"
	"github.com/coopa/backend/internal/repository"
	"github.com/google/uuid"
)

type RegisterCooperativeInput struct {
	Name    string `json:"name" validate:"required,max=140"`
	Address string `json:"address" validate:"max=500"`
}

type ReviewCooperativeInput struct {
	CoopID string `json:"coopId" validate:"required"`
	Action string `json:"action" validate:"required,oneof=approve reject"`
}

type CooperativeService struct {
	coops repository.CooperativeRepository
	now   func() time.Time
}

func NewCooperativeService(coops repository.CooperativeRepository) *CooperativeService {
	return &CooperativeService{
		coops: coops,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Register creates a pending cooperative and makes the caller its admin.
func (s *CooperativeService) Register(ctx context.Context, userID string, in RegisterCooperativeInput) (*models.Cooperative, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, newAppError(ErrValidation, "cooperative name is required", nil)
	}

	pending, err := s.coops.HasPendingCooperative(ctx, userID)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, newAppError(ErrConflict, "you already have a cooperative awaiting approval", nil)
	}

	now := s.now()
	coop := &models.Cooperative{
		ID:        uuid.New().String(),
		Name:      name,
		Address:   strings.TrimSpace(in.Address),
		AdminID:   userID,
		Status:    models.CoopStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.coops.RegisterCooperative(ctx, coop); err != nil {
		return nil, fromRepository(err, "cooperative")
	}

	log.Printf("[COOP] Cooperative %s registered by %s", coop.ID, userID)
	return coop, nil
}

func (s *CooperativeService) ListPending(ctx context.Context, actor *models.User) ([]models.Cooperative, error) {
	if !actor.IsSuperAdmin() {
		return nil, newAppError(ErrForbidden, "super admin role required", nil)
	}
	return s.coops.ListCooperativesByStatus(ctx, models.CoopStatusPending)
}

// Review approves or rejects a cooperative registration.
func (s *CooperativeService) Review(ctx context.Context, actor *models.User, in ReviewCooperativeInput) (*models.Cooperative, error) {
	if !actor.IsSuperAdmin() {
		return nil, newAppError(ErrForbidden, "super admin role required", nil)
	}

	var status string
	switch in.Action {
	case "approve":
		status = models.CoopStatusApproved
	case "reject":
		status = models.CoopStatusRejected
	default:
		return nil, newAppError(ErrValidation, "action must be approve or reject", nil)
	}

	now := s.now()
	var approvedAt *time.Time
	if status == models.CoopStatusApproved {
		approvedAt = &now
	}
	if err := s.coops.UpdateCooperativeStatus(ctx, in.CoopID, status, actor.ID, approvedAt, now); err != nil {
		return nil, fromRepository(err, "cooperative")
	}

	coop, err := s.coops.GetCooperative(ctx, in.CoopID)
	if err != nil {
		return nil, fromRepository(err, "cooperative")
	}
	log.Printf("[COOP] Cooperative %s %s by %s", coop.ID, status, actor.ID)
	return coop, nil
}

// ResolveUser loads the caller's profile. Callers without a stored profile
// are plain members.
func ResolveUser(ctx context.Context, users repository.UserRepository, userID string) (*models.User, error) {
	u, err := users.GetUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return &models.User{ID: userID, Role: models.UserRoleMember}, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}
