package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/coopa/backend/internal/models"
)

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := s.q.QueryRowContext(ctx, `SELECT id, email, full_name, role, coop_id, created_at, updated_at
		FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.FullName, &u.Role, &u.CoopID, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) UpsertUserRole(ctx context.Context, id, role, coopID string) error {
	_, err := s.q.ExecContext(ctx, `INSERT INTO users (id, role, coop_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (id) DO UPDATE SET role = EXCLUDED.role, coop_id = EXCLUDED.coop_id, updated_at = EXCLUDED.updated_at`,
		id, role, coopID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update user role: %w", err)
	}
	return nil
}

func (s *PostgresStore) RegisterCooperative(ctx context.Context, c *models.Cooperative) error {
	return s.WithinTx(ctx, func(ctx context.Context, tx EscrowStore) error {
		pg := tx.(*PostgresStore)
		_, err := pg.q.ExecContext(ctx, `INSERT INTO cooperatives (id, name, address, admin_id, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			c.ID, c.Name, c.Address, c.AdminID, c.Status, c.CreatedAt, c.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert cooperative: %w", err)
		}
		return pg.UpsertUserRole(ctx, c.AdminID, models.UserRoleCoopAdmin, c.ID)
	})
}

const coopColumns = `id, name, address, admin_id, status, reviewed_by, approved_at, created_at, updated_at`

func scanCooperative(row scanner) (*models.Cooperative, error) {
	var (
		c          models.Cooperative
		approvedAt sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Address, &c.AdminID, &c.Status, &c.ReviewedBy, &approvedAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.ApprovedAt = timePtr(approvedAt)
	return &c, nil
}

func (s *PostgresStore) GetCooperative(ctx context.Context, id string) (*models.Cooperative, error) {
	c, err := scanCooperative(s.q.QueryRowContext(ctx, `SELECT `+coopColumns+` FROM cooperatives WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cooperative: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListCooperativesByStatus(ctx context.Context, status string) ([]models.Cooperative, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+coopColumns+` FROM cooperatives WHERE status = $1 ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list cooperatives: %w", err)
	}
	defer rows.Close()

	coops := []models.Cooperative{}
	for rows.Next() {
		c, err := scanCooperative(rows)
		if err != nil {
			return nil, err
		}
		coops = append(coops, *c)
	}
	return coops, rows.Err()
}

func (s *PostgresStore) HasPendingCooperative(ctx context.Context, adminID string) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM cooperatives WHERE admin_id = $1 AND status = 'pending')`, adminID).
		Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check pending cooperative: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) UpdateCooperativeStatus(ctx context.Context, id, status, reviewedBy string, approvedAt *time.Time, now time.Time) error {
	result, err := s.q.ExecContext(ctx, `UPDATE cooperatives SET status = $1, reviewed_by = $2, approved_at = $3, updated_at = $4 WHERE id = $5`,
		status, reviewedBy, nullTime(approvedAt), now, id)
	if err != nil {
		return fmt.Errorf("failed to update cooperative: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreateRequest(ctx context.Context, r *models.PurchaseRequest) error {
	_, err := s.q.ExecContext(ctx, `INSERT INTO purchase_requests (id, kind, user_id, coop_id, item_name, quantity, target_price, notes, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.Kind, r.UserID, r.CoopID, r.ItemName, r.Quantity, nullFloat(r.TargetPrice), r.Notes, r.Status, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert request: %w", err)
	}
	return nil
}
