package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/coopa/backend/internal/models"
)

const escrowColumns = `id, request_id, coop_id, total_amount, collected_amount, member_count, status,
	account_number, account_name, bank_name, account_reference,
	supplier_bank_code, supplier_account_number, supplier_name,
	settlement_transaction_id, last_settlement_error,
	deadline, released_at, refunded_at, archived_at,
	version, created_by, created_at, updated_at`

func scanEscrow(row scanner) (*models.Escrow, error) {
	var (
		e                                   models.Escrow
		acct                                models.VirtualAccount
		deadline, released, refunded, archd sql.NullTime
	)
	err := row.Scan(
		&e.ID, &e.RequestID, &e.CoopID, &e.TotalAmount, &e.CollectedAmount, &e.MemberCount, &e.Status,
		&acct.AccountNumber, &acct.AccountName, &acct.BankName, &acct.Reference,
		&e.SupplierBankCode, &e.SupplierAccountNumber, &e.SupplierName,
		&e.SettlementTransactionID, &e.LastSettlementError,
		&deadline, &released, &refunded, &archd,
		&e.Version, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if acct.AccountNumber != "" {
		e.Account = &acct
	}
	e.Deadline = timePtr(deadline)
	e.ReleasedAt = timePtr(released)
	e.RefundedAt = timePtr(refunded)
	e.ArchivedAt = timePtr(archd)
	return &e, nil
}

func accountFields(e *models.Escrow) (number, name, bank, ref string) {
	if e.Account == nil {
		return "", "", "", ""
	}
	return e.Account.AccountNumber, e.Account.AccountName, e.Account.BankName, e.Account.Reference
}

func (s *PostgresStore) CreateEscrow(ctx context.Context, e *models.Escrow) error {
	number, name, bank, ref := accountFields(e)
	_, err := s.q.ExecContext(ctx, `INSERT INTO escrows (`+escrowColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)`,
		e.ID, e.RequestID, e.CoopID, e.TotalAmount, e.CollectedAmount, e.MemberCount, e.Status,
		number, name, bank, ref,
		e.SupplierBankCode, e.SupplierAccountNumber, e.SupplierName,
		e.SettlementTransactionID, e.LastSettlementError,
		nullTime(e.Deadline), nullTime(e.ReleasedAt), nullTime(e.RefundedAt), nullTime(e.ArchivedAt),
		e.Version, e.CreatedBy, e.CreatedAt, e.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("escrow for request %s: %w", e.RequestID, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert escrow: %w", err)
	}
	return nil
}

func (s *PostgresStore) getEscrowBy(ctx context.Context, column, value string) (*models.Escrow, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE `+column+` = $1`, value)
	e, err := scanEscrow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load escrow: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) GetEscrow(ctx context.Context, id string) (*models.Escrow, error) {
	return s.getEscrowBy(ctx, "id", id)
}

func (s *PostgresStore) GetEscrowByRequestID(ctx context.Context, requestID string) (*models.Escrow, error) {
	return s.getEscrowBy(ctx, "request_id", requestID)
}

func (s *PostgresStore) GetEscrowByAccountNumber(ctx context.Context, accountNumber string) (*models.Escrow, error) {
	return s.getEscrowBy(ctx, "account_number", accountNumber)
}

func (s *PostgresStore) SaveEscrow(ctx context.Context, e *models.Escrow) error {
	number, name, bank, ref := accountFields(e)
	result, err := s.q.ExecContext(ctx, `UPDATE escrows SET collected_amount = $1, status = $2,
		account_number = $3, account_name = $4, bank_name = $5, account_reference = $6,
		supplier_bank_code = $7, supplier_account_number = $8, supplier_name = $9,
		settlement_transaction_id = $10, last_settlement_error = $11,
		deadline = $12, released_at = $13, refunded_at = $14, archived_at = $15,
		updated_at = $16, version = version + 1
		WHERE id = $17 AND version = $18`,
		e.CollectedAmount, e.Status,
		number, name, bank, ref,
		e.SupplierBankCode, e.SupplierAccountNumber, e.SupplierName,
		e.SettlementTransactionID, e.LastSettlementError,
		nullTime(e.Deadline), nullTime(e.ReleasedAt), nullTime(e.RefundedAt), nullTime(e.ArchivedAt),
		e.UpdatedAt, e.ID, e.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update escrow: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("escrow %s: %w", e.ID, ErrVersionConflict)
	}
	e.Version++
	return nil
}

func (s *PostgresStore) ListEscrowsPastDeadline(ctx context.Context, now time.Time) ([]*models.Escrow, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+escrowColumns+` FROM escrows
		WHERE deadline IS NOT NULL AND deadline < $1
		AND status IN ('collecting', 'group_approved', 'refunding')
		ORDER BY deadline`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired escrows: %w", err)
	}
	defer rows.Close()

	var escrows []*models.Escrow
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		escrows = append(escrows, e)
	}
	return escrows, rows.Err()
}

// AppendDeposit skips a known reference with ON CONFLICT instead of raising
// a unique violation, which would abort the surrounding transaction.
func (s *PostgresStore) AppendDeposit(ctx context.Context, d *models.Deposit) error {
	result, err := s.q.ExecContext(ctx, `INSERT INTO escrow_deposits
		(id, escrow_id, member_id, member_name, amount, verified, reference, source_bank_code, source_account_number, note, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (escrow_id, reference) DO NOTHING`,
		d.ID, d.EscrowID, d.MemberID, d.MemberName, d.Amount, d.Verified, d.Reference,
		d.SourceBankCode, d.SourceAccountNumber, d.Note, d.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert deposit: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrDuplicateReference
	}
	return nil
}

func (s *PostgresStore) ListDeposits(ctx context.Context, escrowID string) ([]models.Deposit, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id, escrow_id, member_id, member_name, amount, verified, reference,
		source_bank_code, source_account_number, note, timestamp
		FROM escrow_deposits WHERE escrow_id = $1 ORDER BY timestamp, id`, escrowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deposits: %w", err)
	}
	defer rows.Close()

	var deposits []models.Deposit
	for rows.Next() {
		var d models.Deposit
		if err := rows.Scan(&d.ID, &d.EscrowID, &d.MemberID, &d.MemberName, &d.Amount, &d.Verified, &d.Reference,
			&d.SourceBankCode, &d.SourceAccountNumber, &d.Note, &d.Timestamp); err != nil {
			return nil, err
		}
		deposits = append(deposits, d)
	}
	return deposits, rows.Err()
}

func (s *PostgresStore) SetDepositVerified(ctx context.Context, escrowID, reference string, verified bool) error {
	result, err := s.q.ExecContext(ctx, `UPDATE escrow_deposits SET verified = $1 WHERE escrow_id = $2 AND reference = $3`,
		verified, escrowID, reference)
	if err != nil {
		return fmt.Errorf("failed to update deposit: %w", err)
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

func (s *PostgresStore) AppendApproval(ctx context.Context, a *models.Approval) error {
	_, err := s.q.ExecContext(ctx, `INSERT INTO escrow_approvals (id, escrow_id, admin_id, role, action, reason, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.EscrowID, a.AdminID, a.Role, a.Action, a.Reason, a.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert approval: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListApprovals(ctx context.Context, escrowID string) ([]models.Approval, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id, escrow_id, admin_id, role, action, reason, timestamp
		FROM escrow_approvals WHERE escrow_id = $1 ORDER BY timestamp, id`, escrowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	defer rows.Close()

	var approvals []models.Approval
	for rows.Next() {
		var a models.Approval
		if err := rows.Scan(&a.ID, &a.EscrowID, &a.AdminID, &a.Role, &a.Action, &a.Reason, &a.Timestamp); err != nil {
			return nil, err
		}
		approvals = append(approvals, a)
	}
	return approvals, rows.Err()
}

func (s *PostgresStore) AppendRefund(ctx context.Context, r *models.Refund) error {
	_, err := s.q.ExecContext(ctx, `INSERT INTO escrow_refunds (id, escrow_id, deposit_reference, amount, status, transaction_id, error, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.EscrowID, r.DepositReference, r.Amount, r.Status, r.TransactionID, r.Error, r.Timestamp)
	if isUniqueViolation(err) {
		return fmt.Errorf("refund of %s already claimed: %w", r.DepositReference, ErrVersionConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert refund: %w", err)
	}
	return nil
}

func (s *PostgresStore) CompleteRefund(ctx context.Context, r *models.Refund) error {
	result, err := s.q.ExecContext(ctx, `UPDATE escrow_refunds SET status = $1, transaction_id = $2, error = $3, timestamp = $4
		WHERE id = $5 AND status = 'pending'`,
		r.Status, r.TransactionID, r.Error, r.Timestamp, r.ID)
	if err != nil {
		return fmt.Errorf("failed to update refund: %w", err)
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

func (s *PostgresStore) ListRefunds(ctx context.Context, escrowID string) ([]models.Refund, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id, escrow_id, deposit_reference, amount, status, transaction_id, error, timestamp
		FROM escrow_refunds WHERE escrow_id = $1 ORDER BY timestamp, id`, escrowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list refunds: %w", err)
	}
	defer rows.Close()

	var refunds []models.Refund
	for rows.Next() {
		var r models.Refund
		if err := rows.Scan(&r.ID, &r.EscrowID, &r.DepositReference, &r.Amount, &r.Status, &r.TransactionID, &r.Error, &r.Timestamp); err != nil {
			return nil, err
		}
		refunds = append(refunds, r)
	}
	return refunds, rows.Err()
}
