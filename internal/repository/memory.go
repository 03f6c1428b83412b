package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/coopa/backend/internal/models"
)

// MemoryStore implements Store in process. Transactions run against a copy
// of the data that replaces the live copy only if fn succeeds.
type MemoryStore struct {
	mu   sync.Mutex
	data *memData
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemData()}
}

type memData struct {
	escrows   map[string]models.Escrow
	deposits  map[string][]models.Deposit
	approvals map[string][]models.Approval
	refunds   map[string][]models.Refund
	users     map[string]models.User
	coops     map[string]models.Cooperative
	requests  map[string]models.PurchaseRequest
}

func newMemData() *memData {
	return &memData{
		escrows:   map[string]models.Escrow{},
		deposits:  map[string][]models.Deposit{},
		approvals: map[string][]models.Approval{},
		refunds:   map[string][]models.Refund{},
		users:     map[string]models.User{},
		coops:     map[string]models.Cooperative{},
		requests:  map[string]models.PurchaseRequest{},
	}
}

func copyEscrow(e models.Escrow) models.Escrow {
	if e.Account != nil {
		acct := *e.Account
		e.Account = &acct
	}
	return e
}

func (d *memData) clone() *memData {
	c := newMemData()
	for k, v := range d.escrows {
		c.escrows[k] = copyEscrow(v)
	}
	for k, v := range d.deposits {
		c.deposits[k] = append([]models.Deposit(nil), v...)
	}
	for k, v := range d.approvals {
		c.approvals[k] = append([]models.Approval(nil), v...)
	}
	for k, v := range d.refunds {
		c.refunds[k] = append([]models.Refund(nil), v...)
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.coops {
		c.coops[k] = v
	}
	for k, v := range d.requests {
		c.requests[k] = v
	}
	return c
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx EscrowStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(ctx, work); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (s *MemoryStore) CreateEscrow(ctx context.Context, e *models.Escrow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.CreateEscrow(ctx, e)
}

func (s *MemoryStore) GetEscrow(ctx context.Context, id string) (*models.Escrow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetEscrow(ctx, id)
}

func (s *MemoryStore) GetEscrowByRequestID(ctx context.Context, requestID string) (*models.Escrow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetEscrowByRequestID(ctx, requestID)
}

func (s *MemoryStore) GetEscrowByAccountNumber(ctx context.Context, accountNumber string) (*models.Escrow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetEscrowByAccountNumber(ctx, accountNumber)
}

func (s *MemoryStore) SaveEscrow(ctx context.Context, e *models.Escrow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.SaveEscrow(ctx, e)
}

func (s *MemoryStore) ListEscrowsPastDeadline(ctx context.Context, now time.Time) ([]*models.Escrow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListEscrowsPastDeadline(ctx, now)
}

func (s *MemoryStore) AppendDeposit(ctx context.Context, d *models.Deposit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.AppendDeposit(ctx, d)
}

func (s *MemoryStore) ListDeposits(ctx context.Context, escrowID string) ([]models.Deposit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListDeposits(ctx, escrowID)
}

func (s *MemoryStore) SetDepositVerified(ctx context.Context, escrowID, reference string, verified bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.SetDepositVerified(ctx, escrowID, reference, verified)
}

func (s *MemoryStore) AppendApproval(ctx context.Context, a *models.Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.AppendApproval(ctx, a)
}

func (s *MemoryStore) ListApprovals(ctx context.Context, escrowID string) ([]models.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListApprovals(ctx, escrowID)
}

func (s *MemoryStore) AppendRefund(ctx context.Context, r *models.Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.AppendRefund(ctx, r)
}

func (s *MemoryStore) CompleteRefund(ctx context.Context, r *models.Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.CompleteRefund(ctx, r)
}

func (s *MemoryStore) ListRefunds(ctx context.Context, escrowID string) ([]models.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListRefunds(ctx, escrowID)
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.data.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *MemoryStore) UpsertUserRole(ctx context.Context, id, role, coopID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.upsertUserRole(id, role, coopID)
	return nil
}

// PutUser seeds a user record.
func (s *MemoryStore) PutUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.users[u.ID] = u
}

func (s *MemoryStore) RegisterCooperative(ctx context.Context, c *models.Cooperative) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data.coops[c.ID]; exists {
		return ErrAlreadyExists
	}
	s.data.coops[c.ID] = *c
	s.data.upsertUserRole(c.AdminID, models.UserRoleCoopAdmin, c.ID)
	return nil
}

func (s *MemoryStore) GetCooperative(ctx context.Context, id string) (*models.Cooperative, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data.coops[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *MemoryStore) ListCooperativesByStatus(ctx context.Context, status string) ([]models.Cooperative, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	coops := []models.Cooperative{}
	for _, c := range s.data.coops {
		if c.Status == status {
			coops = append(coops, c)
		}
	}
	sort.Slice(coops, func(i, j int) bool { return coops[i].CreatedAt.Before(coops[j].CreatedAt) })
	return coops, nil
}

func (s *MemoryStore) HasPendingCooperative(ctx context.Context, adminID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.data.coops {
		if c.AdminID == adminID && c.Status == models.CoopStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) UpdateCooperativeStatus(ctx context.Context, id, status, reviewedBy string, approvedAt *time.Time, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data.coops[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	c.ReviewedBy = reviewedBy
	c.ApprovedAt = approvedAt
	c.UpdatedAt = now
	s.data.coops[id] = c
	return nil
}

func (s *MemoryStore) CreateRequest(ctx context.Context, r *models.PurchaseRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data.requests[r.ID]; exists {
		return ErrAlreadyExists
	}
	s.data.requests[r.ID] = *r
	return nil
}

// Requests returns every stored purchase request.
func (s *MemoryStore) Requests() []models.PurchaseRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.PurchaseRequest, 0, len(s.data.requests))
	for _, r := range s.data.requests {
		out = append(out, r)
	}
	return out
}

// memData methods assume the caller holds the store lock.

func (d *memData) WithinTx(ctx context.Context, fn func(ctx context.Context, tx EscrowStore) error) error {
	return fn(ctx, d)
}

func (d *memData) CreateEscrow(ctx context.Context, e *models.Escrow) error {
	if _, exists := d.escrows[e.ID]; exists {
		return ErrAlreadyExists
	}
	for _, other := range d.escrows {
		if other.RequestID == e.RequestID {
			return fmt.Errorf("escrow for request %s: %w", e.RequestID, ErrAlreadyExists)
		}
	}
	d.escrows[e.ID] = copyEscrow(*e)
	return nil
}

func (d *memData) GetEscrow(ctx context.Context, id string) (*models.Escrow, error) {
	e, ok := d.escrows[id]
	if !ok {
		return nil, ErrNotFound
	}
	e = copyEscrow(e)
	return &e, nil
}

func (d *memData) findEscrow(match func(models.Escrow) bool) (*models.Escrow, error) {
	for _, e := range d.escrows {
		if match(e) {
			e = copyEscrow(e)
			return &e, nil
		}
	}
	return nil, ErrNotFound
}

func (d *memData) GetEscrowByRequestID(ctx context.Context, requestID string) (*models.Escrow, error) {
	return d.findEscrow(func(e models.Escrow) bool { return e.RequestID == requestID })
}

func (d *memData) GetEscrowByAccountNumber(ctx context.Context, accountNumber string) (*models.Escrow, error) {
	return d.findEscrow(func(e models.Escrow) bool { return accountNumber != "" && e.AccountNumber() == accountNumber })
}

func (d *memData) SaveEscrow(ctx context.Context, e *models.Escrow) error {
	stored, ok := d.escrows[e.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != e.Version {
		return fmt.Errorf("escrow %s: %w", e.ID, ErrVersionConflict)
	}
	e.Version++
	d.escrows[e.ID] = copyEscrow(*e)
	return nil
}

func (d *memData) ListEscrowsPastDeadline(ctx context.Context, now time.Time) ([]*models.Escrow, error) {
	var out []*models.Escrow
	for _, e := range d.escrows {
		if e.Deadline == nil || !e.Deadline.Before(now) {
			continue
		}
		switch e.Status {
		case models.EscrowCollecting, models.EscrowGroupApproved, models.EscrowRefunding:
			e = copyEscrow(e)
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(*out[j].Deadline) })
	return out, nil
}

func (d *memData) AppendDeposit(ctx context.Context, dep *models.Deposit) error {
	for _, existing := range d.deposits[dep.EscrowID] {
		if existing.Reference == dep.Reference {
			return ErrDuplicateReference
		}
	}
	d.deposits[dep.EscrowID] = append(d.deposits[dep.EscrowID], *dep)
	return nil
}

func (d *memData) ListDeposits(ctx context.Context, escrowID string) ([]models.Deposit, error) {
	return append([]models.Deposit(nil), d.deposits[escrowID]...), nil
}

func (d *memData) SetDepositVerified(ctx context.Context, escrowID, reference string, verified bool) error {
	deps := d.deposits[escrowID]
	for i := range deps {
		if deps[i].Reference == reference {
			deps[i].Verified = verified
			return nil
		}
	}
	return ErrNotFound
}

func (d *memData) AppendApproval(ctx context.Context, a *models.Approval) error {
	d.approvals[a.EscrowID] = append(d.approvals[a.EscrowID], *a)
	return nil
}

func (d *memData) ListApprovals(ctx context.Context, escrowID string) ([]models.Approval, error) {
	return append([]models.Approval(nil), d.approvals[escrowID]...), nil
}

func (d *memData) AppendRefund(ctx context.Context, r *models.Refund) error {
	if r.Status != models.RefundFailed {
		for _, existing := range d.refunds[r.EscrowID] {
			if existing.DepositReference == r.DepositReference && existing.Status != models.RefundFailed {
				return fmt.Errorf("refund of %s already claimed: %w", r.DepositReference, ErrVersionConflict)
			}
		}
	}
	d.refunds[r.EscrowID] = append(d.refunds[r.EscrowID], *r)
	return nil
}

func (d *memData) CompleteRefund(ctx context.Context, r *models.Refund) error {
	refunds := d.refunds[r.EscrowID]
	for i := range refunds {
		if refunds[i].ID == r.ID && refunds[i].Status == models.RefundPending {
			refunds[i].Status = r.Status
			refunds[i].TransactionID = r.TransactionID
			refunds[i].Error = r.Error
			refunds[i].Timestamp = r.Timestamp
			return nil
		}
	}
	return ErrNotFound
}

func (d *memData) ListRefunds(ctx context.Context, escrowID string) ([]models.Refund, error) {
	return append([]models.Refund(nil), d.refunds[escrowID]...), nil
}

func (d *memData) upsertUserRole(id, role, coopID string) {
	now := time.Now().UTC()
	u, ok := d.users[id]
	if !ok {
		u = models.User{ID: id, CreatedAt: now}
	}
	u.Role = role
	u.CoopID = coopID
	u.UpdatedAt = now
	d.users[id] = u
}
