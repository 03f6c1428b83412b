package models

import "time"

// EscrowStatus is the lifecycle position of a pooled-payment escrow.
type EscrowStatus string

const (
	EscrowPending          EscrowStatus = "pending"
	EscrowCollecting       EscrowStatus = "collecting"
	EscrowGroupApproved    EscrowStatus = "group_approved"
	EscrowPlatformApproved EscrowStatus = "platform_approved"
	EscrowReleased         EscrowStatus = "released"
	EscrowRefunding        EscrowStatus = "refunding"
	EscrowRefunded         EscrowStatus = "refunded"
)

// Terminal reports whether no further transition is possible.
func (s EscrowStatus) Terminal() bool {
	return s == EscrowReleased || s == EscrowRefunded
}

// VirtualAccount is the gateway account members deposit into.
type VirtualAccount struct {
	AccountNumber string `json:"accountNumber" db:"account_number"`
	AccountName   string `json:"accountName" db:"account_name"`
	BankName      string `json:"bankName" db:"bank_name"`
	Reference     string `json:"reference" db:"reference"`
}

// Escrow holds pooled member deposits for one purchase request.
// Amounts are in kobo.
type Escrow struct {
	ID                      string          `json:"id" db:"id"`
	RequestID               string          `json:"requestId" db:"request_id"`
	CoopID                  string          `json:"coopId" db:"coop_id"`
	TotalAmount             int64           `json:"totalAmount" db:"total_amount"`
	CollectedAmount         int64           `json:"collectedAmount" db:"collected_amount"`
	MemberCount             int             `json:"memberCount" db:"member_count"`
	Status                  EscrowStatus    `json:"status" db:"status"`
	Account                 *VirtualAccount `json:"account,omitempty"`
	SupplierBankCode        string          `json:"supplierBankCode,omitempty" db:"supplier_bank_code"`
	SupplierAccountNumber   string          `json:"supplierAccountNumber,omitempty" db:"supplier_account_number"`
	SupplierName            string          `json:"supplierName,omitempty" db:"supplier_name"`
	SettlementTransactionID string          `json:"settlementTransactionId,omitempty" db:"settlement_transaction_id"`
	LastSettlementError     string          `json:"lastSettlementError,omitempty" db:"last_settlement_error"`
	Deadline                *time.Time      `json:"deadline,omitempty" db:"deadline"`
	ReleasedAt              *time.Time      `json:"releasedAt,omitempty" db:"released_at"`
	RefundedAt              *time.Time      `json:"refundedAt,omitempty" db:"refunded_at"`
	ArchivedAt              *time.Time      `json:"archivedAt,omitempty" db:"archived_at"`
	Version                 int             `json:"version" db:"version"`
	CreatedBy               string          `json:"createdBy" db:"created_by"`
	CreatedAt               time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt               time.Time       `json:"updatedAt" db:"updated_at"`
}

// AccountNumber returns the virtual account number or "" before provisioning.
func (e *Escrow) AccountNumber() string {
	if e.Account == nil {
		return ""
	}
	return e.Account.AccountNumber
}

// Remaining is the amount still to be collected, never negative.
func (e *Escrow) Remaining() int64 {
	if e.CollectedAmount >= e.TotalAmount {
		return 0
	}
	return e.TotalAmount - e.CollectedAmount
}

// Deposit is a single member payment into the escrow virtual account.
// Records are append-only; only Verified may change after creation.
type Deposit struct {
	ID                  string    `json:"id" db:"id"`
	EscrowID            string    `json:"escrowId" db:"escrow_id"`
	MemberID            string    `json:"memberId" db:"member_id"`
	MemberName          string    `json:"memberName" db:"member_name"`
	Amount              int64     `json:"amount" db:"amount"`
	Verified            bool      `json:"verified" db:"verified"`
	Reference           string    `json:"reference" db:"reference"`
	SourceBankCode      string    `json:"sourceBankCode,omitempty" db:"source_bank_code"`
	SourceAccountNumber string    `json:"sourceAccountNumber,omitempty" db:"source_account_number"`
	Note                string    `json:"note,omitempty" db:"note"`
	Timestamp           time.Time `json:"timestamp" db:"timestamp"`
}

type ApprovalRole string

const (
	RoleGroupAdmin    ApprovalRole = "group_admin"
	RolePlatformAdmin ApprovalRole = "platform_admin"
)

type ApprovalAction string

const (
	ActionApproved ApprovalAction = "approved"
	ActionRejected ApprovalAction = "rejected"
	ActionFlagged  ApprovalAction = "flagged"
)

// Approval is an append-only admin decision on an escrow.
type Approval struct {
	ID        string         `json:"id" db:"id"`
	EscrowID  string         `json:"escrowId" db:"escrow_id"`
	AdminID   string         `json:"adminId" db:"admin_id"`
	Role      ApprovalRole   `json:"role" db:"role"`
	Action    ApprovalAction `json:"action" db:"action"`
	Reason    string         `json:"reason,omitempty" db:"reason"`
	Timestamp time.Time      `json:"timestamp" db:"timestamp"`
}

// ActiveApprovals returns the latest approval per role. Input must be in
// chronological order.
func ActiveApprovals(approvals []Approval) map[ApprovalRole]Approval {
	active := make(map[ApprovalRole]Approval, 2)
	for _, a := range approvals {
		active[a.Role] = a
	}
	return active
}

type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundSucceeded RefundStatus = "succeeded"
	RefundFailed    RefundStatus = "failed"
)

// Refund records one refund attempt for a deposit. A pending record claims
// the deposit while the gateway call is in flight.
type Refund struct {
	ID               string       `json:"id" db:"id"`
	EscrowID         string       `json:"escrowId" db:"escrow_id"`
	DepositReference string       `json:"depositReference" db:"deposit_reference"`
	Amount           int64        `json:"amount" db:"amount"`
	Status           RefundStatus `json:"status" db:"status"`
	TransactionID    string       `json:"transactionId,omitempty" db:"transaction_id"`
	Error            string       `json:"error,omitempty" db:"error"`
	Timestamp        time.Time    `json:"timestamp" db:"timestamp"`
}

// RefundedReferences returns the deposit references with a succeeded refund.
func RefundedReferences(refunds []Refund) map[string]bool {
	done := make(map[string]bool, len(refunds))
	for _, r := range refunds {
		if r.Status == RefundSucceeded {
			done[r.DepositReference] = true
		}
	}
	return done
}

// ClaimedReferences returns the deposit references with a pending or
// succeeded refund. Those deposits must not be sent to the gateway again.
func ClaimedReferences(refunds []Refund) map[string]RefundStatus {
	claimed := make(map[string]RefundStatus, len(refunds))
	for _, r := range refunds {
		if r.Status == RefundPending || r.Status == RefundSucceeded {
			claimed[r.DepositReference] = r.Status
		}
	}
	return claimed
}

// EscrowDetails bundles an escrow with its histories.
type EscrowDetails struct {
	Escrow    *Escrow                   `json:"escrow"`
	Deposits  []Deposit                 `json:"deposits"`
	Approvals []Approval                `json:"approvals"`
	Refunds   []Refund                  `json:"refunds"`
	Active    map[ApprovalRole]Approval `json:"activeApprovals"`
}
