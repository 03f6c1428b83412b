package models

import "time"

const (
	CoopStatusPending  = "pending"
	CoopStatusApproved = "approved"
	CoopStatusRejected = "rejected"
)

type Cooperative struct {
	ID         string     `json:"id" db:"id"`
	Name       string     `json:"name" db:"name"`
	Address    string     `json:"address,omitempty" db:"address"`
	AdminID    string     `json:"adminId" db:"admin_id"`
	Status     string     `json:"status" db:"status"`
	ReviewedBy string     `json:"reviewedBy,omitempty" db:"reviewed_by"`
	ApprovedAt *time.Time `json:"approvedAt,omitempty" db:"approved_at"`
	CreatedAt  time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time  `json:"updatedAt" db:"updated_at"`
}
