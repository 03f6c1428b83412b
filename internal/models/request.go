package models

import "time"

const (
	RequestKindSingle = "single"
	RequestKindBulk   = "bulk"
)

// PurchaseRequest is a member's request for goods, individually or as part
// of a cooperative bulk purchase.
type PurchaseRequest struct {
	ID          string    `json:"id" db:"id"`
	Kind        string    `json:"kind" db:"kind"`
	UserID      string    `json:"userId" db:"user_id"`
	CoopID      string    `json:"coopId,omitempty" db:"coop_id"`
	ItemName    string    `json:"itemName" db:"item_name"`
	Quantity    int       `json:"quantity" db:"quantity"`
	TargetPrice *float64  `json:"targetPrice,omitempty" db:"target_price"`
	Notes       string    `json:"notes,omitempty" db:"notes"`
	Status      string    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}
