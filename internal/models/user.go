package models

import "time"

const (
	UserRoleMember     = "member"
	UserRoleCoopAdmin  = "coop_admin"
	UserRoleSuperAdmin = "super_admin"
)

type User struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" example:"user@example.com"`
	FullName  string    `json:"fullName" example:"Ada Obi"`
	Role      string    `json:"role" db:"role"`
	CoopID    string    `json:"coopId,omitempty" db:"coop_id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsGroupAdminOf reports whether the user administers the given cooperative.
func (u *User) IsGroupAdminOf(coopID string) bool {
	return u != nil && u.Role == UserRoleCoopAdmin && u.CoopID != "" && u.CoopID == coopID
}

func (u *User) IsSuperAdmin() bool {
	return u != nil && u.Role == UserRoleSuperAdmin
}
