package model

import "time"

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// Valid reports whether r is one of the known membership roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember, RoleViewer:
		return true
	}
	return false
}

type Organization struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Membership struct {
	OrganizationID string    `json:"organization_id"`
	UserID         string    `json:"user_id"`
	Role           Role      `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
}

type Profile struct {
	UserID         string `json:"user_id"`
	Email          string `json:"email"`
	FullName       string `json:"full_name"`
	OrganizationID string `json:"organization_id,omitempty"`
}

// ProvisionRequest describes the organization bootstrapped for a user
// that reaches checkout without any membership.
type ProvisionRequest struct {
	UserID           string
	Email            string
	FullName         string
	OrganizationName string
}

type InviteRequest struct {
	Email          string `json:"email"`
	OrganizationID string `json:"organizationId"`
	Role           Role   `json:"role"`
}

type InviteResult struct {
	Success bool   `json:"success"`
	Pending bool   `json:"pending"`
	UserID  string `json:"userId,omitempty"`
	Message string `json:"message"`
}
