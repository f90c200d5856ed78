package models

import "time"

type Role string

const (
	RolePrimary Role = "primary"
	RoleFamily  Role = "family"
)

// Owner is a tracked person whose records live under one canonical prefix.
type Owner struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	Relationship string    `json:"relationship,omitempty"`
	Active       bool      `json:"isActive"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// SyntheticOwner builds the minimal profile used when records reference an
// owner missing from the profile list.
func SyntheticOwner(id string, now time.Time) Owner {
	return Owner{
		ID:        id,
		Name:      "User " + id,
		Role:      RoleFamily,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
