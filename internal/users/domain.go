package users

import (
	"time"

	"github.com/gatehouse-api/gatehouse/internal/rbac"
)

// User represents a user account with its role graph.
type User struct {
	ID              int64
	Name            string
	Email           string
	PasswordHash    string
	EmailVerifiedAt *time.Time
	Roles           []rbac.Role
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Identity converts the user into the shape the access-control gate and
// authorization engine consume.
func (u *User) Identity() *rbac.Identity {
	return &rbac.Identity{
		ID:              u.ID,
		Name:            u.Name,
		Email:           u.Email,
		EmailVerifiedAt: u.EmailVerifiedAt,
		Roles:           u.Roles,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}
