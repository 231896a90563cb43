package rbac

import "time"

// Protected role slugs whose deletion is always refused.
const (
	RoleSuperAdmin = "super-admin"
	RoleAdmin      = "admin"
	RoleUser       = "user"
)

// Permission slugs gating the user management endpoints.
const (
	PermUsersList        = "users-list"
	PermUsersCreate      = "users-create"
	PermUsersRead        = "users-read"
	PermUsersUpdate      = "users-update"
	PermUsersDelete      = "users-delete"
	PermUsersAssignRoles = "users-assign-roles"
)

// Permission represents an atomic capability identified by slug.
type Permission struct {
	ID          int64
	Name        string
	Slug        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Role groups permissions under a unique URL-safe slug.
type Role struct {
	ID          int64
	Name        string
	Slug        string
	Description string
	Permissions []Permission
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsProtected reports whether the role may never be deleted.
func (r Role) IsProtected() bool {
	return r.Slug == RoleSuperAdmin || r.Slug == RoleAdmin
}

// Identity describes the authenticated caller with the role graph loaded.
type Identity struct {
	ID              int64
	Name            string
	Email           string
	EmailVerifiedAt *time.Time
	Roles           []Role
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
