package shared

import "errors"

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure without disclosing why.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenInvalid indicates a missing, revoked, or expired bearer token.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrDuplicateEmail indicates a unique email constraint violation.
	ErrDuplicateEmail = errors.New("email already taken")
	// ErrDuplicateSlug indicates a unique slug constraint violation.
	ErrDuplicateSlug = errors.New("slug already taken")
	// ErrProtectedRole indicates an attempt to delete a protected role.
	ErrProtectedRole = errors.New("role is protected")
	// ErrSelfDelete indicates a user attempted to delete their own account.
	ErrSelfDelete = errors.New("cannot delete own account")
	// ErrDependency indicates an external collaborator is unavailable.
	ErrDependency = errors.New("dependency unavailable")
)
