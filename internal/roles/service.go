package roles

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/gosimple/slug"

	"github.com/gatehouse-api/gatehouse/internal/audit"
	"github.com/gatehouse-api/gatehouse/internal/rbac"
	"github.com/gatehouse-api/gatehouse/internal/shared"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	List(ctx context.Context) ([]rbac.Role, error)
	GetByID(ctx context.Context, id int64) (*rbac.Role, error)
	GetBySlug(ctx context.Context, slugValue string) (*rbac.Role, error)
	Create(ctx context.Context, name, slugValue, description string, permissionIDs []int64) (*rbac.Role, error)
	Update(ctx context.Context, role *rbac.Role, permissionIDs []int64) (*rbac.Role, error)
	Delete(ctx context.Context, id int64) error
	SyncPermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
	MissingPermissions(ctx context.Context, ids []int64) ([]int64, error)
}

// AuditRecorder persists audit entries for administrative mutations.
type AuditRecorder interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Service handles role business logic.
type Service struct {
	repo   RepositoryPort
	audit  AuditRecorder
	logger *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, recorder AuditRecorder, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: recorder, logger: logger}
}

// CreateInput enumerates the fields accepted on create.
type CreateInput struct {
	Name          string
	Slug          string
	Description   string
	PermissionIDs []int64
}

// UpdateInput enumerates the fields accepted on update; nil means unchanged.
// A non-nil PermissionIDs replaces the full grant set.
type UpdateInput struct {
	Name          *string
	Slug          *string
	Description   *string
	PermissionIDs []int64
}

// List returns all roles with permissions.
func (s *Service) List(ctx context.Context) ([]rbac.Role, error) {
	return s.repo.List(ctx)
}

// Get fetches a role by ID.
func (s *Service) Get(ctx context.Context, id int64) (*rbac.Role, error) {
	return s.repo.GetByID(ctx, id)
}

// Create inserts a role, deriving the slug from the name when none is
// given, and attaches the requested permissions.
func (s *Service) Create(ctx context.Context, actorID int64, in CreateInput) (*rbac.Role, error) {
	if in.Slug == "" {
		in.Slug = slug.Make(in.Name)
	}
	if err := s.checkPermissionIDs(ctx, in.PermissionIDs); err != nil {
		return nil, err
	}
	role, err := s.repo.Create(ctx, in.Name, in.Slug, in.Description, in.PermissionIDs)
	if err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "role.create", role.ID, map[string]any{"slug": role.Slug})
	return role, nil
}

// Update applies the provided fields and, when permission ids are given,
// replaces the grant set.
func (s *Service) Update(ctx context.Context, actorID, id int64, in UpdateInput) (*rbac.Role, error) {
	role, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		role.Name = *in.Name
	}
	if in.Slug != nil {
		role.Slug = *in.Slug
	}
	if in.Description != nil {
		role.Description = *in.Description
	}
	if err := s.checkPermissionIDs(ctx, in.PermissionIDs); err != nil {
		return nil, err
	}
	out, err := s.repo.Update(ctx, role, in.PermissionIDs)
	if err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "role.update", out.ID, map[string]any{"slug": out.Slug})
	return out, nil
}

// Delete removes a role. Protected slugs are refused regardless of caller;
// membership and grant rows cascade away with the role.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	role, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if role.IsProtected() {
		return shared.ErrProtectedRole
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "role.delete", id, map[string]any{"slug": role.Slug})
	return nil
}

// AssignPermissions replaces the role's grant set with exactly the given
// permission ids.
func (s *Service) AssignPermissions(ctx context.Context, actorID, roleID int64, permissionIDs []int64) (*rbac.Role, error) {
	if _, err := s.repo.GetByID(ctx, roleID); err != nil {
		return nil, err
	}
	if err := s.checkPermissionIDs(ctx, permissionIDs); err != nil {
		return nil, err
	}
	if err := s.repo.SyncPermissions(ctx, roleID, permissionIDs); err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "role.assign_permissions", roleID, map[string]any{"permission_ids": permissionIDs})
	return s.repo.GetByID(ctx, roleID)
}

func (s *Service) checkPermissionIDs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	missing, err := s.repo.MissingPermissions(ctx, ids)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return &shared.UnknownIDsError{Field: "permissions", IDs: missing}
	}
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, audit.Entry{
		ActorID:  actorID,
		Action:   action,
		Entity:   "role",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit record", slog.Any("error", err))
	}
}
