package permissions

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/gosimple/slug"

	"github.com/gatehouse-api/gatehouse/internal/audit"
	"github.com/gatehouse-api/gatehouse/internal/rbac"
)

// RepositoryPort defines data access methods for permissions.
type RepositoryPort interface {
	List(ctx context.Context) ([]rbac.Permission, error)
	GetByID(ctx context.Context, id int64) (*rbac.Permission, error)
	Create(ctx context.Context, name, slugValue, description string) (*rbac.Permission, error)
	Update(ctx context.Context, p *rbac.Permission) (*rbac.Permission, error)
	Delete(ctx context.Context, id int64) error
}

// AuditRecorder persists audit entries for administrative mutations.
type AuditRecorder interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Service handles permission business logic.
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
	Name        string
	Slug        string
	Description string
}

// UpdateInput enumerates the fields accepted on update; nil means unchanged.
type UpdateInput struct {
	Name        *string
	Slug        *string
	Description *string
}

// List returns all permissions.
func (s *Service) List(ctx context.Context) ([]rbac.Permission, error) {
	return s.repo.List(ctx)
}

// Get fetches a permission by ID.
func (s *Service) Get(ctx context.Context, id int64) (*rbac.Permission, error) {
	return s.repo.GetByID(ctx, id)
}

// Create inserts a new permission, deriving the slug from the name when
// none is given.
func (s *Service) Create(ctx context.Context, actorID int64, in CreateInput) (*rbac.Permission, error) {
	if in.Slug == "" {
		in.Slug = slug.Make(in.Name)
	}
	p, err := s.repo.Create(ctx, in.Name, in.Slug, in.Description)
	if err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "permission.create", p.ID, map[string]any{"slug": p.Slug})
	return p, nil
}

// Update applies the provided fields to an existing permission.
func (s *Service) Update(ctx context.Context, actorID, id int64, in UpdateInput) (*rbac.Permission, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		p.Name = *in.Name
	}
	if in.Slug != nil {
		p.Slug = *in.Slug
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	out, err := s.repo.Update(ctx, p)
	if err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "permission.update", out.ID, map[string]any{"slug": out.Slug})
	return out, nil
}

// Delete removes a permission; role grants referencing it cascade away.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "permission.delete", id, nil)
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, audit.Entry{
		ActorID:  actorID,
		Action:   action,
		Entity:   "permission",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit record", slog.Any("error", err))
	}
}
