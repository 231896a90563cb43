package users

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/gatehouse-api/gatehouse/internal/audit"
	"github.com/gatehouse-api/gatehouse/internal/shared"
)

// RepositoryPort defines data access methods for user accounts.
type RepositoryPort interface {
	List(ctx context.Context, page, perPage int) ([]User, int, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, params CreateParams) (*User, error)
	Update(ctx context.Context, u *User, roleIDs []int64) (*User, error)
	Delete(ctx context.Context, id int64) error
	SyncRoles(ctx context.Context, userID int64, roleIDs []int64) error
	MissingRoles(ctx context.Context, ids []int64) ([]int64, error)
}

// AuditRecorder persists audit entries for administrative mutations.
type AuditRecorder interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Service handles user account business logic.
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
	Name     string
	Email    string
	Password string
	RoleIDs  []int64
}

// UpdateInput enumerates the fields accepted on update; nil means unchanged.
// A non-nil RoleIDs replaces the full membership set.
type UpdateInput struct {
	Name     *string
	Email    *string
	Password *string
	RoleIDs  []int64
}

// List returns a page of users with their role graphs.
func (s *Service) List(ctx context.Context, page, perPage int) ([]User, shared.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = shared.DefaultPerPage
	}
	items, total, err := s.repo.List(ctx, page, perPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(page, perPage, total), nil
}

// Get fetches a user by ID.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// Create inserts a user with a hashed password and attaches the requested
// roles. Emails are stored lowercase so uniqueness is case-insensitive.
func (s *Service) Create(ctx context.Context, actorID int64, in CreateInput) (*User, error) {
	if err := s.checkRoleIDs(ctx, in.RoleIDs); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u, err := s.repo.Create(ctx, CreateParams{
		Name:         in.Name,
		Email:        strings.ToLower(in.Email),
		PasswordHash: string(hash),
		RoleIDs:      in.RoleIDs,
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "user.create", u.ID, map[string]any{"email": u.Email})
	return u, nil
}

// Update applies the provided fields and, when role ids are given, replaces
// the membership set.
func (s *Service) Update(ctx context.Context, actorID, id int64, in UpdateInput) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		u.Name = *in.Name
	}
	if in.Email != nil {
		u.Email = strings.ToLower(*in.Email)
	}
	if in.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		u.PasswordHash = string(hash)
	}
	if err := s.checkRoleIDs(ctx, in.RoleIDs); err != nil {
		return nil, err
	}
	out, err := s.repo.Update(ctx, u, in.RoleIDs)
	if err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "user.update", out.ID, map[string]any{"email": out.Email})
	return out, nil
}

// Delete removes a user. Callers may not delete their own account.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if actorID == id {
		return shared.ErrSelfDelete
	}
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "user.delete", id, map[string]any{"email": u.Email})
	return nil
}

// AssignRoles replaces the user's membership set with exactly the given
// role ids and returns the reloaded user.
func (s *Service) AssignRoles(ctx context.Context, actorID, userID int64, roleIDs []int64) (*User, error) {
	if _, err := s.repo.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.checkRoleIDs(ctx, roleIDs); err != nil {
		return nil, err
	}
	if err := s.repo.SyncRoles(ctx, userID, roleIDs); err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "user.assign_roles", userID, map[string]any{"role_ids": roleIDs})
	return s.repo.GetByID(ctx, userID)
}

func (s *Service) checkRoleIDs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	missing, err := s.repo.MissingRoles(ctx, ids)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return &shared.UnknownIDsError{Field: "roles", IDs: missing}
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
		Entity:   "user",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit record", slog.Any("error", err))
	}
}
