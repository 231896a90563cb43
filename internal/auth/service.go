package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/gatehouse-api/gatehouse/internal/rbac"
	"github.com/gatehouse-api/gatehouse/internal/shared"
	"github.com/gatehouse-api/gatehouse/internal/users"
)

// UserStore is the slice of the user repository auth needs.
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*users.User, error)
	GetByEmail(ctx context.Context, email string) (*users.User, error)
	Create(ctx context.Context, params users.CreateParams) (*users.User, error)
	AttachRoles(ctx context.Context, userID int64, roleIDs []int64) error
}

// RoleStore resolves roles by slug for the default membership.
type RoleStore interface {
	GetBySlug(ctx context.Context, slug string) (*rbac.Role, error)
}

// TokenIssuer mints and revokes opaque bearer tokens.
type TokenIssuer interface {
	Issue(ctx context.Context, userID int64, ip, ua string) (string, error)
	Revoke(ctx context.Context, raw string) error
}

// Service implements registration, login and logout.
type Service struct {
	users  UserStore
	roles  RoleStore
	tokens TokenIssuer
	logger *slog.Logger
}

// NewService builds a Service instance.
func NewService(userStore UserStore, roleStore RoleStore, tokens TokenIssuer, logger *slog.Logger) *Service {
	return &Service{users: userStore, roles: roleStore, tokens: tokens, logger: logger}
}

// RegisterInput enumerates the fields accepted on registration.
type RegisterInput struct {
	Name      string
	Email     string
	Password  string
	IP        string
	UserAgent string
}

// Register creates an account, attaches the default role and issues a
// token. A missing default role does not fail the registration.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*users.User, string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}
	u, err := s.users.Create(ctx, users.CreateParams{
		Name:         in.Name,
		Email:        strings.ToLower(in.Email),
		PasswordHash: string(hash),
	})
	if err != nil {
		return nil, "", err
	}
	role, err := s.roles.GetBySlug(ctx, rbac.RoleUser)
	switch {
	case err == nil:
		if err := s.users.AttachRoles(ctx, u.ID, []int64{role.ID}); err != nil {
			return nil, "", err
		}
		if u, err = s.users.GetByID(ctx, u.ID); err != nil {
			return nil, "", err
		}
	case errors.Is(err, shared.ErrNotFound):
		s.logger.Warn("default role missing", slog.String("slug", rbac.RoleUser))
	default:
		return nil, "", err
	}
	token, err := s.tokens.Issue(ctx, u.ID, in.IP, in.UserAgent)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// Login verifies credentials and issues a token. Unknown emails and bad
// passwords produce the same error so callers cannot probe accounts.
func (s *Service) Login(ctx context.Context, email, password, ip, userAgent string) (*users.User, string, error) {
	u, err := s.users.GetByEmail(ctx, strings.ToLower(email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, "", shared.ErrInvalidCredentials
		}
		return nil, "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, "", shared.ErrInvalidCredentials
	}
	token, err := s.tokens.Issue(ctx, u.ID, ip, userAgent)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// Logout revokes the presented token.
func (s *Service) Logout(ctx context.Context, raw string) error {
	return s.tokens.Revoke(ctx, raw)
}

// Me reloads the caller's account with its role graph.
func (s *Service) Me(ctx context.Context, userID int64) (*users.User, error) {
	return s.users.GetByID(ctx, userID)
}
