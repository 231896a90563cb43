package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gatehouse-api/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-api/gatehouse/internal/shared"
)

// RequirementKind selects how a route requirement is evaluated.
type RequirementKind int

const (
	// RequirementRole demands a role slug.
	RequirementRole RequirementKind = iota
	// RequirementPermission demands a permission slug reachable via any role.
	RequirementPermission
)

// Requirement is the declarative access rule attached to a route.
type Requirement struct {
	Kind RequirementKind
	Slug string
}

// RequireRole builds a role requirement.
func RequireRole(slug string) Requirement {
	return Requirement{Kind: RequirementRole, Slug: slug}
}

// RequirePermission builds a permission requirement.
func RequirePermission(slug string) Requirement {
	return Requirement{Kind: RequirementPermission, Slug: slug}
}

// Satisfied evaluates the requirement against a loaded role graph.
func (q Requirement) Satisfied(roles []Role) bool {
	switch q.Kind {
	case RequirementPermission:
		return HasPermission(roles, q.Slug)
	default:
		return HasRole(roles, q.Slug)
	}
}

// FailureReason names the unmet requirement without leaking anything else.
func (q Requirement) FailureReason() string {
	if q.Kind == RequirementPermission {
		return fmt.Sprintf("missing permission %s", q.Slug)
	}
	return fmt.Sprintf("missing role %s", q.Slug)
}

// TokenValidator resolves a raw bearer token to a user ID.
type TokenValidator interface {
	Validate(ctx context.Context, raw string) (int64, error)
}

// IdentityLoader fetches a user with the full role graph in one read.
type IdentityLoader interface {
	LoadIdentity(ctx context.Context, userID int64) (*Identity, error)
}

// Gate enforces authentication and per-route requirements. It is stateless
// per request; the identity is resolved once and carried in context.
type Gate struct {
	Tokens TokenValidator
	Loader IdentityLoader
	Logger *slog.Logger
}

// Authenticate resolves the bearer token and loads the caller identity,
// roles and permissions included, before any entity work happens.
// Responds 401 when resolution fails.
func (g Gate) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			httpx.Error(w, http.StatusUnauthorized, "Unauthenticated")
			return
		}
		userID, err := g.Tokens.Validate(r.Context(), raw)
		if err != nil {
			if !errors.Is(err, shared.ErrTokenInvalid) {
				g.log("validate token", err)
				httpx.Error(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
				return
			}
			httpx.Error(w, http.StatusUnauthorized, "Unauthenticated")
			return
		}
		identity, err := g.Loader.LoadIdentity(r.Context(), userID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				httpx.Error(w, http.StatusUnauthorized, "Unauthenticated")
				return
			}
			g.log("load identity", err)
			httpx.Error(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
			return
		}
		ctx := ContextWithIdentity(r.Context(), identity)
		ctx = ContextWithToken(ctx, raw)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Require evaluates the declared requirement for every request. Must be
// mounted after Authenticate.
func (g Gate) Require(q Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := IdentityFromContext(r.Context())
			if identity == nil {
				httpx.Error(w, http.StatusUnauthorized, "Unauthenticated")
				return
			}
			if !q.Satisfied(identity.Roles) {
				httpx.Error(w, http.StatusForbidden, q.FailureReason())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g Gate) log(msg string, err error) {
	if g.Logger != nil {
		g.Logger.Error(msg, slog.Any("error", err))
	}
}

func bearerToken(r *http.Request) string {
	ah := strings.TrimSpace(r.Header.Get("Authorization"))
	if ah == "" || !strings.HasPrefix(strings.ToLower(ah), "bearer ") {
		return ""
	}
	return strings.TrimSpace(ah[len("Bearer "):])
}
