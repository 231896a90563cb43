package auth

import (
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatehouse-api/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-api/gatehouse/internal/rbac"
	"github.com/gatehouse-api/gatehouse/internal/shared"
	"github.com/gatehouse-api/gatehouse/internal/users"
)

// Handler wires HTTP endpoints for authentication.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	gate     rbac.Gate
	validate *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, gate rbac.Gate) *Handler {
	return &Handler{logger: logger, service: service, gate: gate, validate: httpx.NewValidator()}
}

// MountPublicRoutes registers the endpoints reachable without a token.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Post("/register", h.register)
	r.Post("/login", h.login)
}

// MountProtectedRoutes registers the endpoints behind the gate.
func (h *Handler) MountProtectedRoutes(r chi.Router) {
	r.Post("/logout", h.logout)
	r.Get("/me", h.me)
}

type registerRequest struct {
	Name                 string `json:"name" validate:"required,max=255"`
	Email                string `json:"email" validate:"required,email,max=255"`
	Password             string `json:"password" validate:"required,min=8"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.ErrorWithData(w, http.StatusUnprocessableEntity, "Validation failed", map[string]string{"general": "Invalid request payload"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ErrorWithData(w, http.StatusUnprocessableEntity, "Validation failed", httpx.FieldErrors(err))
		return
	}
	u, token, err := h.service.Register(r.Context(), RegisterInput{
		Name:      req.Name,
		Email:     req.Email,
		Password:  req.Password,
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		if !errors.Is(err, shared.ErrDuplicateEmail) {
			h.logger.Error("register", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	slugs := make([]string, 0, len(u.Roles))
	for _, role := range u.Roles {
		slugs = append(slugs, role.Slug)
	}
	httpx.Success(w, http.StatusCreated, map[string]any{
		"user": map[string]any{
			"id":    u.ID,
			"name":  u.Name,
			"email": u.Email,
			"roles": slugs,
		},
		"token": token,
	}, "User registered successfully")
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.ErrorWithData(w, http.StatusUnprocessableEntity, "Validation failed", map[string]string{"general": "Invalid request payload"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ErrorWithData(w, http.StatusUnprocessableEntity, "Validation failed", httpx.FieldErrors(err))
		return
	}
	u, token, err := h.service.Login(r.Context(), req.Email, req.Password, clientIP(r), r.UserAgent())
	if err != nil {
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			h.logger.Error("login", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, map[string]any{
		"user": map[string]any{
			"id":    u.ID,
			"name":  u.Name,
			"email": u.Email,
			"roles": users.RolePayloads(u.Roles),
		},
		"token": token,
	}, "Login successful")
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	raw := rbac.TokenFromContext(r.Context())
	if err := h.service.Logout(r.Context(), raw); err != nil {
		if errors.Is(err, shared.ErrTokenInvalid) {
			httpx.Error(w, http.StatusUnauthorized, "Unauthenticated")
			return
		}
		h.logger.Error("logout", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, nil, "Successfully logged out")
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	identity := rbac.IdentityFromContext(r.Context())
	if identity == nil {
		httpx.Error(w, http.StatusUnauthorized, "Unauthenticated")
		return
	}
	u, err := h.service.Me(r.Context(), identity.ID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Error(w, http.StatusUnauthorized, "Unauthenticated")
			return
		}
		h.logger.Error("me", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, users.PayloadFor(*u), "Success")
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
