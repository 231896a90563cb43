package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatehouse-api/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-api/gatehouse/internal/rbac"
	"github.com/gatehouse-api/gatehouse/internal/shared"
)

// Handler wires HTTP endpoints for user management.
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

// MountRoutes registers user routes. Each endpoint carries its own
// permission requirement so grants can be handed out independently.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.gate.Require(rbac.RequirePermission(rbac.PermUsersList))).Get("/", h.list)
	r.With(h.gate.Require(rbac.RequirePermission(rbac.PermUsersCreate))).Post("/", h.create)
	r.With(h.gate.Require(rbac.RequirePermission(rbac.PermUsersRead))).Get("/{id}", h.show)
	r.With(h.gate.Require(rbac.RequirePermission(rbac.PermUsersUpdate))).Put("/{id}", h.update)
	r.With(h.gate.Require(rbac.RequirePermission(rbac.PermUsersDelete))).Delete("/{id}", h.destroy)
	r.With(h.gate.Require(rbac.RequirePermission(rbac.PermUsersAssignRoles))).Post("/{id}/assign-roles", h.assignRoles)
}

type createUserRequest struct {
	Name                 string  `json:"name" validate:"required,max=255"`
	Email                string  `json:"email" validate:"required,email,max=255"`
	Password             string  `json:"password" validate:"required,min=8"`
	PasswordConfirmation string  `json:"password_confirmation" validate:"required,eqfield=Password"`
	Roles                []int64 `json:"roles" validate:"omitempty,dive,gt=0"`
}

type updateUserRequest struct {
	Name                 *string `json:"name" validate:"omitempty,max=255"`
	Email                *string `json:"email" validate:"omitempty,email,max=255"`
	Password             *string `json:"password" validate:"omitempty,min=8"`
	PasswordConfirmation *string `json:"password_confirmation" validate:"required_with=Password,omitempty,eqfield=Password"`
	Roles                []int64 `json:"roles" validate:"omitempty,dive,gt=0"`
}

type assignRolesRequest struct {
	Roles []int64 `json:"roles" validate:"required,dive,gt=0"`
}

// RolePayloads formats roles with their permission slugs.
func RolePayloads(roles []rbac.Role) []map[string]any {
	out := make([]map[string]any, 0, len(roles))
	for _, role := range roles {
		slugs := make([]string, 0, len(role.Permissions))
		for _, p := range role.Permissions {
			slugs = append(slugs, p.Slug)
		}
		out = append(out, map[string]any{
			"id":          role.ID,
			"name":        role.Name,
			"slug":        role.Slug,
			"permissions": slugs,
		})
	}
	return out
}

// PayloadFor formats a user with the full role graph, permission slugs
// included.
func PayloadFor(u User) map[string]any {
	roles := RolePayloads(u.Roles)
	return map[string]any{
		"id":                u.ID,
		"name":              u.Name,
		"email":             u.Email,
		"email_verified_at": u.EmailVerifiedAt,
		"roles":             roles,
		"created_at":        u.CreatedAt,
		"updated_at":        u.UpdatedAt,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "per_page", shared.DefaultPerPage)
	items, pagination, err := h.service.List(r.Context(), page, perPage)
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	payload := make([]map[string]any, 0, len(items))
	for _, u := range items {
		payload = append(payload, PayloadFor(u))
	}
	httpx.Success(w, http.StatusOK, map[string]any{
		"users":      payload,
		"pagination": pagination,
	}, "Users retrieved successfully")
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.ErrorWithData(w, http.StatusUnprocessableEntity, "Validation failed", map[string]string{"general": "Invalid request payload"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ErrorWithData(w, http.StatusUnprocessableEntity, "Validation failed", httpx.FieldErrors(err))
		return
	}
	actor := rbac.IdentityFromContext(r.Context())
	u, err := h.service.Create(r.Context(), actor.ID, CreateInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		RoleIDs:  req.Roles,
	})
	if err != nil {
		h.respondServiceError(w, err, "create user")
		return
	}
	httpx.Success(w, http.StatusCreated, map[string]any{"user": PayloadFor(*u)}, "User created successfully")
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "User not found")
		return
	}
	u, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "User not found")
			return
		}
		h.logger.Error("get user", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, map[string]any{"user": PayloadFor(*u)}, "User retrieved successfully")
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "User not found")
		return
	}
	var req updateUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.ErrorWithData(w, http.StatusUnprocessableEntity, "Validation failed", map[string]string{"general": "Invalid request payload"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ErrorWithData(w, http.StatusUnprocessableEntity, "Validation failed", httpx.FieldErrors(err))
		return
	}
	actor := rbac.IdentityFromContext(r.Context())
	u, err := h.service.Update(r.Context(), actor.ID, id, UpdateInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		RoleIDs:  req.Roles,
	})
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "User not found")
			return
		}
		h.respondServiceError(w, err, "update user")
		return
	}
	httpx.Success(w, http.StatusOK, map[string]any{"user": PayloadFor(*u)}, "User updated successfully")
}

func (h *Handler) destroy(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "User not found")
		return
	}
	actor := rbac.IdentityFromContext(r.Context())
	if err := h.service.Delete(r.Context(), actor.ID, id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "User not found")
			return
		}
		if !errors.Is(err, shared.ErrSelfDelete) {
			h.logger.Error("delete user", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, nil, "User deleted successfully")
}

func (h *Handler) assignRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "User not found")
		return
	}
	var req assignRolesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.ErrorWithData(w, http.StatusUnprocessableEntity, "Validation failed", map[string]string{"general": "Invalid request payload"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ErrorWithData(w, http.StatusUnprocessableEntity, "Validation failed", httpx.FieldErrors(err))
		return
	}
	actor := rbac.IdentityFromContext(r.Context())
	u, err := h.service.AssignRoles(r.Context(), actor.ID, id, req.Roles)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "User not found")
			return
		}
		h.respondServiceError(w, err, "assign roles")
		return
	}
	httpx.Success(w, http.StatusOK, map[string]any{"user": PayloadFor(*u)}, "Roles assigned successfully")
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error, action string) {
	var unknown *shared.UnknownIDsError
	if errors.As(err, &unknown) {
		httpx.ErrorWithData(w, http.StatusUnprocessableEntity, "Validation failed", map[string]string{
			unknown.Field: "The selected " + unknown.Field + " are invalid",
		})
		return
	}
	if !errors.Is(err, shared.ErrDuplicateEmail) {
		h.logger.Error(action, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return fallback
	}
	return v
}
