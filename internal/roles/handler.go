package roles

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

// Handler wires HTTP endpoints for role management.
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

// MountRoutes registers role routes, all restricted to the admin role.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.gate.Require(rbac.RequireRole(rbac.RoleAdmin)))
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.show)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.destroy)
	r.Post("/{id}/assign-permissions", h.assignPermissions)
}

type createRoleRequest struct {
	Name        string  `json:"name" validate:"required,max=255"`
	Slug        string  `json:"slug" validate:"omitempty,max=255"`
	Description string  `json:"description" validate:"omitempty,max=500"`
	Permissions []int64 `json:"permissions" validate:"omitempty,dive,gt=0"`
}

type updateRoleRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=255"`
	Slug        *string `json:"slug" validate:"omitempty,max=255"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	Permissions []int64 `json:"permissions" validate:"omitempty,dive,gt=0"`
}

type assignPermissionsRequest struct {
	Permissions []int64 `json:"permissions" validate:"required,dive,gt=0"`
}

// PayloadFor formats a role with its nested permissions.
func PayloadFor(role rbac.Role) map[string]any {
	perms := make([]map[string]any, 0, len(role.Permissions))
	for _, p := range role.Permissions {
		perms = append(perms, map[string]any{"id": p.ID, "name": p.Name, "slug": p.Slug})
	}
	return map[string]any{
		"id":          role.ID,
		"name":        role.Name,
		"slug":        role.Slug,
		"description": role.Description,
		"permissions": perms,
		"created_at":  role.CreatedAt,
		"updated_at":  role.UpdatedAt,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	payload := make([]map[string]any, 0, len(roles))
	for _, role := range roles {
		payload = append(payload, PayloadFor(role))
	}
	httpx.Success(w, http.StatusOK, map[string]any{"roles": payload}, "Roles retrieved successfully")
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.ErrorWithData(w, http.StatusUnprocessableEntity, "Validation failed", map[string]string{"general": "Invalid request payload"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ErrorWithData(w, http.StatusUnprocessableEntity, "Validation failed", httpx.FieldErrors(err))
		return
	}
	actor := rbac.IdentityFromContext(r.Context())
	role, err := h.service.Create(r.Context(), actor.ID, CreateInput{
		Name:          req.Name,
		Slug:          req.Slug,
		Description:   req.Description,
		PermissionIDs: req.Permissions,
	})
	if err != nil {
		h.respondServiceError(w, err, "create role")
		return
	}
	httpx.Success(w, http.StatusCreated, map[string]any{"role": PayloadFor(*role)}, "Role created successfully")
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Role not found")
		return
	}
	role, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "Role not found")
			return
		}
		h.logger.Error("get role", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, map[string]any{"role": PayloadFor(*role)}, "Role retrieved successfully")
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Role not found")
		return
	}
	var req updateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.ErrorWithData(w, http.StatusUnprocessableEntity, "Validation failed", map[string]string{"general": "Invalid request payload"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ErrorWithData(w, http.StatusUnprocessableEntity, "Validation failed", httpx.FieldErrors(err))
		return
	}
	actor := rbac.IdentityFromContext(r.Context())
	role, err := h.service.Update(r.Context(), actor.ID, id, UpdateInput{
		Name:          req.Name,
		Slug:          req.Slug,
		Description:   req.Description,
		PermissionIDs: req.Permissions,
	})
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "Role not found")
			return
		}
		h.respondServiceError(w, err, "update role")
		return
	}
	httpx.Success(w, http.StatusOK, map[string]any{"role": PayloadFor(*role)}, "Role updated successfully")
}

func (h *Handler) destroy(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Role not found")
		return
	}
	actor := rbac.IdentityFromContext(r.Context())
	if err := h.service.Delete(r.Context(), actor.ID, id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "Role not found")
			return
		}
		if !errors.Is(err, shared.ErrProtectedRole) {
			h.logger.Error("delete role", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, nil, "Role deleted successfully")
}

func (h *Handler) assignPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Role not found")
		return
	}
	var req assignPermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.ErrorWithData(w, http.StatusUnprocessableEntity, "Validation failed", map[string]string{"general": "Invalid request payload"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ErrorWithData(w, http.StatusUnprocessableEntity, "Validation failed", httpx.FieldErrors(err))
		return
	}
	actor := rbac.IdentityFromContext(r.Context())
	role, err := h.service.AssignPermissions(r.Context(), actor.ID, id, req.Permissions)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "Role not found")
			return
		}
		h.respondServiceError(w, err, "assign permissions")
		return
	}
	httpx.Success(w, http.StatusOK, map[string]any{"role": PayloadFor(*role)}, "Permissions assigned successfully")
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error, action string) {
	var unknown *shared.UnknownIDsError
	if errors.As(err, &unknown) {
		httpx.ErrorWithData(w, http.StatusUnprocessableEntity, "Validation failed", map[string]string{
			unknown.Field: "The selected " + unknown.Field + " are invalid",
		})
		return
	}
	if !errors.Is(err, shared.ErrDuplicateSlug) {
		h.logger.Error(action, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}
