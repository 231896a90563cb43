package permissions

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

// Handler wires HTTP endpoints for permission management.
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

// MountRoutes registers permission routes, all restricted to the admin role.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.gate.Require(rbac.RequireRole(rbac.RoleAdmin)))
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.show)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.destroy)
}

type createPermissionRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Slug        string `json:"slug" validate:"omitempty,max=255"`
	Description string `json:"description" validate:"omitempty,max=500"`
}

type updatePermissionRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=255"`
	Slug        *string `json:"slug" validate:"omitempty,max=255"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

// PayloadFor formats a permission the way every endpoint renders it.
func PayloadFor(p rbac.Permission) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"name":        p.Name,
		"slug":        p.Slug,
		"description": p.Description,
		"created_at":  p.CreatedAt,
		"updated_at":  p.UpdatedAt,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	payload := make([]map[string]any, 0, len(perms))
	for _, p := range perms {
		payload = append(payload, PayloadFor(p))
	}
	httpx.Success(w, http.StatusOK, map[string]any{"permissions": payload}, "Permissions retrieved successfully")
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.ErrorWithData(w, http.StatusUnprocessableEntity, "Validation failed", map[string]string{"general": "Invalid request payload"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ErrorWithData(w, http.StatusUnprocessableEntity, "Validation failed", httpx.FieldErrors(err))
		return
	}
	actor := rbac.IdentityFromContext(r.Context())
	p, err := h.service.Create(r.Context(), actor.ID, CreateInput{Name: req.Name, Slug: req.Slug, Description: req.Description})
	if err != nil {
		if !errors.Is(err, shared.ErrDuplicateSlug) {
			h.logger.Error("create permission", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, http.StatusCreated, map[string]any{"permission": PayloadFor(*p)}, "Permission created successfully")
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Permission not found")
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "Permission not found")
			return
		}
		h.logger.Error("get permission", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, map[string]any{"permission": PayloadFor(*p)}, "Permission retrieved successfully")
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Permission not found")
		return
	}
	var req updatePermissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.ErrorWithData(w, http.StatusUnprocessableEntity, "Validation failed", map[string]string{"general": "Invalid request payload"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ErrorWithData(w, http.StatusUnprocessableEntity, "Validation failed", httpx.FieldErrors(err))
		return
	}
	actor := rbac.IdentityFromContext(r.Context())
	p, err := h.service.Update(r.Context(), actor.ID, id, UpdateInput{Name: req.Name, Slug: req.Slug, Description: req.Description})
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "Permission not found")
			return
		}
		if !errors.Is(err, shared.ErrDuplicateSlug) {
			h.logger.Error("update permission", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, map[string]any{"permission": PayloadFor(*p)}, "Permission updated successfully")
}

func (h *Handler) destroy(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		httpx.Error(w, http.StatusNotFound, "Permission not found")
		return
	}
	actor := rbac.IdentityFromContext(r.Context())
	if err := h.service.Delete(r.Context(), actor.ID, id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "Permission not found")
			return
		}
		h.logger.Error("delete permission", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Success(w, http.StatusOK, nil, "Permission deleted successfully")
}

func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}
