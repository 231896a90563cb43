package directory

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/gatehouse-api/gatehouse/internal/platform/httpx"
)

// Fetcher is the slice of the client the handler needs.
type Fetcher interface {
	FetchUsers(ctx context.Context) ([]map[string]any, error)
	BaseURL() string
}

// Handler proxies the external user directory.
type Handler struct {
	logger *slog.Logger
	client Fetcher
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, client Fetcher) *Handler {
	return &Handler{logger: logger, client: client}
}

// MountRoutes registers the directory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/users", h.listUsers)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	list, err := h.client.FetchUsers(r.Context())
	if err != nil {
		var upstream *UpstreamError
		switch {
		case errors.As(err, &upstream):
			httpx.Error(w, upstream.StatusCode, "Failed to fetch users from external API")
		case isConnectionError(err):
			h.logger.Warn("directory unreachable", slog.Any("error", err))
			httpx.Error(w, http.StatusServiceUnavailable, "Unable to connect to external API")
		default:
			h.logger.Error("fetch directory users", slog.Any("error", err))
			httpx.Error(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	httpx.Success(w, http.StatusOK, map[string]any{
		"users":  list,
		"count":  len(list),
		"source": h.client.BaseURL(),
	}, "Users fetched successfully")
}

func isConnectionError(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
