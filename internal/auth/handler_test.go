package auth

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-api/gatehouse/internal/rbac"
)

func newTestRouter(t *testing.T) (chi.Router, *Service, *mockIssuer) {
	t.Helper()
	svc, _, issuer := newTestService(true)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(logger, svc, rbac.Gate{})

	r := chi.NewRouter()
	r.Route("/auth", func(r chi.Router) {
		handler.MountPublicRoutes(r)
		r.Group(func(r chi.Router) {
			r.Use(func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
					raw := req.Header.Get("Authorization")
					if len(raw) > len("Bearer ") {
						raw = raw[len("Bearer "):]
					}
					userID, ok := issuer.issued[raw]
					if !ok {
						w.WriteHeader(http.StatusUnauthorized)
						return
					}
					ctx := rbac.ContextWithIdentity(req.Context(), &rbac.Identity{ID: userID})
					ctx = rbac.ContextWithToken(ctx, raw)
					next.ServeHTTP(w, req.WithContext(ctx))
				})
			})
			handler.MountProtectedRoutes(r)
		})
	})
	return r, svc, issuer
}

func postJSON(t *testing.T, router http.Handler, path string, payload map[string]any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRegisterEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := postJSON(t, router, "/auth/register", map[string]any{
		"name":                  "Jane Doe",
		"email":                 "jane@example.com",
		"password":              "password123",
		"password_confirmation": "password123",
	}, nil)

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(201), body["code"])
	assert.Equal(t, "User registered successfully", body["message"])

	data := body["data"].(map[string]any)
	assert.NotEmpty(t, data["token"])
	user := data["user"].(map[string]any)
	assert.Equal(t, "jane@example.com", user["email"])
	assert.Equal(t, []any{"user"}, user["roles"])
}

func TestRegisterValidation(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := postJSON(t, router, "/auth/register", map[string]any{
		"name":                  "Jane",
		"email":                 "not-an-email",
		"password":              "short",
		"password_confirmation": "different",
	}, nil)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Validation failed", body["message"])

	fields := body["data"].(map[string]any)
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")
	assert.Contains(t, fields, "password_confirmation")
}

func TestRegisterDuplicateEmailEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)
	payload := map[string]any{
		"name":                  "Jane",
		"email":                 "jane@example.com",
		"password":              "password123",
		"password_confirmation": "password123",
	}

	rec := postJSON(t, router, "/auth/register", payload, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postJSON(t, router, "/auth/register", payload, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestLoginEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := postJSON(t, router, "/auth/register", map[string]any{
		"name":                  "Jane",
		"email":                 "jane@example.com",
		"password":              "password123",
		"password_confirmation": "password123",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postJSON(t, router, "/auth/login", map[string]any{
		"email":    "jane@example.com",
		"password": "password123",
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Login successful", body["message"])

	data := body["data"].(map[string]any)
	assert.NotEmpty(t, data["token"])
	user := data["user"].(map[string]any)
	assert.ElementsMatch(t, []string{"id", "name", "email", "roles"}, keysOf(user))
	roles := user["roles"].([]any)
	require.Len(t, roles, 1)
	role := roles[0].(map[string]any)
	assert.Equal(t, "user", role["slug"])
}

func keysOf(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func TestLoginWrongPasswordEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := postJSON(t, router, "/auth/register", map[string]any{
		"name":                  "Jane",
		"email":                 "jane@example.com",
		"password":              "password123",
		"password_confirmation": "password123",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postJSON(t, router, "/auth/login", map[string]any{
		"email":    "jane@example.com",
		"password": "wrongpassword",
	}, nil)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Invalid credentials", body["message"])
	assert.Equal(t, []any{}, body["data"])
}

func TestLoginUnknownEmailEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := postJSON(t, router, "/auth/login", map[string]any{
		"email":    "nobody@example.com",
		"password": "password123",
	}, nil)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Invalid credentials", body["message"])
}

func TestLogoutEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := postJSON(t, router, "/auth/register", map[string]any{
		"name":                  "Jane",
		"email":                 "jane@example.com",
		"password":              "password123",
		"password_confirmation": "password123",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	token := decodeBody(t, rec)["data"].(map[string]any)["token"].(string)

	rec = postJSON(t, router, "/auth/logout", map[string]any{}, map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Successfully logged out", decodeBody(t, rec)["message"])
}

func TestMeEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := postJSON(t, router, "/auth/register", map[string]any{
		"name":                  "Jane",
		"email":                 "jane@example.com",
		"password":              "password123",
		"password_confirmation": "password123",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	token := decodeBody(t, rec)["data"].(map[string]any)["token"].(string)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)
	body := decodeBody(t, recorder)
	assert.Equal(t, "Success", body["message"])

	profile := body["data"].(map[string]any)
	assert.Equal(t, "jane@example.com", profile["email"])
	assert.Equal(t, "Jane", profile["name"])
	assert.Contains(t, profile, "email_verified_at")
	assert.Contains(t, profile, "roles")
	assert.NotContains(t, profile, "user")
}
