package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-api/gatehouse/internal/shared"
)

type stubValidator struct {
	userID int64
	err    error
}

func (s stubValidator) Validate(ctx context.Context, raw string) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.userID, nil
}

type stubLoader struct {
	identity *Identity
	err      error
}

func (s stubLoader) LoadIdentity(ctx context.Context, userID int64) (*Identity, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.identity, nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestAuthenticateMissingToken(t *testing.T) {
	gate := Gate{Tokens: stubValidator{userID: 1}, Loader: stubLoader{identity: &Identity{ID: 1}}}

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	rec := httptest.NewRecorder()
	gate.Authenticate(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeEnvelope(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Unauthenticated", body["message"])
}

func TestAuthenticateInvalidToken(t *testing.T) {
	gate := Gate{Tokens: stubValidator{err: shared.ErrTokenInvalid}, Loader: stubLoader{}}

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	gate.Authenticate(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticateValidatorOutage(t *testing.T) {
	gate := Gate{Tokens: stubValidator{err: errors.New("redis down")}, Loader: stubLoader{}}

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	gate.Authenticate(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAuthenticateDeletedUser(t *testing.T) {
	gate := Gate{Tokens: stubValidator{userID: 7}, Loader: stubLoader{err: shared.ErrNotFound}}

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	gate.Authenticate(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticateStoresIdentityAndToken(t *testing.T) {
	identity := &Identity{ID: 7, Roles: []Role{roleWith("admin")}}
	gate := Gate{Tokens: stubValidator{userID: 7}, Loader: stubLoader{identity: identity}}

	var gotIdentity *Identity
	var gotToken string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIdentity = IdentityFromContext(r.Context())
		gotToken = TokenFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set("Authorization", "Bearer tok-123")
	rec := httptest.NewRecorder()
	gate.Authenticate(next).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, gotIdentity)
	assert.Equal(t, int64(7), gotIdentity.ID)
	assert.Equal(t, "tok-123", gotToken)
}

func TestAuthenticateBearerCaseInsensitive(t *testing.T) {
	gate := Gate{Tokens: stubValidator{userID: 1}, Loader: stubLoader{identity: &Identity{ID: 1}}}

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Header.Set("Authorization", "bearer tok")
	rec := httptest.NewRecorder()
	gate.Authenticate(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRoleForbidden(t *testing.T) {
	gate := Gate{}
	identity := &Identity{ID: 1, Roles: []Role{roleWith("user")}}

	req := httptest.NewRequest(http.MethodGet, "/roles", nil)
	req = req.WithContext(ContextWithIdentity(req.Context(), identity))
	rec := httptest.NewRecorder()
	gate.Require(RequireRole("admin"))(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeEnvelope(t, rec)
	assert.Equal(t, "missing role admin", body["message"])
}

func TestRequirePermissionForbidden(t *testing.T) {
	gate := Gate{}
	identity := &Identity{ID: 1, Roles: []Role{roleWith("user")}}

	req := httptest.NewRequest(http.MethodDelete, "/users/2", nil)
	req = req.WithContext(ContextWithIdentity(req.Context(), identity))
	rec := httptest.NewRecorder()
	gate.Require(RequirePermission(PermUsersDelete))(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeEnvelope(t, rec)
	assert.Equal(t, "missing permission users-delete", body["message"])
}

func TestRequirePermissionGranted(t *testing.T) {
	gate := Gate{}
	identity := &Identity{ID: 1, Roles: []Role{roleWith("manager", PermUsersDelete)}}

	req := httptest.NewRequest(http.MethodDelete, "/users/2", nil)
	req = req.WithContext(ContextWithIdentity(req.Context(), identity))
	rec := httptest.NewRecorder()
	gate.Require(RequirePermission(PermUsersDelete))(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireWithoutIdentity(t *testing.T) {
	gate := Gate{}

	req := httptest.NewRequest(http.MethodGet, "/roles", nil)
	rec := httptest.NewRecorder()
	gate.Require(RequireRole("admin"))(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
