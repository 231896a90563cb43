package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/gatehouse-api/gatehouse/internal/rbac"
	"github.com/gatehouse-api/gatehouse/internal/shared"
	"github.com/gatehouse-api/gatehouse/internal/users"
)

type mockUserStore struct {
	users       map[int64]*users.User
	byEmail     map[string]*users.User
	memberships map[int64][]int64
	roles       map[int64]rbac.Role
	nextID      int64
	lastCreate  users.CreateParams
	attachCalls int
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:       make(map[int64]*users.User),
		byEmail:     make(map[string]*users.User),
		memberships: make(map[int64][]int64),
		roles:       make(map[int64]rbac.Role),
		nextID:      1,
	}
}

func (m *mockUserStore) withRoles(u *users.User) *users.User {
	copied := *u
	copied.Roles = []rbac.Role{}
	for _, rid := range m.memberships[u.ID] {
		if r, ok := m.roles[rid]; ok {
			copied.Roles = append(copied.Roles, r)
		}
	}
	return &copied
}

func (m *mockUserStore) GetByID(ctx context.Context, id int64) (*users.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return m.withRoles(u), nil
}

func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	u, ok := m.byEmail[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return m.withRoles(u), nil
}

func (m *mockUserStore) Create(ctx context.Context, params users.CreateParams) (*users.User, error) {
	m.lastCreate = params
	if _, exists := m.byEmail[params.Email]; exists {
		return nil, shared.ErrDuplicateEmail
	}
	u := &users.User{
		ID:           m.nextID,
		Name:         params.Name,
		Email:        params.Email,
		PasswordHash: params.PasswordHash,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	m.users[u.ID] = u
	m.byEmail[u.Email] = u
	m.memberships[u.ID] = append([]int64{}, params.RoleIDs...)
	m.nextID++
	return m.withRoles(u), nil
}

func (m *mockUserStore) AttachRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	m.attachCalls++
	m.memberships[userID] = append(m.memberships[userID], roleIDs...)
	return nil
}

type mockRoleStore struct {
	bySlug map[string]*rbac.Role
}

func (m *mockRoleStore) GetBySlug(ctx context.Context, slug string) (*rbac.Role, error) {
	r, ok := m.bySlug[slug]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *r
	return &copied, nil
}

type mockIssuer struct {
	issued  map[string]int64
	nextTok int
	err     error
}

func newMockIssuer() *mockIssuer {
	return &mockIssuer{issued: make(map[string]int64)}
}

func (m *mockIssuer) Issue(ctx context.Context, userID int64, ip, ua string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.nextTok++
	tok := "tok-" + strconv.Itoa(m.nextTok)
	m.issued[tok] = userID
	return tok, nil
}

func (m *mockIssuer) Revoke(ctx context.Context, raw string) error {
	if _, ok := m.issued[raw]; !ok {
		return shared.ErrTokenInvalid
	}
	delete(m.issued, raw)
	return nil
}

func newTestService(defaultRole bool) (*Service, *mockUserStore, *mockIssuer) {
	store := newMockUserStore()
	roleStore := &mockRoleStore{bySlug: map[string]*rbac.Role{}}
	if defaultRole {
		store.roles[1] = rbac.Role{ID: 1, Name: "User", Slug: rbac.RoleUser}
		roleStore.bySlug[rbac.RoleUser] = &rbac.Role{ID: 1, Name: "User", Slug: rbac.RoleUser}
	}
	issuer := newMockIssuer()
	return NewService(store, roleStore, issuer, slog.New(slog.NewTextHandler(io.Discard, nil))), store, issuer
}

func TestRegister(t *testing.T) {
	svc, store, issuer := newTestService(true)
	ctx := context.Background()

	u, token, err := svc.Register(ctx, RegisterInput{
		Name:     "Jane Doe",
		Email:    "Jane@Example.com",
		Password: "password123",
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.Equal(t, "jane@example.com", u.Email)
	require.Len(t, u.Roles, 1)
	assert.Equal(t, rbac.RoleUser, u.Roles[0].Slug)
	assert.Equal(t, u.ID, issuer.issued[token])
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(store.users[u.ID].PasswordHash), []byte("password123")))
}

func TestRegisterAttachesRoleAfterCreate(t *testing.T) {
	svc, store, _ := newTestService(true)

	u, _, err := svc.Register(context.Background(), RegisterInput{
		Name:     "Jane",
		Email:    "jane@example.com",
		Password: "password123",
	})
	require.NoError(t, err)

	assert.Empty(t, store.lastCreate.RoleIDs)
	assert.Equal(t, 1, store.attachCalls)
	assert.Equal(t, []int64{1}, store.memberships[u.ID])
}

func TestRegisterWithoutDefaultRole(t *testing.T) {
	svc, _, _ := newTestService(false)

	u, token, err := svc.Register(context.Background(), RegisterInput{
		Name:     "Jane",
		Email:    "jane@example.com",
		Password: "password123",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, token)
	assert.Empty(t, u.Roles)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService(true)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, RegisterInput{Name: "A", Email: "same@example.com", Password: "password123"})
	require.NoError(t, err)

	_, _, err = svc.Register(ctx, RegisterInput{Name: "B", Email: "same@example.com", Password: "password123"})
	assert.ErrorIs(t, err, shared.ErrDuplicateEmail)
}

func TestLogin(t *testing.T) {
	svc, _, _ := newTestService(true)
	ctx := context.Background()

	registered, _, err := svc.Register(ctx, RegisterInput{Name: "Jane", Email: "jane@example.com", Password: "password123"})
	require.NoError(t, err)

	u, token, err := svc.Login(ctx, "jane@example.com", "password123", "", "")
	require.NoError(t, err)

	assert.Equal(t, registered.ID, u.ID)
	assert.NotEmpty(t, token)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _, _ := newTestService(true)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, RegisterInput{Name: "Jane", Email: "jane@example.com", Password: "password123"})
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "jane@example.com", "wrongpassword", "", "")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLoginUnknownEmailSameError(t *testing.T) {
	svc, _, _ := newTestService(true)

	_, _, err := svc.Login(context.Background(), "nobody@example.com", "password123", "", "")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLoginEmailCaseInsensitive(t *testing.T) {
	svc, _, _ := newTestService(true)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, RegisterInput{Name: "Jane", Email: "jane@example.com", Password: "password123"})
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "JANE@EXAMPLE.COM", "password123", "", "")
	assert.NoError(t, err)
}

func TestLogout(t *testing.T) {
	svc, _, issuer := newTestService(true)
	ctx := context.Background()

	_, token, err := svc.Register(ctx, RegisterInput{Name: "Jane", Email: "jane@example.com", Password: "password123"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, token))
	assert.ErrorIs(t, svc.Logout(ctx, token), shared.ErrTokenInvalid)
	assert.Empty(t, issuer.issued)
}

func TestMe(t *testing.T) {
	svc, _, _ := newTestService(true)
	ctx := context.Background()

	registered, _, err := svc.Register(ctx, RegisterInput{Name: "Jane", Email: "jane@example.com", Password: "password123"})
	require.NoError(t, err)

	u, err := svc.Me(ctx, registered.ID)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", u.Email)
}

func TestMeUnknownUser(t *testing.T) {
	svc, _, _ := newTestService(true)

	_, err := svc.Me(context.Background(), 99)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}
