package permissions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-api/gatehouse/internal/audit"
	"github.com/gatehouse-api/gatehouse/internal/rbac"
	"github.com/gatehouse-api/gatehouse/internal/shared"
)

type mockRepository struct {
	permissions map[int64]*rbac.Permission
	bySlug      map[string]*rbac.Permission
	nextID      int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		permissions: make(map[int64]*rbac.Permission),
		bySlug:      make(map[string]*rbac.Permission),
		nextID:      1,
	}
}

func (m *mockRepository) List(ctx context.Context) ([]rbac.Permission, error) {
	out := []rbac.Permission{}
	for _, p := range m.permissions {
		out = append(out, *p)
	}
	return out, nil
}

func (m *mockRepository) GetByID(ctx context.Context, id int64) (*rbac.Permission, error) {
	p, ok := m.permissions[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *mockRepository) Create(ctx context.Context, name, slug, description string) (*rbac.Permission, error) {
	if _, exists := m.bySlug[slug]; exists {
		return nil, shared.ErrDuplicateSlug
	}
	p := &rbac.Permission{
		ID:          m.nextID,
		Name:        name,
		Slug:        slug,
		Description: description,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	m.permissions[p.ID] = p
	m.bySlug[slug] = p
	m.nextID++
	copied := *p
	return &copied, nil
}

func (m *mockRepository) Update(ctx context.Context, p *rbac.Permission) (*rbac.Permission, error) {
	current, ok := m.permissions[p.ID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	if other, exists := m.bySlug[p.Slug]; exists && other.ID != p.ID {
		return nil, shared.ErrDuplicateSlug
	}
	delete(m.bySlug, current.Slug)
	copied := *p
	m.permissions[p.ID] = &copied
	m.bySlug[p.Slug] = &copied
	out := copied
	return &out, nil
}

func (m *mockRepository) Delete(ctx context.Context, id int64) error {
	p, ok := m.permissions[id]
	if !ok {
		return shared.ErrNotFound
	}
	delete(m.bySlug, p.Slug)
	delete(m.permissions, id)
	return nil
}

type recordingAudit struct {
	entries []audit.Entry
}

func (r *recordingAudit) Record(ctx context.Context, entry audit.Entry) error {
	r.entries = append(r.entries, entry)
	return nil
}

func newTestService() (*Service, *mockRepository, *recordingAudit) {
	repo := newMockRepository()
	recorder := &recordingAudit{}
	return NewService(repo, recorder, nil), repo, recorder
}

func TestCreatePermission(t *testing.T) {
	svc, _, recorder := newTestService()
	ctx := context.Background()

	p, err := svc.Create(ctx, 1, CreateInput{Name: "Delete Users", Slug: "users-delete", Description: "Can delete users"})
	require.NoError(t, err)

	assert.Equal(t, "Delete Users", p.Name)
	assert.Equal(t, "users-delete", p.Slug)
	require.Len(t, recorder.entries, 1)
	assert.Equal(t, "permission.create", recorder.entries[0].Action)
}

func TestCreatePermissionDerivesSlug(t *testing.T) {
	svc, _, _ := newTestService()

	p, err := svc.Create(context.Background(), 1, CreateInput{Name: "Manage User Accounts"})
	require.NoError(t, err)

	assert.Equal(t, "manage-user-accounts", p.Slug)
}

func TestCreatePermissionDuplicateSlug(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, 1, CreateInput{Name: "List Users", Slug: "users-list"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, 1, CreateInput{Name: "List All Users", Slug: "users-list"})
	assert.ErrorIs(t, err, shared.ErrDuplicateSlug)
}

func TestUpdatePermissionPartial(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, 1, CreateInput{Name: "List Users", Slug: "users-list", Description: "old"})
	require.NoError(t, err)

	newDesc := "Can list every user"
	updated, err := svc.Update(ctx, 1, created.ID, UpdateInput{Description: &newDesc})
	require.NoError(t, err)

	assert.Equal(t, "List Users", updated.Name)
	assert.Equal(t, "users-list", updated.Slug)
	assert.Equal(t, newDesc, updated.Description)
}

func TestUpdatePermissionNotFound(t *testing.T) {
	svc, _, _ := newTestService()

	name := "X"
	_, err := svc.Update(context.Background(), 1, 99, UpdateInput{Name: &name})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeletePermission(t *testing.T) {
	svc, repo, recorder := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, 1, CreateInput{Name: "List Users", Slug: "users-list"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, 1, created.ID))
	assert.Empty(t, repo.permissions)
	require.Len(t, recorder.entries, 2)
	assert.Equal(t, "permission.delete", recorder.entries[1].Action)
}

func TestDeletePermissionNotFound(t *testing.T) {
	svc, _, _ := newTestService()

	assert.ErrorIs(t, svc.Delete(context.Background(), 1, 99), shared.ErrNotFound)
}
