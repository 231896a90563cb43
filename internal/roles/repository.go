package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse-api/gatehouse/internal/platform/db"
	"github.com/gatehouse-api/gatehouse/internal/rbac"
	"github.com/gatehouse-api/gatehouse/internal/shared"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository provides PostgreSQL backed persistence for roles and their
// permission grants.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = `id, name, slug, description, created_at, updated_at`

// List returns all roles with permissions eagerly loaded.
func (r *Repository) List(ctx context.Context) ([]rbac.Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []rbac.Role
	var ids []int64
	for rows.Next() {
		var role rbac.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Slug, &role.Description, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
		ids = append(ids, role.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	grants, err := permissionsByRole(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range roles {
		roles[i].Permissions = grants[roles[i].ID]
	}
	return roles, nil
}

// GetByID fetches a role with its permissions.
func (r *Repository) GetByID(ctx context.Context, id int64) (*rbac.Role, error) {
	return r.getBy(ctx, `WHERE id = $1`, id)
}

// GetBySlug fetches a role with its permissions by slug.
func (r *Repository) GetBySlug(ctx context.Context, slug string) (*rbac.Role, error) {
	return r.getBy(ctx, `WHERE slug = $1`, slug)
}

func (r *Repository) getBy(ctx context.Context, clause string, arg any) (*rbac.Role, error) {
	var role rbac.Role
	err := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles `+clause, arg).
		Scan(&role.ID, &role.Name, &role.Slug, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	grants, err := permissionsByRole(ctx, r.pool, []int64{role.ID})
	if err != nil {
		return nil, err
	}
	role.Permissions = grants[role.ID]
	return &role, nil
}

// Create inserts a role and attaches the given permissions in one
// transaction; a failed attach rolls the role back.
func (r *Repository) Create(ctx context.Context, name, slug, description string, permissionIDs []int64) (*rbac.Role, error) {
	var role rbac.Role
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO roles (name, slug, description) VALUES ($1, $2, $3) RETURNING `+roleColumns,
			name, slug, description).
			Scan(&role.ID, &role.Name, &role.Slug, &role.Description, &role.CreatedAt, &role.UpdatedAt)
		if err != nil {
			return err
		}
		return attachPermissions(ctx, tx, role.ID, permissionIDs)
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, shared.ErrDuplicateSlug
		}
		return nil, err
	}
	return r.GetByID(ctx, role.ID)
}

// Update saves role fields and, when permissionIDs is non-nil, replaces the
// grant set, all within one transaction behind a row lock.
func (r *Repository) Update(ctx context.Context, role *rbac.Role, permissionIDs []int64) (*rbac.Role, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockRole(ctx, tx, role.ID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx,
			`UPDATE roles SET name = $2, slug = $3, description = $4, updated_at = NOW() WHERE id = $1`,
			role.ID, role.Name, role.Slug, role.Description)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		if permissionIDs != nil {
			if err := replacePermissions(ctx, tx, role.ID, permissionIDs); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, shared.ErrDuplicateSlug
		}
		return nil, err
	}
	return r.GetByID(ctx, role.ID)
}

// Delete removes a role; grant and membership rows cascade at the schema
// level so nothing is orphaned.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SyncPermissions replaces the grant set with exactly permissionIDs.
func (r *Repository) SyncPermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockRole(ctx, tx, roleID); err != nil {
			return err
		}
		return replacePermissions(ctx, tx, roleID, permissionIDs)
	})
}

// MissingPermissions returns the subset of ids with no matching permission.
func (r *Repository) MissingPermissions(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT id FROM permissions WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	found := make(map[int64]struct{}, len(ids))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		found[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var missing []int64
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// lockRole serializes concurrent grant mutations on the same role.
func lockRole(ctx context.Context, tx pgx.Tx, roleID int64) error {
	var id int64
	err := tx.QueryRow(ctx, `SELECT id FROM roles WHERE id = $1 FOR UPDATE`, roleID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	return err
}

func attachPermissions(ctx context.Context, tx pgx.Tx, roleID int64, permissionIDs []int64) error {
	for _, pid := range dedupe(permissionIDs) {
		if _, err := tx.Exec(ctx,
			`INSERT INTO role_permission (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			roleID, pid); err != nil {
			return fmt.Errorf("attach permission %d: %w", pid, err)
		}
	}
	return nil
}

func replacePermissions(ctx context.Context, tx pgx.Tx, roleID int64, permissionIDs []int64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM role_permission WHERE role_id = $1`, roleID); err != nil {
		return err
	}
	return attachPermissions(ctx, tx, roleID, permissionIDs)
}

func permissionsByRole(ctx context.Context, q querier, roleIDs []int64) (map[int64][]rbac.Permission, error) {
	grants := make(map[int64][]rbac.Permission, len(roleIDs))
	if len(roleIDs) == 0 {
		return grants, nil
	}
	rows, err := q.Query(ctx, `
SELECT rp.role_id, p.id, p.name, p.slug, p.description, p.created_at, p.updated_at
FROM role_permission rp
JOIN permissions p ON p.id = rp.permission_id
WHERE rp.role_id = ANY($1)
ORDER BY p.id`, roleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var roleID int64
		var p rbac.Permission
		if err := rows.Scan(&roleID, &p.ID, &p.Name, &p.Slug, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		grants[roleID] = append(grants[roleID], p)
	}
	return grants, rows.Err()
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
