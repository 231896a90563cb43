package users

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

// Repository provides PostgreSQL backed persistence for users and their
// role memberships. Reads always load the full role graph in a fixed
// number of queries regardless of result size.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, name, email, password_hash, email_verified_at, created_at, updated_at`

// CreateParams enumerates the columns written on insert.
type CreateParams struct {
	Name         string
	Email        string
	PasswordHash string
	RoleIDs      []int64
}

// List returns one page of users with role graphs, plus the total count.
func (r *Repository) List(ctx context.Context, page, perPage int) ([]User, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, err
	}
	offset := shared.Pagination{CurrentPage: page, PerPage: perPage}.Offset()
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id LIMIT $1 OFFSET $2`, perPage, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []User
	var ids []int64
	for rows.Next() {
		var u User
		if err := scanUser(rows, &u); err != nil {
			return nil, 0, err
		}
		out = append(out, u)
		ids = append(ids, u.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	graphs, err := roleGraphsByUser(ctx, r.pool, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range out {
		out[i].Roles = graphs[out[i].ID]
	}
	return out, total, nil
}

// GetByID fetches a user with the full role graph.
func (r *Repository) GetByID(ctx context.Context, id int64) (*User, error) {
	return r.getBy(ctx, `WHERE id = $1`, id)
}

// GetByEmail fetches a user by email, password hash included, with the full
// role graph eagerly loaded for the login response.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getBy(ctx, `WHERE email = $1`, email)
}

func (r *Repository) getBy(ctx context.Context, clause string, arg any) (*User, error) {
	var u User
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users `+clause, arg)
	if err := scanUser(row, &u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	graphs, err := roleGraphsByUser(ctx, r.pool, []int64{u.ID})
	if err != nil {
		return nil, err
	}
	u.Roles = graphs[u.ID]
	return &u, nil
}

// LoadIdentity fetches the caller identity for the access-control gate.
func (r *Repository) LoadIdentity(ctx context.Context, userID int64) (*rbac.Identity, error) {
	u, err := r.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.Identity(), nil
}

// Create inserts a user and attaches the given roles in one transaction; a
// failed attach rolls the user back.
func (r *Repository) Create(ctx context.Context, params CreateParams) (*User, error) {
	var id int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO users (name, email, password_hash) VALUES ($1, $2, $3) RETURNING id`,
			params.Name, params.Email, params.PasswordHash).Scan(&id)
		if err != nil {
			return err
		}
		return attachRoles(ctx, tx, id, params.RoleIDs)
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, shared.ErrDuplicateEmail
		}
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// Update saves user fields and, when roleIDs is non-nil, replaces the
// membership set, all within one transaction behind a row lock.
func (r *Repository) Update(ctx context.Context, u *User, roleIDs []int64) (*User, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockUser(ctx, tx, u.ID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx,
			`UPDATE users SET name = $2, email = $3, password_hash = $4, updated_at = NOW() WHERE id = $1`,
			u.ID, u.Name, u.Email, u.PasswordHash)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		if roleIDs != nil {
			if err := replaceRoles(ctx, tx, u.ID, roleIDs); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, shared.ErrDuplicateEmail
		}
		return nil, err
	}
	return r.GetByID(ctx, u.ID)
}

// Delete removes a user; membership rows cascade at the schema level.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// AttachRoles adds memberships, ignoring ids already present.
func (r *Repository) AttachRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockUser(ctx, tx, userID); err != nil {
			return err
		}
		return attachRoles(ctx, tx, userID, roleIDs)
	})
}

// SyncRoles replaces the membership set with exactly roleIDs.
func (r *Repository) SyncRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockUser(ctx, tx, userID); err != nil {
			return err
		}
		return replaceRoles(ctx, tx, userID, roleIDs)
	})
}

// MissingRoles returns the subset of ids with no matching role.
func (r *Repository) MissingRoles(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT id FROM roles WHERE id = ANY($1)`, ids)
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

func scanUser(row pgx.Row, u *User) error {
	return row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.EmailVerifiedAt, &u.CreatedAt, &u.UpdatedAt)
}

// lockUser serializes concurrent membership mutations on the same user.
func lockUser(ctx context.Context, tx pgx.Tx, userID int64) error {
	var id int64
	err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	return err
}

func attachRoles(ctx context.Context, tx pgx.Tx, userID int64, roleIDs []int64) error {
	for _, rid := range dedupe(roleIDs) {
		if _, err := tx.Exec(ctx,
			`INSERT INTO user_role (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			userID, rid); err != nil {
			return fmt.Errorf("attach role %d: %w", rid, err)
		}
	}
	return nil
}

func replaceRoles(ctx context.Context, tx pgx.Tx, userID int64, roleIDs []int64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM user_role WHERE user_id = $1`, userID); err != nil {
		return err
	}
	return attachRoles(ctx, tx, userID, roleIDs)
}

// roleGraphsByUser loads roles and their permissions for a set of users in
// two queries, avoiding per-user round trips.
func roleGraphsByUser(ctx context.Context, q querier, userIDs []int64) (map[int64][]rbac.Role, error) {
	graphs := make(map[int64][]rbac.Role, len(userIDs))
	if len(userIDs) == 0 {
		return graphs, nil
	}
	rows, err := q.Query(ctx, `
SELECT ur.user_id, r.id, r.name, r.slug, r.description, r.created_at, r.updated_at
FROM user_role ur
JOIN roles r ON r.id = ur.role_id
WHERE ur.user_id = ANY($1)
ORDER BY r.id`, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roleIDs []int64
	seenRoles := make(map[int64]struct{})
	type membership struct {
		userID int64
		role   rbac.Role
	}
	var memberships []membership
	for rows.Next() {
		var m membership
		if err := rows.Scan(&m.userID, &m.role.ID, &m.role.Name, &m.role.Slug, &m.role.Description, &m.role.CreatedAt, &m.role.UpdatedAt); err != nil {
			return nil, err
		}
		memberships = append(memberships, m)
		if _, ok := seenRoles[m.role.ID]; !ok {
			seenRoles[m.role.ID] = struct{}{}
			roleIDs = append(roleIDs, m.role.ID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	grants, err := permissionsByRole(ctx, q, roleIDs)
	if err != nil {
		return nil, err
	}
	for _, m := range memberships {
		m.role.Permissions = grants[m.role.ID]
		graphs[m.userID] = append(graphs[m.userID], m.role)
	}
	return graphs, nil
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
