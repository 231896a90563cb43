package permissions

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse-api/gatehouse/internal/platform/db"
	"github.com/gatehouse-api/gatehouse/internal/rbac"
	"github.com/gatehouse-api/gatehouse/internal/shared"
)

// Repository provides PostgreSQL backed persistence for permissions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns all permissions.
func (r *Repository) List(ctx context.Context) ([]rbac.Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, slug, description, created_at, updated_at FROM permissions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []rbac.Permission
	for rows.Next() {
		var p rbac.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// GetByID fetches a permission by ID.
func (r *Repository) GetByID(ctx context.Context, id int64) (*rbac.Permission, error) {
	var p rbac.Permission
	err := r.pool.QueryRow(ctx, `SELECT id, name, slug, description, created_at, updated_at FROM permissions WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Create inserts a new permission.
func (r *Repository) Create(ctx context.Context, name, slug, description string) (*rbac.Permission, error) {
	var p rbac.Permission
	err := r.pool.QueryRow(ctx,
		`INSERT INTO permissions (name, slug, description) VALUES ($1, $2, $3) RETURNING id, name, slug, description, created_at, updated_at`,
		name, slug, description).
		Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, shared.ErrDuplicateSlug
		}
		return nil, err
	}
	return &p, nil
}

// Update saves the permission fields.
func (r *Repository) Update(ctx context.Context, p *rbac.Permission) (*rbac.Permission, error) {
	var out rbac.Permission
	err := r.pool.QueryRow(ctx,
		`UPDATE permissions SET name = $2, slug = $3, description = $4, updated_at = NOW() WHERE id = $1 RETURNING id, name, slug, description, created_at, updated_at`,
		p.ID, p.Name, p.Slug, p.Description).
		Scan(&out.ID, &out.Name, &out.Slug, &out.Description, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		if db.IsUniqueViolation(err, "") {
			return nil, shared.ErrDuplicateSlug
		}
		return nil, err
	}
	return &out, nil
}

// Delete removes a permission. Join rows cascade at the schema level.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
