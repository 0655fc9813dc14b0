package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/perfect-api/apiserver/internal/db"
	"github.com/perfect-api/apiserver/types"
)

// PermissionRepository reads the seeded permission records.
type PermissionRepository struct {
	db db.DBTX
}

func NewPermissionRepository(db db.DBTX) *PermissionRepository {
	return &PermissionRepository{db: db}
}

func (r *PermissionRepository) GetByRole(ctx context.Context, role types.Role) (types.Permission, error) {
	const query = `SELECT id, role FROM permissions WHERE role = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, string(role)))
}

func (r *PermissionRepository) GetByID(ctx context.Context, id string) (types.Permission, error) {
	const query = `SELECT id, role FROM permissions WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PermissionRepository) List(ctx context.Context) ([]types.Permission, error) {
	const query = `SELECT id, role FROM permissions ORDER BY role`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var permissions []types.Permission
	for rows.Next() {
		var p types.Permission
		if err := rows.Scan(&p.ID, &p.Role); err != nil {
			return nil, err
		}
		permissions = append(permissions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return permissions, nil
}

func (r *PermissionRepository) scanOne(row *sql.Row) (types.Permission, error) {
	var p types.Permission
	if err := row.Scan(&p.ID, &p.Role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Permission{}, ErrNotFound
		}
		return types.Permission{}, err
	}
	return p, nil
}
