package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/perfect-api/apiserver/internal/apperr"
	"github.com/perfect-api/apiserver/internal/db"
	"github.com/perfect-api/apiserver/types"
)

const selectUser = `
		SELECT u.id, u.name, u.email, u.password, u.created_at, u.updated_at, p.id, p.role
		FROM users u
		JOIN permissions p ON p.id = u.permission_id`

// UserRepository handles persistence for users. Every mutation re-reads and
// locks the target row inside its own transaction before writing.
type UserRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Ping checks the underlying connection.
func (r *UserRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, selectUser+`
		WHERE u.id = $1`, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, selectUser+`
		WHERE u.email = $1`, email))
}

func (r *UserRepository) Create(ctx context.Context, newUser types.NewUser) (types.UserView, error) {
	var view types.UserView
	err := db.WithTx(ctx, r.db, nil, func(ctx context.Context, tx db.DBTX) error {
		taken, err := emailTaken(ctx, tx, newUser.Email, "")
		if err != nil {
			return err
		}
		if taken {
			return apperr.ErrUserAlreadyExists
		}

		permission, err := NewPermissionRepository(tx).GetByRole(ctx, newUser.Role)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return permissionNotFound(newUser.Role)
			}
			return fmt.Errorf("lookup permission: %w", err)
		}

		now := r.now()
		user := types.User{
			ID:           uuid.NewString(),
			Name:         newUser.Name,
			Email:        newUser.Email,
			PasswordHash: newUser.PasswordHash,
			Permission:   permission,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		const query = `
		INSERT INTO users (id, name, email, password, permission_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
		if _, err := tx.ExecContext(
			ctx,
			query,
			user.ID,
			user.Name,
			user.Email,
			user.PasswordHash,
			permission.ID,
			user.CreatedAt,
			user.UpdatedAt,
		); err != nil {
			if isUniqueViolation(err) {
				return apperr.ErrUserAlreadyExists
			}
			return fmt.Errorf("insert user: %w", err)
		}

		view = user.View()
		return nil
	})
	return view, err
}

// List returns one page of users together with the total match count. Both
// queries share a repeatable-read snapshot.
func (r *UserRepository) List(ctx context.Context, filter types.UserFilter, offset, limit int) ([]types.UserView, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 10
	}

	where, args := listConditions(filter)
	const from = `
		FROM users u
		JOIN permissions p ON p.id = u.permission_id`

	var (
		users []types.UserView
		total int
	)
	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	err := db.WithTx(ctx, r.db, opts, func(ctx context.Context, tx db.DBTX) error {
		countQuery := `SELECT COUNT(1)` + from + where
		if err := tx.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
			return fmt.Errorf("count users: %w", err)
		}

		listQuery := `SELECT u.id, u.name, u.email, p.role` + from + where + fmt.Sprintf(`
		ORDER BY u.created_at DESC, u.id
		OFFSET $%d LIMIT $%d`, len(args)+1, len(args)+2)
		rows, err := tx.QueryContext(ctx, listQuery, append(args, offset, limit)...)
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}
		defer rows.Close()

		users = make([]types.UserView, 0, limit)
		for rows.Next() {
			var view types.UserView
			if err := rows.Scan(&view.ID, &view.Name, &view.Email, &view.Permission.Role); err != nil {
				return err
			}
			users = append(users, view)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *UserRepository) Update(ctx context.Context, id string, patch types.UserPatch) (types.UserView, error) {
	var view types.UserView
	err := db.WithTx(ctx, r.db, nil, func(ctx context.Context, tx db.DBTX) error {
		user, err := lockUser(ctx, tx, id)
		if err != nil {
			return err
		}

		if patch.Name != nil {
			user.Name = *patch.Name
		}
		if patch.Email != nil && *patch.Email != user.Email {
			taken, err := emailTaken(ctx, tx, *patch.Email, user.ID)
			if err != nil {
				return err
			}
			if taken {
				return apperr.ErrEmailAlreadyInUse
			}
			user.Email = *patch.Email
		}
		user.UpdatedAt = r.now()

		const query = `
		UPDATE users
		SET name = $1,
			email = $2,
			updated_at = $3
		WHERE id = $4`
		if _, err := tx.ExecContext(ctx, query, user.Name, user.Email, user.UpdatedAt, user.ID); err != nil {
			if isUniqueViolation(err) {
				return apperr.ErrEmailAlreadyInUse
			}
			return fmt.Errorf("update user: %w", err)
		}

		view = user.View()
		return nil
	})
	return view, err
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) (types.UserView, error) {
	var view types.UserView
	err := db.WithTx(ctx, r.db, nil, func(ctx context.Context, tx db.DBTX) error {
		user, err := lockUser(ctx, tx, id)
		if err != nil {
			return err
		}

		const query = `
		UPDATE users
		SET password = $1,
			updated_at = $2
		WHERE id = $3`
		if _, err := tx.ExecContext(ctx, query, passwordHash, r.now(), user.ID); err != nil {
			return fmt.Errorf("update password: %w", err)
		}

		view = user.View()
		return nil
	})
	return view, err
}

func (r *UserRepository) UpdateRole(ctx context.Context, id, permissionID string) (types.UserView, error) {
	var view types.UserView
	err := db.WithTx(ctx, r.db, nil, func(ctx context.Context, tx db.DBTX) error {
		user, err := lockUser(ctx, tx, id)
		if err != nil {
			return err
		}

		permission, err := NewPermissionRepository(tx).GetByID(ctx, permissionID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return apperr.ErrRoleNotFound
			}
			return fmt.Errorf("lookup role: %w", err)
		}

		const query = `
		UPDATE users
		SET permission_id = $1,
			updated_at = $2
		WHERE id = $3`
		if _, err := tx.ExecContext(ctx, query, permission.ID, r.now(), user.ID); err != nil {
			return fmt.Errorf("update role: %w", err)
		}

		user.Permission = permission
		view = user.View()
		return nil
	})
	return view, err
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	return db.WithTx(ctx, r.db, nil, func(ctx context.Context, tx db.DBTX) error {
		user, err := lockUser(ctx, tx, id)
		if err != nil {
			return err
		}

		const query = `DELETE FROM users WHERE id = $1`
		if _, err := tx.ExecContext(ctx, query, user.ID); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
}

// lockUser loads the user row FOR UPDATE so concurrent mutations of the same
// id serialize; a row deleted by the winner surfaces as UserNotFound.
func lockUser(ctx context.Context, tx db.DBTX, id string) (types.User, error) {
	user, err := scanUser(tx.QueryRowContext(ctx, selectUser+`
		WHERE u.id = $1
		FOR UPDATE OF u`, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return types.User{}, apperr.ErrUserNotFound
		}
		return types.User{}, fmt.Errorf("lock user: %w", err)
	}
	return user, nil
}

func emailTaken(ctx context.Context, tx db.DBTX, email, excludeID string) (bool, error) {
	query := `SELECT id FROM users WHERE lower(email) = lower($1)`
	args := []any{email}
	if excludeID != "" {
		query += ` AND id <> $2`
		args = append(args, excludeID)
	}

	var id string
	err := tx.QueryRowContext(ctx, query+` LIMIT 1`, args...).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check email: %w", err)
	}
	return true, nil
}

func listConditions(filter types.UserFilter) (string, []any) {
	var (
		conditions []string
		args       []any
	)
	if name := strings.TrimSpace(filter.Name); name != "" {
		args = append(args, "%"+escapeLike(name)+"%")
		conditions = append(conditions, fmt.Sprintf(`u.name ILIKE $%d ESCAPE '\'`, len(args)))
	}
	if filter.Role != "" {
		args = append(args, string(filter.Role))
		conditions = append(conditions, fmt.Sprintf(`p.role = $%d`, len(args)))
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return `
		WHERE ` + strings.Join(conditions, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func permissionNotFound(role types.Role) *apperr.Error {
	if role == types.RoleAdmin {
		return apperr.ErrPermissionNotFound.WithMessage("Admin permission not found")
	}
	return apperr.ErrPermissionNotFound.WithMessage("User permission not found")
}

func scanUser(row *sql.Row) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.Permission.ID,
		&user.Permission.Role,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}
