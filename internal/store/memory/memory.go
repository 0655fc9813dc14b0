// Package memory is an in-process implementation of the user and permission
// repositories. A single mutex is held for the whole of each operation, which
// gives every call the same all-or-nothing behaviour as a database transaction.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/perfect-api/apiserver/internal/apperr"
	"github.com/perfect-api/apiserver/internal/store"
	"github.com/perfect-api/apiserver/types"
)

// Seeded permission ids, identical to the ones inserted by migrations.
const (
	AdminPermissionID = "7d1c8f0e-3f5e-4a8b-9a53-2f0f6f3c1a01"
	UserPermissionID  = "b6a5e2f4-0c7d-4e1a-8f3b-5d9e2c4a7b02"
)

// Store holds users and permissions in memory.
type Store struct {
	mu          sync.Mutex
	users       map[string]types.User
	permissions map[string]types.Permission
	now         func() time.Time
}

// New returns a store seeded with the ADMIN and USER permissions.
func New() *Store {
	s := NewEmpty()
	s.permissions[AdminPermissionID] = types.Permission{ID: AdminPermissionID, Role: types.RoleAdmin}
	s.permissions[UserPermissionID] = types.Permission{ID: UserPermissionID, Role: types.RoleUser}
	return s
}

// NewEmpty returns a store without seed data.
func NewEmpty() *Store {
	return &Store{
		users:       make(map[string]types.User),
		permissions: make(map[string]types.Permission),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Users exposes the store through the user repository method set.
func (s *Store) Users() *UserRepository {
	return &UserRepository{s: s}
}

// Permissions exposes the store through the permission repository method set.
func (s *Store) Permissions() *PermissionRepository {
	return &PermissionRepository{s: s}
}

type PermissionRepository struct {
	s *Store
}

func (r *PermissionRepository) GetByRole(_ context.Context, role types.Role) (types.Permission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p, ok := r.s.permissionByRole(role); ok {
		return p, nil
	}
	return types.Permission{}, store.ErrNotFound
}

func (r *PermissionRepository) GetByID(_ context.Context, id string) (types.Permission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p, ok := r.s.permissions[id]; ok {
		return p, nil
	}
	return types.Permission{}, store.ErrNotFound
}

func (r *PermissionRepository) List(_ context.Context) ([]types.Permission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	permissions := make([]types.Permission, 0, len(r.s.permissions))
	for _, p := range r.s.permissions {
		permissions = append(permissions, p)
	}
	sort.Slice(permissions, func(i, j int) bool { return permissions[i].Role < permissions[j].Role })
	return permissions, nil
}

type UserRepository struct {
	s *Store
}

func (r *UserRepository) Ping(ctx context.Context) error {
	return r.s.Ping(ctx)
}

func (r *UserRepository) GetByID(_ context.Context, id string) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u, ok := r.s.users[id]; ok {
		return r.s.withPermission(u), nil
	}
	return types.User{}, store.ErrNotFound
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			return r.s.withPermission(u), nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *UserRepository) Create(_ context.Context, newUser types.NewUser) (types.UserView, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.s.emailTaken(newUser.Email, "") {
		return types.UserView{}, apperr.ErrUserAlreadyExists
	}
	permission, ok := r.s.permissionByRole(newUser.Role)
	if !ok {
		if newUser.Role == types.RoleAdmin {
			return types.UserView{}, apperr.ErrPermissionNotFound.WithMessage("Admin permission not found")
		}
		return types.UserView{}, apperr.ErrPermissionNotFound.WithMessage("User permission not found")
	}

	now := r.s.now()
	user := types.User{
		ID:           uuid.NewString(),
		Name:         newUser.Name,
		Email:        newUser.Email,
		PasswordHash: newUser.PasswordHash,
		Permission:   types.Permission{ID: permission.ID},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.s.users[user.ID] = user
	return r.s.withPermission(user).View(), nil
}

func (r *UserRepository) List(_ context.Context, filter types.UserFilter, offset, limit int) ([]types.UserView, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 10
	}

	name := strings.ToLower(strings.TrimSpace(filter.Name))
	matched := make([]types.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		u = r.s.withPermission(u)
		if name != "" && !strings.Contains(strings.ToLower(u.Name), name) {
			continue
		}
		if filter.Role != "" && u.Permission.Role != filter.Role {
			continue
		}
		matched = append(matched, u)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	views := make([]types.UserView, 0, limit)
	for i := offset; i < total && len(views) < limit; i++ {
		views = append(views, matched[i].View())
	}
	return views, total, nil
}

func (r *UserRepository) Update(_ context.Context, id string, patch types.UserPatch) (types.UserView, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	user, ok := r.s.users[id]
	if !ok {
		return types.UserView{}, apperr.ErrUserNotFound
	}
	if patch.Email != nil && *patch.Email != user.Email {
		if r.s.emailTaken(*patch.Email, id) {
			return types.UserView{}, apperr.ErrEmailAlreadyInUse
		}
		user.Email = *patch.Email
	}
	if patch.Name != nil {
		user.Name = *patch.Name
	}
	user.UpdatedAt = r.s.now()
	r.s.users[id] = user
	return r.s.withPermission(user).View(), nil
}

func (r *UserRepository) UpdatePassword(_ context.Context, id, passwordHash string) (types.UserView, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	user, ok := r.s.users[id]
	if !ok {
		return types.UserView{}, apperr.ErrUserNotFound
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = r.s.now()
	r.s.users[id] = user
	return r.s.withPermission(user).View(), nil
}

func (r *UserRepository) UpdateRole(_ context.Context, id, permissionID string) (types.UserView, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	user, ok := r.s.users[id]
	if !ok {
		return types.UserView{}, apperr.ErrUserNotFound
	}
	if _, ok := r.s.permissions[permissionID]; !ok {
		return types.UserView{}, apperr.ErrRoleNotFound
	}
	user.Permission = types.Permission{ID: permissionID}
	user.UpdatedAt = r.s.now()
	r.s.users[id] = user
	return r.s.withPermission(user).View(), nil
}

func (r *UserRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[id]; !ok {
		return apperr.ErrUserNotFound
	}
	delete(r.s.users, id)
	return nil
}

func (s *Store) emailTaken(email, excludeID string) bool {
	for id, u := range s.users {
		if id != excludeID && strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}

func (s *Store) permissionByRole(role types.Role) (types.Permission, bool) {
	for _, p := range s.permissions {
		if p.Role == role {
			return p, true
		}
	}
	return types.Permission{}, false
}

// withPermission resolves the stored permission reference, so a role change
// is visible through every user that points at it.
func (s *Store) withPermission(u types.User) types.User {
	u.Permission = s.permissions[u.Permission.ID]
	return u
}
