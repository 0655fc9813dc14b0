package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/perfect-api/apiserver/internal/apperr"
	"github.com/perfect-api/apiserver/internal/mq"
	"github.com/perfect-api/apiserver/internal/store"
	"github.com/perfect-api/apiserver/types"
)

// Result pairs a success message with the affected user.
type Result struct {
	Message string
	Data    types.UserView
}

// ListQuery selects one page of users. Zero Page and Limit select the
// defaults; other values are clamped by NormalizePage.
type ListQuery struct {
	Page   int
	Limit  int
	Filter types.UserFilter
}

// UserPage is one page of a user listing.
type UserPage struct {
	Users      []types.UserView
	Total      int
	TotalPages int
	Page       int
	Limit      int
}

// UserUpdate carries optional profile changes. Blank values are ignored.
type UserUpdate struct {
	Name  *string
	Email *string
}

// RoleChange names the target permission by id or by role name. PermissionID
// wins when both are set.
type RoleChange struct {
	PermissionID string
	Role         string
}

// UserService encapsulates user management use-cases.
type UserService struct {
	users       UserRepository
	permissions PermissionRepository
	hasher      PasswordHasher
	notifier
}

func NewUserService(users UserRepository, permissions PermissionRepository, hasher PasswordHasher, events EventPublisher, logger *slog.Logger) *UserService {
	return &UserService{
		users:       users,
		permissions: permissions,
		hasher:      hasher,
		notifier:    notifier{events: events, logger: logger},
	}
}

func (s *UserService) CreateAdminUser(ctx context.Context, actorID string, account Account) (Result, error) {
	return s.create(ctx, actorID, account, types.RoleAdmin, "Admin user created successfully")
}

func (s *UserService) CreateRegularUser(ctx context.Context, actorID string, account Account) (Result, error) {
	return s.create(ctx, actorID, account, types.RoleUser, "Regular user created successfully")
}

func (s *UserService) create(ctx context.Context, actorID string, account Account, role types.Role, message string) (Result, error) {
	view, err := createAccount(ctx, s.users, s.hasher, account, role)
	if err != nil {
		return Result{}, err
	}
	s.emit(ctx, mq.UserEvent{
		Type:    mq.EventUserCreated,
		UserID:  view.ID,
		Email:   view.Email,
		Role:    view.Permission.Role,
		ActorID: actorID,
	})
	return Result{Message: message, Data: view}, nil
}

// ListUsers returns one page of users, newest first. A page past the end is
// empty but still carries the totals.
func (s *UserService) ListUsers(ctx context.Context, query ListQuery) (UserPage, error) {
	if query.Page == 0 {
		query.Page = DefaultPage
	}
	if query.Limit == 0 {
		query.Limit = DefaultLimit
	}
	page, limit := NormalizePage(query.Page, query.Limit)
	users, total, err := s.users.List(ctx, query.Filter, (page-1)*limit, limit)
	if err != nil {
		return UserPage{}, fmt.Errorf("list users: %w", err)
	}
	return UserPage{
		Users:      users,
		Total:      total,
		TotalPages: totalPages(total, limit),
		Page:       page,
		Limit:      limit,
	}, nil
}

func (s *UserService) GetUser(ctx context.Context, id string) (Result, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Result{}, apperr.ErrUserNotFound
		}
		return Result{}, fmt.Errorf("get user: %w", err)
	}
	return Result{Message: "User found successfully", Data: user.View()}, nil
}

func (s *UserService) UpdateUser(ctx context.Context, actorID, id string, update UserUpdate) (Result, error) {
	var patch types.UserPatch
	if update.Name != nil {
		if name := strings.TrimSpace(*update.Name); name != "" {
			patch.Name = &name
		}
	}
	if update.Email != nil {
		if email := types.NormalizeEmail(*update.Email); email != "" {
			patch.Email = &email
		}
	}

	view, err := s.users.Update(ctx, id, patch)
	if err != nil {
		return Result{}, err
	}
	s.emit(ctx, mq.UserEvent{
		Type:    mq.EventUserUpdated,
		UserID:  view.ID,
		Email:   view.Email,
		Role:    view.Permission.Role,
		ActorID: actorID,
	})
	return Result{Message: "User updated successfully", Data: view}, nil
}

// ChangeSelfPassword replaces the caller's password.
func (s *UserService) ChangeSelfPassword(ctx context.Context, userID, password string) (Result, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return Result{}, err
	}
	view, err := s.users.UpdatePassword(ctx, userID, hash)
	if err != nil {
		return Result{}, err
	}
	s.emit(ctx, mq.UserEvent{
		Type:    mq.EventUserPasswordChanged,
		UserID:  view.ID,
		ActorID: userID,
	})
	return Result{Message: "User password updated successfully", Data: view}, nil
}

func (s *UserService) UpdateUserRole(ctx context.Context, actorID, id string, change RoleChange) (Result, error) {
	permissionID := strings.TrimSpace(change.PermissionID)
	if permissionID == "" {
		role, ok := types.ParseRole(change.Role)
		if !ok {
			return Result{}, apperr.ErrRoleNotFound
		}
		permission, err := s.permissions.GetByRole(ctx, role)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return Result{}, apperr.ErrRoleNotFound
			}
			return Result{}, fmt.Errorf("lookup role: %w", err)
		}
		permissionID = permission.ID
	}

	view, err := s.users.UpdateRole(ctx, id, permissionID)
	if err != nil {
		return Result{}, err
	}
	s.emit(ctx, mq.UserEvent{
		Type:    mq.EventUserRoleChanged,
		UserID:  view.ID,
		Email:   view.Email,
		Role:    view.Permission.Role,
		ActorID: actorID,
	})
	return Result{Message: "User role updated successfully", Data: view}, nil
}

// RemoveUser deletes the user and returns the success message.
func (s *UserService) RemoveUser(ctx context.Context, actorID, id string) (string, error) {
	if err := s.users.Delete(ctx, id); err != nil {
		return "", err
	}
	s.emit(ctx, mq.UserEvent{
		Type:    mq.EventUserRemoved,
		UserID:  id,
		ActorID: actorID,
	})
	return "User removed successfully", nil
}

// ListRoles returns the role catalog.
func (s *UserService) ListRoles(ctx context.Context) ([]types.Permission, error) {
	permissions, err := s.permissions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return permissions, nil
}

// CurrentRole reads the user's role as stored right now.
func (s *UserService) CurrentRole(ctx context.Context, userID string) (types.Role, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", apperr.ErrUserNotFound
		}
		return "", fmt.Errorf("lookup role: %w", err)
	}
	return user.Permission.Role, nil
}
