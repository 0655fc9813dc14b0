package services

import (
	"context"
	"log/slog"
	"math"

	"github.com/perfect-api/apiserver/internal/mq"
	"github.com/perfect-api/apiserver/types"
)

// UserRepository defines persistence operations for users. Mutations are
// atomic and report domain failures as apperr kinds.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.NewUser) (types.UserView, error)
	List(ctx context.Context, filter types.UserFilter, offset, limit int) ([]types.UserView, int, error)
	Update(ctx context.Context, id string, patch types.UserPatch) (types.UserView, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) (types.UserView, error)
	UpdateRole(ctx context.Context, id, permissionID string) (types.UserView, error)
	Delete(ctx context.Context, id string) error
}

// PermissionRepository reads the seeded role records.
type PermissionRepository interface {
	GetByRole(ctx context.Context, role types.Role) (types.Permission, error)
	GetByID(ctx context.Context, id string) (types.Permission, error)
	List(ctx context.Context) ([]types.Permission, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, digest string) (bool, error)
	Burn(password string)
}

type TokenIssuer interface {
	Issue(userID string, role types.Role) (string, error)
}

// EventPublisher receives user lifecycle events after the mutation committed.
type EventPublisher interface {
	PublishUserEvent(ctx context.Context, event mq.UserEvent) error
}

// Page defaults and bounds for user listings.
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// NormalizePage clamps page to [1, math.MaxInt/limit] and limit to
// [1, MaxLimit], so the derived offset never overflows. Callers substitute
// DefaultPage and DefaultLimit for absent parameters before calling.
func NormalizePage(page, limit int) (int, int) {
	if limit < 1 {
		limit = 1
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if page < 1 {
		page = 1
	}
	if maxPage := math.MaxInt / limit; page > maxPage {
		page = maxPage
	}
	return page, limit
}

func totalPages(total, limit int) int {
	if limit < 1 {
		return 0
	}
	return int(math.Ceil(float64(total) / float64(limit)))
}

// notifier publishes events without ever failing the caller.
type notifier struct {
	events EventPublisher
	logger *slog.Logger
}

func (n notifier) emit(ctx context.Context, event mq.UserEvent) {
	if n.events == nil {
		return
	}
	if err := n.events.PublishUserEvent(ctx, event); err != nil {
		logger := n.logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.WarnContext(ctx, "publish user event failed",
			"event_type", event.Type,
			"user_id", event.UserID,
			"error", err,
		)
	}
}
