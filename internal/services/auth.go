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

// Account is the input for creating a user through any entry point.
type Account struct {
	Name     string
	Email    string
	Password string
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	UserID string
	Token  string
}

// AuthService implements signup, login and caller lookup.
type AuthService struct {
	users  UserRepository
	hasher PasswordHasher
	tokens TokenIssuer
	notifier
}

func NewAuthService(users UserRepository, hasher PasswordHasher, tokens TokenIssuer, events EventPublisher, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:    users,
		hasher:   hasher,
		tokens:   tokens,
		notifier: notifier{events: events, logger: logger},
	}
}

// Signup registers a USER account.
func (s *AuthService) Signup(ctx context.Context, account Account) (types.UserView, error) {
	view, err := createAccount(ctx, s.users, s.hasher, account, types.RoleUser)
	if err != nil {
		return types.UserView{}, err
	}
	s.emit(ctx, mq.UserEvent{
		Type:    mq.EventUserCreated,
		UserID:  view.ID,
		Email:   view.Email,
		Role:    view.Permission.Role,
		ActorID: view.ID,
	})
	return view, nil
}

// Login checks credentials and issues an access token. Unknown emails and
// wrong passwords fail identically, and both cost one bcrypt comparison.
func (s *AuthService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.hasher.Burn(password)
			return LoginResult{}, apperr.ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("lookup user: %w", err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return LoginResult{}, err
	}
	if !ok {
		return LoginResult{}, apperr.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID, user.Permission.Role)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}
	return LoginResult{UserID: user.ID, Token: token}, nil
}

// Me returns the projection of the authenticated caller.
func (s *AuthService) Me(ctx context.Context, userID string) (types.UserView, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.UserView{}, apperr.ErrUserNotFound
		}
		return types.UserView{}, fmt.Errorf("lookup user: %w", err)
	}
	return user.View(), nil
}

// createAccount hashes before the repository opens its transaction so the
// row locks are not held across bcrypt.
func createAccount(ctx context.Context, users UserRepository, hasher PasswordHasher, account Account, role types.Role) (types.UserView, error) {
	hash, err := hasher.Hash(account.Password)
	if err != nil {
		return types.UserView{}, err
	}
	return users.Create(ctx, types.NewUser{
		Name:         strings.TrimSpace(account.Name),
		Email:        types.NormalizeEmail(account.Email),
		PasswordHash: hash,
		Role:         role,
	})
}
