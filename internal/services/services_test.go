package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/perfect-api/apiserver/internal/auth"
	"github.com/perfect-api/apiserver/internal/mq"
	"github.com/perfect-api/apiserver/internal/store/memory"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []mq.UserEvent
	err    error
}

func (p *recordingPublisher) PublishUserEvent(_ context.Context, event mq.UserEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	store  *memory.Store
	hasher *auth.PasswordHasher
	tokens *auth.TokenIssuer
	events *recordingPublisher
	auth   *AuthService
	users  *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hasher, err := auth.NewPasswordHasher(auth.HasherConfig{Cost: bcrypt.MinCost})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		store:  memory.New(),
		hasher: hasher,
		tokens: auth.NewTokenIssuer(auth.DefaultTokenConfig("test-secret")),
		events: &recordingPublisher{},
	}
	f.auth = NewAuthService(f.store.Users(), hasher, f.tokens, f.events, logger)
	f.users = NewUserService(f.store.Users(), f.store.Permissions(), hasher, f.events, logger)
	return f
}

var errBrokerDown = errors.New("broker down")
