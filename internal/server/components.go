package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/perfect-api/apiserver/config"
	"github.com/perfect-api/apiserver/internal/auth"
	"github.com/perfect-api/apiserver/internal/db"
	"github.com/perfect-api/apiserver/internal/handlers"
	"github.com/perfect-api/apiserver/internal/mq"
	"github.com/perfect-api/apiserver/internal/obs"
	"github.com/perfect-api/apiserver/internal/services"
	"github.com/perfect-api/apiserver/internal/storage"
	"github.com/perfect-api/apiserver/internal/store"
	"github.com/perfect-api/apiserver/internal/store/memory"
)

// Components is the wired application graph shared by the HTTP server and
// the CLI commands.
type Components struct {
	Store   handlers.Pinger
	Tokens  *auth.TokenIssuer
	Auth    *services.AuthService
	Users   *services.UserService
	Exports *services.ExportService
	Events  *mq.EventPublisher
	Metrics *obs.Metrics

	closers []func() error
}

// NewComponents opens the configured store, broker and object storage and
// builds the services on top of them. Brokers and object storage are
// optional; the store is not.
func NewComponents(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Components, error) {
	hasher, err := auth.NewPasswordHasher(auth.HasherConfig{Cost: cfg.Auth.BcryptCost})
	if err != nil {
		return nil, err
	}

	c := &Components{
		Tokens:  auth.NewTokenIssuer(auth.DefaultTokenConfig(cfg.Auth.JWTSecret)),
		Metrics: obs.NewMetrics(),
	}

	var (
		users       services.UserRepository
		permissions services.PermissionRepository
	)
	switch cfg.Store {
	case config.StoreBackendMemory:
		st := memory.New()
		c.Store = st
		users, permissions = st.Users(), st.Permissions()
		logger.Warn("using in-memory store; data is lost on exit")
	case "", config.StoreBackendPostgres:
		conn, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, conn.Close)
		userRepo := store.NewUserRepository(conn)
		c.Store = userRepo
		users, permissions = userRepo, store.NewPermissionRepository(conn)
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}

	var events services.EventPublisher
	backend, err := mq.NewBackend(ctx, cfg.Events)
	switch {
	case errors.Is(err, mq.ErrDisabled):
	case err != nil:
		_ = c.Close()
		return nil, fmt.Errorf("connect events backend: %w", err)
	default:
		broker := mq.New(backend)
		c.closers = append(c.closers, broker.Close)
		c.Events = mq.NewEventPublisher(broker, cfg.Events.Channel)
		events = observedPublisher{next: c.Events, metrics: c.Metrics}
		logger.Info("publishing user events", "backend", cfg.Events.Backend, "channel", cfg.Events.Channel)
	}

	objects, err := storage.NewBackend(ctx, cfg.Storage)
	switch {
	case errors.Is(err, storage.ErrDisabled):
	case err != nil:
		_ = c.Close()
		return nil, fmt.Errorf("connect object storage: %w", err)
	default:
		c.closers = append(c.closers, objects.Close)
		c.Exports = services.NewExportService(users, objects)
		logger.Info("user export enabled", "backend", cfg.Storage.Backend, "bucket", objects.Bucket())
	}

	c.Auth = services.NewAuthService(users, hasher, c.Tokens, events, logger)
	c.Users = services.NewUserService(users, permissions, hasher, events, logger)
	return c, nil
}

// Close releases every opened resource, newest first.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

type observedPublisher struct {
	next    services.EventPublisher
	metrics *obs.Metrics
}

func (p observedPublisher) PublishUserEvent(ctx context.Context, event mq.UserEvent) error {
	err := p.next.PublishUserEvent(ctx, event)
	p.metrics.EventPublished(event.Type, err)
	return err
}
