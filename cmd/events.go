/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/perfect-api/apiserver/config"
	"github.com/perfect-api/apiserver/internal/mq"
	"github.com/spf13/cobra"
)

// eventsCmd groups user event tooling.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect user lifecycle events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Subscribe to the events channel and log every user event",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := newLogger(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		backend, err := mq.NewBackend(ctx, cfg.Events)
		if err != nil {
			if errors.Is(err, mq.ErrDisabled) {
				return errors.New("EVENTS_BACKEND is not configured")
			}
			return err
		}
		broker := mq.New(backend)
		defer broker.Close()

		logger.Info("tailing user events", "backend", cfg.Events.Backend, "channel", cfg.Events.Channel)
		err = mq.NewEventPublisher(broker, cfg.Events.Channel).SubscribeUserEvents(ctx, func(ctx context.Context, event mq.UserEvent) error {
			logger.InfoContext(ctx, "user event",
				"type", event.Type,
				"user_id", event.UserID,
				"email", event.Email,
				"role", event.Role,
				"actor_id", event.ActorID,
				"occurred_at", event.OccurredAt,
			)
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
