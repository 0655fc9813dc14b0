/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"log/slog"
	"os"

	"github.com/perfect-api/apiserver/config"
	"github.com/perfect-api/apiserver/internal/obs"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "perfect-api",
	Short: "User account service with JWT authentication and role based access",
	Long: `perfect-api serves signup, login and user management over HTTP and
ships the operational commands that go with it (migrations, admin
bootstrap, exports and event tailing).`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	logger := obs.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)
	return logger
}
