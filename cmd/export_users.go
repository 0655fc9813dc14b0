/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/perfect-api/apiserver/config"
	"github.com/perfect-api/apiserver/internal/server"
	"github.com/spf13/cobra"
)

// exportUsersCmd writes the user directory to object storage.
var exportUsersCmd = &cobra.Command{
	Use:   "export-users",
	Short: "Export all users as JSON Lines to the configured bucket",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := newLogger(cfg)

		components, err := server.NewComponents(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer components.Close()

		if components.Exports == nil {
			return errors.New("STORAGE_BACKEND is not configured")
		}
		result, err := components.Exports.ExportUsers(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "exported %d users to %s/%s\n", result.Count, result.Object.Bucket, result.Object.Key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportUsersCmd)
}
