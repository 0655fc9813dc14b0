/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/perfect-api/apiserver/config"
	"github.com/perfect-api/apiserver/internal/server"
	"github.com/perfect-api/apiserver/internal/services"
	"github.com/spf13/cobra"
)

const cliActor = "cli"

var adminAccount services.Account

// createAdminCmd bootstraps the first ADMIN account.
var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an ADMIN user directly in the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := newLogger(cfg)

		components, err := server.NewComponents(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer components.Close()

		result, err := components.Users.CreateAdminUser(cmd.Context(), cliActor, adminAccount)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s <%s>\n", result.Message, result.Data.ID, result.Data.Email)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createAdminCmd)

	createAdminCmd.Flags().StringVar(&adminAccount.Name, "name", "", "display name")
	createAdminCmd.Flags().StringVar(&adminAccount.Email, "email", "", "login email")
	createAdminCmd.Flags().StringVar(&adminAccount.Password, "password", "", "initial password")
	_ = createAdminCmd.MarkFlagRequired("name")
	_ = createAdminCmd.MarkFlagRequired("email")
	_ = createAdminCmd.MarkFlagRequired("password")
}
