package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"crm-platform/internal/config"
	"crm-platform/internal/rbac"
	"crm-platform/internal/store"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			if !cfg.Backend.Configured() {
				return errors.New("SUPABASE_URL and SUPABASE_SERVICE_KEY must be set to migrate")
			}
			db, err := store.OpenPostgres(cmd.Context(), cfg.Backend.URL, store.PoolConfig{})
			if err != nil {
				return fmt.Errorf("postgres init failed: %w", err)
			}
			defer db.Close()

			applied, err := store.ApplyMigrations(cmd.Context(), db)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintln(cmd.OutOrStdout(), "applied", name)
			}
			return nil
		},
	}
}

func newPermissionsCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "permissions",
		Short: "Print the permission catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc := map[string][]rbac.Permission{"permissions": rbac.DefaultCatalog().All()}
			out := cmd.OutOrStdout()
			switch format {
			case "yaml":
				enc := yaml.NewEncoder(out)
				defer enc.Close()
				return enc.Encode(doc)
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(doc)
			default:
				return fmt.Errorf("invalid format %q: must be yaml or json", format)
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "output format (yaml|json)")
	return cmd
}
