package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vadimbarashkov/image-tracker/internal/app"
	"github.com/vadimbarashkov/image-tracker/internal/config"
	"github.com/vadimbarashkov/image-tracker/pkg/postgres"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "image-tracker",
		Short:         "Image upload, short link and access tracking service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_PATH"),
		"path to the YAML config file (defaults to $CONFIG_PATH)")

	loadConfig := func() (*config.Config, error) {
		if configPath == "" {
			return nil, fmt.Errorf("config path is empty: use --config or CONFIG_PATH")
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}

		if err := cfg.Validate(); err != nil {
			return nil, err
		}

		return cfg, nil
	}

	root.AddCommand(
		newServeCmd(loadConfig),
		newMigrateCmd(loadConfig),
	)

	return root
}

func newServeCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Apply pending migrations and start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			return app.Run(cmd.Context(), cfg)
		},
	}
}

func newMigrateCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	for _, dir := range []postgres.Direction{postgres.Up, postgres.Down} {
		cmd.AddCommand(&cobra.Command{
			Use:   string(dir),
			Short: fmt.Sprintf("Run all %s migrations", dir),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}

				if err := app.Migrate(cfg, dir); err != nil {
					return err
				}

				cmd.Printf("migrations %s applied\n", dir)
				return nil
			},
		})
	}

	return cmd
}
