package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	_ "github.com/noah-isme/mute-meter-api/api/swagger"
	"github.com/noah-isme/mute-meter-api/internal/dto"
	"github.com/noah-isme/mute-meter-api/internal/migration"
	"github.com/noah-isme/mute-meter-api/internal/models"
	"github.com/noah-isme/mute-meter-api/internal/repository"
	"github.com/noah-isme/mute-meter-api/internal/server"
	"github.com/noah-isme/mute-meter-api/internal/service"
	"github.com/noah-isme/mute-meter-api/pkg/config"
	"github.com/noah-isme/mute-meter-api/pkg/database"
	"github.com/noah-isme/mute-meter-api/pkg/logger"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "mute-dashboard"
)

// @title Mute Meter Dashboard API
// @version 0.1.0
// @description Role-gated dashboard for annotating and analysing mute smart meters
// @BasePath /api/v1
// @schemes http

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          appName,
		Short:        "Mute meter dashboard API",
		SilenceUsage: true,
	}

	cmd.AddCommand(serveCmd(), migrateCmd(), createAdminCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
					return &fxevent.ZapLogger{Logger: l.Named("fx")}
				}),
				server.InfraModule,
				migration.Module,
				server.ServiceModule,
				server.Module,
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logr, err := bootstrap()
			if err != nil {
				return err
			}
			defer logr.Sync() //nolint:errcheck

			db, err := database.NewPostgres(cfg.Database)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer db.Close()

			if err := migration.RunMigrations(db.DB); err != nil {
				return err
			}
			version, dirty, err := migration.Version(db.DB)
			if err != nil {
				return err
			}
			logr.Info("migrations applied", zap.Uint("version", version), zap.Bool("dirty", dirty))
			return nil
		},
	}
}

func createAdminCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logr, err := bootstrap()
			if err != nil {
				return err
			}
			defer logr.Sync() //nolint:errcheck

			db, err := database.NewPostgres(cfg.Database)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer db.Close()

			users := service.NewUserService(
				repository.NewUserRepository(db, cfg.Database.QueryTimeout),
				nil,
				service.NewValidator(cfg.Auth.OrgEmailDomain),
				logr,
				cfg.Auth.BcryptCost,
			)

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			user, err := users.Create(ctx, dto.CreateUserRequest{
				Email:    email,
				Password: password,
				Role:     models.RoleAdmin,
			}, service.Actor{Role: models.RoleAdmin, Email: "cli"})
			if err != nil {
				return err
			}
			logr.Info("administrator created", zap.String("id", user.ID), zap.String("email", user.Email))
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Administrator email (must belong to the organisation domain)")
	cmd.Flags().StringVar(&password, "password", "", "Initial password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logr, nil
}
