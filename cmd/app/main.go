// Package main provides the entry point for the application with CLI commands.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/tenantkit/secrets/cmd/app/commands"
	abuseUsecase "github.com/tenantkit/secrets/internal/abuse/usecase"
	"github.com/tenantkit/secrets/internal/app"
	"github.com/tenantkit/secrets/internal/config"
	keymgmtUsecase "github.com/tenantkit/secrets/internal/keymgmt/usecase"
	"github.com/tenantkit/secrets/internal/provider"
)

// shutdownContainer closes all resources in the container and logs any errors.
func shutdownContainer(container *app.Container, logger *slog.Logger) {
	if err := container.Shutdown(context.Background()); err != nil {
		logger.Error("failed to shutdown container", slog.Any("error", err))
	}
}

// withEngine resolves the key engine from a fresh container, runs fn and
// shuts the container down afterwards.
func withEngine(
	ctx context.Context,
	fn func(ctx context.Context, engine keymgmtUsecase.KeyEngine, logger *slog.Logger) error,
) error {
	container := app.NewContainer(config.Load())
	logger := container.Logger()
	defer shutdownContainer(container, logger)

	engine, err := container.KeyEngine(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize key engine: %w", err)
	}
	return fn(ctx, engine, logger)
}

// withGuard resolves the abuse guard from a fresh container, runs fn and
// shuts the container down afterwards.
func withGuard(
	ctx context.Context,
	fn func(ctx context.Context, guard abuseUsecase.Guard, logger *slog.Logger) error,
) error {
	container := app.NewContainer(config.Load())
	logger := container.Logger()
	defer shutdownContainer(container, logger)

	guard, err := container.Guard(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize abuse guard: %w", err)
	}
	return fn(ctx, guard, logger)
}

// withProvider resolves the secret-store provider from a fresh container,
// runs fn and shuts the container down afterwards.
func withProvider(
	ctx context.Context,
	fn func(ctx context.Context, p provider.SecretStoreProvider, logger *slog.Logger) error,
) error {
	container := app.NewContainer(config.Load())
	logger := container.Logger()
	defer shutdownContainer(container, logger)

	p, err := container.Provider(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize provider: %w", err)
	}
	return fn(ctx, p, logger)
}

func main() {
	cmd := &cli.Command{
		Name:    "secrets",
		Usage:   "Tenant-isolated secrets and encryption key lifecycle manager",
		Version: "1.0.0",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Run database migrations",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg := config.Load()
					container := app.NewContainer(cfg)
					return commands.RunMigrations(container.Logger(), cfg.DBDriver, cfg.DBConnectionString)
				},
			},
			{
				Name:  "rotate-keys",
				Usage: "Rotate a tenant's encryption key",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "tenant",
						Aliases:  []string{"t"},
						Required: true,
						Usage:    "Tenant identifier",
					},
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Value:   false,
						Usage:   "Create an initial key when the tenant has no active key",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withEngine(ctx, func(ctx context.Context, engine keymgmtUsecase.KeyEngine, logger *slog.Logger) error {
						return commands.RunRotateKeys(ctx, engine, logger, os.Stdout, cmd.String("tenant"), cmd.Bool("force"))
					})
				},
			},
			{
				Name:  "list-keys",
				Usage: "List a tenant's encryption keys",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "tenant",
						Aliases:  []string{"t"},
						Required: true,
						Usage:    "Tenant identifier",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"o"},
						Value:   "text",
						Usage:   "Output format: 'text' or 'json'",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withEngine(ctx, func(ctx context.Context, engine keymgmtUsecase.KeyEngine, logger *slog.Logger) error {
						return commands.RunListKeys(ctx, engine, logger, os.Stdout, cmd.String("tenant"), cmd.String("format"))
					})
				},
			},
			{
				Name:  "blacklist-ip",
				Usage: "Block an IP address for a number of minutes",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "ip",
						Aliases:  []string{"i"},
						Required: true,
						Usage:    "IP address to block (IPv4 or IPv6)",
					},
					&cli.IntFlag{
						Name:     "minutes",
						Aliases:  []string{"m"},
						Required: true,
						Usage:    "Block duration in minutes",
					},
					&cli.StringFlag{
						Name:    "reason",
						Aliases: []string{"r"},
						Usage:   "Reason for the block",
					},
					&cli.StringFlag{
						Name:    "by",
						Aliases: []string{"b"},
						Value:   "cli",
						Usage:   "Operator issuing the block",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withGuard(ctx, func(ctx context.Context, guard abuseUsecase.Guard, logger *slog.Logger) error {
						return commands.RunBlacklistIP(
							ctx,
							guard,
							logger,
							os.Stdout,
							cmd.String("ip"),
							cmd.Int("minutes"),
							cmd.String("reason"),
							cmd.String("by"),
						)
					})
				},
			},
			{
				Name:  "unblacklist-ip",
				Usage: "Lift an active block on an IP address",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "ip",
						Aliases:  []string{"i"},
						Required: true,
						Usage:    "IP address to unblock",
					},
					&cli.StringFlag{
						Name:    "by",
						Aliases: []string{"b"},
						Value:   "cli",
						Usage:   "Operator lifting the block",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withGuard(ctx, func(ctx context.Context, guard abuseUsecase.Guard, logger *slog.Logger) error {
						return commands.RunUnblacklistIP(ctx, guard, logger, os.Stdout, cmd.String("ip"), cmd.String("by"))
					})
				},
			},
			{
				Name:  "blacklist-analytics",
				Usage: "Report block activity over the last N days",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "days",
						Aliases: []string{"d"},
						Value:   7,
						Usage:   "Reporting period in days",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"o"},
						Value:   "text",
						Usage:   "Output format: 'text' or 'json'",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withGuard(ctx, func(ctx context.Context, guard abuseUsecase.Guard, logger *slog.Logger) error {
						return commands.RunBlacklistAnalytics(ctx, guard, logger, os.Stdout, cmd.Int("days"), cmd.String("format"))
					})
				},
			},
			{
				Name:  "provider-health",
				Usage: "Check secret-store backend reachability",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withProvider(ctx, func(ctx context.Context, p provider.SecretStoreProvider, logger *slog.Logger) error {
						return commands.RunProviderHealth(ctx, p, logger, os.Stdout)
					})
				},
			},
			{
				Name:  "serve-metrics",
				Usage: "Start the Prometheus metrics HTTP server",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunServeMetrics(ctx)
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.Any("error", err))
		os.Exit(1)
	}
}
