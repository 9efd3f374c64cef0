package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/d9705996/clientportal/internal/auth"
	"github.com/d9705996/clientportal/internal/config"
	"github.com/d9705996/clientportal/internal/db"
	"github.com/d9705996/clientportal/internal/document"
	"github.com/d9705996/clientportal/internal/observability"
	"github.com/d9705996/clientportal/internal/storage"
	"github.com/d9705996/clientportal/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// env is what the one-shot commands share: config, a logger and an open,
// migrated database.
type env struct {
	cfg  *config.Config
	log  *slog.Logger
	db   *gorm.DB
	pool *pgxpool.Pool
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
	gormDB, pool, err := db.New(ctx, &cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return &env{cfg: cfg, log: log, db: gormDB, pool: pool}, nil
}

func (e *env) close() {
	if e.pool != nil {
		e.pool.Close()
	}
	if sqlDB, err := e.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Long: `Apply the schema migrations (AutoMigrate on sqlite, versioned SQL
migrations on postgres) and, on postgres, the job queue tables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()
			if e.pool != nil {
				if err := worker.MigrateRiver(cmd.Context(), e.pool); err != nil {
					return fmt.Errorf("river migrations: %w", err)
				}
			}
			e.log.Info("migrations applied", "driver", e.cfg.DB.Driver)
			return nil
		},
	}
}

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage staff access",
	}
	cmd.AddCommand(setAdminCmd("grant", "Give a registered profile staff access", true))
	cmd.AddCommand(setAdminCmd("revoke", "Remove staff access from a profile", false))
	return cmd
}

func setAdminCmd(use, short string, admin bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <email>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()
			if err := auth.NewAccounts(e.db).SetAdmin(cmd.Context(), args[0], admin); err != nil {
				return fmt.Errorf("%s admin %s: %w", use, args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: admin=%t\n", auth.NormalizeEmail(args[0]), admin)
			return nil
		},
	}
}

func sweepCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove documents whose upload never completed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()
			store, err := storage.New(cmd.Context(), e.cfg.Storage, e.cfg.HTTP.SiteOrigin, e.cfg.JWT.Secret)
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			if olderThan <= 0 {
				olderThan = e.cfg.Worker.SweepAge
			}
			n, err := document.NewService(e.db, store, e.log).SweepPending(cmd.Context(), olderThan)
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d pending document(s)\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "age after which a pending upload is abandoned (default SWEEP_PENDING_AGE)")
	return cmd
}
