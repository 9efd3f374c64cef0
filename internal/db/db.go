// Package db opens the portal's store and brings its schema up to date.
// Local and test runs use the pure-Go sqlite driver with AutoMigrate;
// production runs on Postgres, where the versioned SQL files under
// migrations/ own the schema and the pgx pool is shared with the job queue.
package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"math"

	"github.com/d9705996/clientportal/internal/config"
	"github.com/d9705996/clientportal/internal/model"
	"github.com/glebarez/sqlite"
	"github.com/golang-migrate/migrate/v4"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

//go:embed migrations/*.sql
var schemaFS embed.FS

// Tables lists the models AutoMigrate manages on sqlite, parents first so
// foreign keys resolve. The Postgres migrations create the same tables.
var Tables = []any{
	&model.User{},
	&model.RefreshToken{},
	&model.CaseCodeCounter{},
	&model.Dossier{},
	&model.Document{},
	&model.WebhookEvent{},
}

// gormConfig is shared by both drivers. TranslateError turns unique
// violations into gorm.ErrDuplicatedKey, which the account and webhook
// stores rely on.
func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	}
}

// New opens the store named by cfg.Driver with its schema applied. The pool
// is non-nil only on Postgres, where the job queue needs it.
func New(ctx context.Context, cfg *config.DBConfig) (*gorm.DB, *pgxpool.Pool, error) {
	if cfg.Driver == "postgres" {
		return openPostgres(ctx, cfg)
	}
	gormDB, err := OpenSQLite(cfg.File)
	return gormDB, nil, err
}

// OpenSQLite opens or creates the sqlite file at dsn and migrates Tables.
// Tests use an in-memory DSN such as "file:name?mode=memory&cache=shared".
func OpenSQLite(dsn string) (*gorm.DB, error) {
	gormDB, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// Single writer: case-code allocation and webhook claims run in
	// transactions that would otherwise hit SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if err := gormDB.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("sqlite %q: %w", pragma, err)
		}
	}
	if err := gormDB.AutoMigrate(Tables...); err != nil {
		return nil, fmt.Errorf("sqlite automigrate: %w", err)
	}
	return gormDB, nil
}

func openPostgres(ctx context.Context, cfg *config.DBConfig) (*gorm.DB, *pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("parse DB_DSN: %w", err)
	}
	if cfg.MaxConns > math.MaxInt32 {
		return nil, nil, fmt.Errorf("DB_MAX_CONNS %d exceeds maximum value (%d)", cfg.MaxConns, math.MaxInt32)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create pgxpool: %w", err)
	}
	fail := func(err error) (*gorm.DB, *pgxpool.Pool, error) {
		pool.Close()
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		return fail(fmt.Errorf("ping postgres: %w", err))
	}
	if err := migratePostgres(poolCfg); err != nil {
		return fail(err)
	}

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: stdlib.OpenDBFromPool(pool)}), gormConfig())
	if err != nil {
		return fail(fmt.Errorf("open gorm/postgres: %w", err))
	}
	return gormDB, pool, nil
}

// migratePostgres applies pending files from migrations/ on a dedicated
// connection, leaving the shared pool untouched.
func migratePostgres(poolCfg *pgxpool.Config) error {
	src, err := iofs.New(schemaFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	conn := stdlib.OpenDB(*poolCfg.ConnConfig)
	defer func() { _ = conn.Close() }()

	target, err := migratepostgres.WithInstance(conn, &migratepostgres.Config{})
	if err != nil {
		return fmt.Errorf("postgres migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", target)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Pinger reports whether the store answers; it backs the "database" entry
// of the readiness check.
type Pinger struct {
	db *gorm.DB
}

// NewPinger wraps gormDB for health.Check.
func NewPinger(gormDB *gorm.DB) *Pinger {
	return &Pinger{db: gormDB}
}

// Ping implements health.Pinger.
func (p *Pinger) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return fmt.Errorf("database handle: %w", err)
	}
	return sqlDB.PingContext(ctx)
}
