package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/d9705996/clientportal/internal/api"
	"github.com/d9705996/clientportal/internal/api/handler"
	"github.com/d9705996/clientportal/internal/auth"
	"github.com/d9705996/clientportal/internal/config"
	"github.com/d9705996/clientportal/internal/contact"
	"github.com/d9705996/clientportal/internal/db"
	"github.com/d9705996/clientportal/internal/document"
	"github.com/d9705996/clientportal/internal/dossier"
	"github.com/d9705996/clientportal/internal/faq"
	"github.com/d9705996/clientportal/internal/health"
	"github.com/d9705996/clientportal/internal/observability"
	"github.com/d9705996/clientportal/internal/payment"
	"github.com/d9705996/clientportal/internal/ratelimit"
	"github.com/d9705996/clientportal/internal/seed"
	"github.com/d9705996/clientportal/internal/storage"
	"github.com/d9705996/clientportal/internal/version"
	"github.com/d9705996/clientportal/internal/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability -------------------------------------------------------
	obs, log, err := observability.New(ctx, &observability.Config{
		ServiceName:    "clientportal",
		ServiceVersion: version.Version,
		LogLevel:       cfg.Log.Level,
		LogFormat:      cfg.Log.Format,
		OTLPEndpoint:   cfg.OTel.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer obs.Shutdown(context.Background())
	slog.SetDefault(log)
	inst := obs.Instruments()
	log.Info("starting clientportal", "version", version.Version, "commit", version.Commit, "db_driver", cfg.DB.Driver)

	// --- Database ------------------------------------------------------------
	gormDB, pool, err := db.New(ctx, &cfg.DB)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if pool != nil {
		defer pool.Close()
	}
	log.Info("database ready", "driver", cfg.DB.Driver)

	if err := seed.EnsureAdmin(ctx, gormDB, seed.AdminOptions{
		Email:    cfg.App.SeedAdminEmail,
		Password: cfg.App.SeedAdminPassword,
		Out:      os.Stdout,
	}, log); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	if pool != nil {
		if err := worker.MigrateRiver(ctx, pool); err != nil {
			return fmt.Errorf("river migrations: %w", err)
		}
		log.Info("river migrations applied")
	}

	// --- Domain services -----------------------------------------------------
	store, err := storage.New(ctx, cfg.Storage, cfg.HTTP.SiteOrigin, cfg.JWT.Secret)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	dossiers := dossier.NewService(gormDB, dossier.WithInstruments(inst))
	documents := document.NewService(gormDB, store, log,
		document.WithMaxBytes(cfg.Storage.UploadMaxBytes),
		document.WithURLTTL(cfg.Storage.SignedURLTTL),
		document.WithInstruments(inst),
	)

	var sessions payment.SessionCreator
	if cfg.Stripe.SecretKey != "" {
		sessions = payment.NewStripeSessions(cfg.Stripe.SecretKey)
	} else {
		log.Warn("STRIPE_SECRET_KEY not set; checkout is disabled")
	}
	initiator := payment.NewInitiator(sessions, dossiers, cfg.Stripe.DepositPrices, cfg.HTTP.SiteOrigin, log, inst)
	receiver := payment.NewReceiver(gormDB, cfg.Stripe.WebhookSecret, dossiers, log, inst)

	mailer := contact.NewMailer(cfg.Contact.EmailAPIKey, cfg.Contact.EmailAPIURL, cfg.Contact.EmailFrom, cfg.Contact.EmailTo)
	verifier := contact.NewVerifier(cfg.Contact.CaptchaSecret, cfg.Contact.CaptchaVerifyURL)

	var limiter ratelimit.Limiter = ratelimit.Noop{}
	if cfg.Redis.URL != "" {
		rl, err := ratelimit.NewRedis(cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer func() { _ = rl.Close() }()
		limiter = rl
	}

	accounts := auth.NewAccounts(gormDB)
	refresh := auth.NewRefreshStore(gormDB, cfg.JWT.RefreshTTL)

	// --- Worker queue --------------------------------------------------------
	wq, err := worker.New(ctx, pool, cfg.DB.Driver, worker.Deps{
		Mailer:        mailer,
		Documents:     documents,
		Concurrency:   cfg.Worker.Concurrency,
		SweepInterval: cfg.Worker.SweepInterval,
		SweepAge:      cfg.Worker.SweepAge,
		Log:           log,
	})
	if err != nil {
		return fmt.Errorf("create worker: %w", err)
	}
	if err := wq.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := wq.Stop(stopCtx); err != nil {
			log.Error("worker stop error", "err", err)
		}
	}()

	// --- HTTP routes ---------------------------------------------------------
	rt := api.Routes{
		Health: health.New(
			health.Check{Name: "database", Pinger: db.NewPinger(gormDB)},
			health.Check{Name: "storage", Pinger: store},
		),
		Auth:       handler.NewAuthHandler(accounts, refresh, cfg.JWT.Secret, cfg.JWT.AccessTTL, strings.HasPrefix(cfg.HTTP.SiteOrigin, "https://"), log),
		Dossiers:   handler.NewDossierHandler(dossiers, log),
		Documents:  handler.NewDocumentHandler(documents, dossiers, log),
		Payments:   handler.NewPaymentHandler(initiator, receiver, dossiers, log),
		Admin:      handler.NewAdminHandler(dossiers, documents, log),
		FAQ:        handler.NewFAQHandler(faq.New(cfg.AI, log), inst, log),
		Contact:    handler.NewContactHandler(verifier, wq, cfg.HTTP.TrustProxy, log),
		Metrics:    promhttp.Handler(),
		Profiles:   accounts,
		Limiter:    limiter,
		RateLimit:  cfg.Redis.LimitPerMinute,
		TrustProxy: cfg.HTTP.TrustProxy,
		JWTSecret:  cfg.JWT.Secret,
		Log:        log,
	}
	if disk, ok := store.(*storage.DiskStore); ok {
		rt.Files = disk
	}

	return api.NewServer(cfg.HTTP.Port, api.NewHandler(rt, cfg.HTTP.SiteOrigin), log).Run(ctx)
}
