// Command server runs the restock-notification backend: the public HTTP API,
// the background job worker, and the periodic expired-link sweep.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/restocklab/go-restock-backend/internal/config"
	httpapi "github.com/restocklab/go-restock-backend/internal/http"
	"github.com/restocklab/go-restock-backend/internal/jobs"
	"github.com/restocklab/go-restock-backend/internal/notify"
	"github.com/restocklab/go-restock-backend/internal/observability"
	"github.com/restocklab/go-restock-backend/internal/repo"
	"github.com/restocklab/go-restock-backend/internal/services"
	"github.com/restocklab/go-restock-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (opt-in)
	if cfg.OTEL.Enabled {
		shutdown, err := observability.SetupOTel(ctx, cfg.OTEL, version)
		if err != nil {
			log.Fatal().Err(err).Msg("otel setup failed")
		}
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			if err := shutdown(sctx); err != nil {
				log.Warn().Err(err).Msg("otel shutdown failed")
			}
		}()
	}

	// Storage
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("could not open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	// Notification delivery
	dispatcher, err := notify.NewDispatcher(
		&notify.LogEmailSender{Enabled: cfg.Notify.EmailEnabled},
		&notify.LogSMSSender{Enabled: cfg.Notify.SMSEnabled},
	)
	if err != nil {
		log.Fatal().Err(err).Msg("dispatcher setup failed")
	}

	// Services
	plans := services.NewPlanService(db)
	plans.FreeLimit = cfg.Plan.FreeMonthlyLimit
	plans.ProLimit = cfg.Plan.ProMonthlyLimit
	recovery := &services.RecoveryService{DB: db, LinkTTL: cfg.Notify.RecoveryLinkTTL}
	demand := &services.DemandService{
		DB:              db,
		Plans:           plans,
		Recovery:        recovery,
		Dispatcher:      dispatcher,
		RecoveryBaseURL: cfg.Notify.RecoveryBaseURL,
	}
	webhooks := &services.WebhookService{
		DB:         db,
		Demand:     demand,
		Plans:      plans,
		BatchSize:  cfg.Notify.BatchSize,
		BatchDelay: cfg.Notify.BatchDelay,
	}

	// Background jobs: Redis-backed when enabled, inline otherwise.
	var queue *jobs.Queue
	if cfg.Jobs.Enabled {
		client := jobs.NewRedisClient(cfg.Jobs.RedisAddr, cfg.Jobs.RedisPassword)
		q := jobs.NewQueue(client)
		if err := q.Ping(ctx); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Jobs.RedisAddr).Msg("redis unreachable")
		}
		queue = q
		defer client.Close()
	}
	runner := &jobs.Runner{Queue: queue, Webhooks: webhooks, Demand: demand}
	worker := &jobs.Worker{
		Queue:       queue,
		Webhooks:    webhooks,
		Demand:      demand,
		Recovery:    recovery,
		PollTimeout: cfg.Jobs.QueuePollTimeout,
		SweepEvery:  cfg.Jobs.ExpireSweepEvery,
		Retention:   cfg.Jobs.ExpireRetention,
	}
	worker.Start(ctx)

	// HTTP
	r := gin.New()
	httpapi.RegisterRoutes(r, db, httpapi.Services{
		Demand:    demand,
		Plans:     plans,
		Settings:  &services.SettingsService{DB: db},
		Shops:     &services.ShopService{DB: db},
		Dashboard: &services.DashboardService{DB: db},
		Recovery:  recovery,
		Webhooks:  webhooks,
		Runner:    runner,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down")

	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	cancel()
	worker.Wait()
	log.Info().Msg("bye")
}
