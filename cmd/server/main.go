package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ledgerguard/internal/audit"
	"ledgerguard/internal/audit/indexer"
	"ledgerguard/internal/bridge"
	"ledgerguard/internal/jwttoken"
	"ledgerguard/internal/ledger/store"
	"ledgerguard/internal/platform/config"
	"ledgerguard/internal/platform/httpserver"
	"ledgerguard/internal/platform/kafka"
	"ledgerguard/internal/platform/logger"
	platformredis "ledgerguard/internal/platform/redis"
	transport "ledgerguard/internal/transport/http"
	"ledgerguard/pkg/domain"
	"ledgerguard/pkg/platform/hashing"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	signer := domain.NormalizeAddress(cfg.Ledger.SignerAddress)
	admin := domain.NormalizeAddress(cfg.Ledger.AdminAddress)
	if signer.IsZero() || admin.IsZero() {
		log.Error("LEDGER_SIGNER_ADDRESS and LEDGER_ADMIN_ADDRESS are required")
		os.Exit(1)
	}

	hasher := hashing.SHA256{}
	ctx := context.Background()

	var ledger store.Ledger
	var healthDB *sql.DB
	if cfg.Postgres.DSN != "" {
		db, err := sql.Open("pgx", cfg.Postgres.DSN)
		if err != nil {
			log.Error("open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		pg := store.NewPostgres(db, hasher)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Error("ensure schema", "error", err)
			os.Exit(1)
		}
		if err := pg.Seed(ctx, signer, admin); err != nil {
			log.Error("seed ledger", "error", err)
			os.Exit(1)
		}
		ledger = pg
		healthDB = db
		log.Info("ledger store ready", "backend", "postgres")
	} else {
		ledger = store.NewInMemory(hasher, signer, admin)
		log.Info("ledger store ready", "backend", "memory")
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis setup failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	bridgeSvc := bridge.NewService(ledger, log,
		bridge.WithConfirmTimeout(cfg.Ledger.ConfirmTimeout),
		bridge.WithMetrics(bridge.NewMetrics(registry)),
	)

	auditOpts := []audit.Option{audit.WithMetrics(audit.NewMetrics(registry))}
	if redisClient != nil {
		auditOpts = append(auditOpts, audit.WithCache(redisClient.Client))
	}
	recon := audit.NewReconstructor(ledger, hasher, log, auditOpts...)

	health := func(ctx context.Context) error {
		if healthDB != nil {
			if err := healthDB.PingContext(ctx); err != nil {
				return err
			}
		}
		if redisClient != nil {
			return redisClient.Health(ctx)
		}
		return nil
	}

	jwtSvc := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)
	handler := transport.New(bridgeSvc, recon, log, health)
	router := handler.Router(jwtSvc, cfg.Server.AdminTokenHash, func(r chi.Router) {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	})

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	publisher, err := kafka.New(cfg.Kafka)
	if err != nil {
		log.Error("kafka setup failed", "error", err)
		os.Exit(1)
	}
	if publisher != nil {
		defer publisher.Close()
		mirror := indexer.New(ledger, publisher, log, cfg.Kafka.PollInterval)
		go func() {
			if err := mirror.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("event mirror stopped", "error", err)
			}
		}()
		log.Info("event mirror running", "topic", cfg.Kafka.Topic)
	}

	srv := httpserver.New(cfg.Server.Addr, router)
	log.Info("starting ledgerguard", "addr", cfg.Server.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-runCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("ledgerguard stopped")
}
