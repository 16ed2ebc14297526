package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"election-platform/internal/audit"
	"election-platform/internal/auth"
	"election-platform/internal/config"
	"election-platform/internal/database"
	"election-platform/internal/election"
	"election-platform/internal/httpapi"
	"election-platform/internal/metrics"
	"election-platform/internal/registry"
	"election-platform/internal/reporting"
	"election-platform/internal/secrecy"
	"election-platform/internal/voters"
	"election-platform/internal/voting"
	"election-platform/pkg/logger"
	"election-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	keys, err := secrecy.LoadKeys(cfg.Ballot)
	if err != nil {
		log.Error("ballot keys invalid", "err", err)
		os.Exit(1)
	}
	sealer, err := secrecy.NewSealer(keys.Encryption)
	if err != nil {
		log.Error("sealer init failed", "err", err)
		os.Exit(1)
	}
	hasher, err := secrecy.NewVoterHasher(keys.VoterHash)
	if err != nil {
		log.Error("voter hasher init failed", "err", err)
		os.Exit(1)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.CreateSchema(rootCtx, db); err != nil {
		log.Error("schema init failed", "err", err)
		os.Exit(1)
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	var auditOpts []audit.Option
	if cfg.Broker.AMQPURL != "" {
		pub, err := audit.NewAMQPPublisher(cfg.Broker.AMQPURL, cfg.Broker.AuditQueue)
		if err != nil {
			log.Error("audit stream init failed", "err", err)
			os.Exit(1)
		}
		defer pub.Close()
		auditOpts = append(auditOpts, audit.WithPublisher(pub))
		log.Info("audit stream enabled", "queue", cfg.Broker.AuditQueue)
	}
	auditSvc := audit.NewService(audit.NewPostgresRepo(db), auditOpts...)

	reg := registry.NewService(registry.NewPostgresRepo(db), auditSvc)
	elections := election.NewService(election.NewPostgresRepo(db), auditSvc)
	voterSvc := voters.NewService(voters.NewPostgresRepo(db), reg, auditSvc, voters.Options{
		AdminSecretCode: cfg.Admin.SecretCode,
		BcryptCost:      cfg.Admin.BcryptCost,
	})
	elections.SetCompletionResetter(voterSvc)
	engine := voting.NewEngine(voting.Deps{
		Catalog:  elections,
		Registry: reg,
		Ledger:   voterSvc,
		Store:    voting.NewPostgresStore(db),
		Sealer:   sealer,
		Hasher:   hasher,
		Audit:    auditSvc,
		Metrics:  metrics.New(),
	})

	handlers := httpapi.Handlers{
		Auth:      authManager,
		Revoked:   auth.NewRedisRevocationList(rdb),
		Voters:    voterSvc,
		Registry:  reg,
		Elections: elections,
		Voting:    engine,
		Reporting: reporting.NewService(elections, engine, voterSvc, auditSvc),
		Audit:     auditSvc,
	}

	var castLimit gin.HandlerFunc
	if cfg.Limits.CastInflight > 0 {
		slots, err := utils.NewCastSlots(rdb, cfg.Limits.CastInflight, cfg.Limits.CastSlotTTL)
		if err != nil {
			log.Error("cast limiter init failed", "err", err)
			os.Exit(1)
		}
		castLimit = httpapi.LimitInflightCasts(slots)
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, handlers, routeDeps{
		db:        db,
		authMW:    auth.RequireAccessToken(authManager, handlers.Revoked),
		castLimit: castLimit,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
