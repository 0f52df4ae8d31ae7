package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/healthbridge/appointment-engine/internal/api"
	"github.com/healthbridge/appointment-engine/internal/config"
	"github.com/healthbridge/appointment-engine/internal/conversation"
	"github.com/healthbridge/appointment-engine/internal/db"
	redisclient "github.com/healthbridge/appointment-engine/internal/redis"
	"github.com/healthbridge/appointment-engine/internal/scheduling"
)

const version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	log, err := newLogger(cfg.Env)
	if err != nil {
		panic("logger init error: " + err.Error())
	}
	defer log.Sync()

	log.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("version", version))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(redisclient.Options{
		Addr:         cfg.RedisAddr,
		Username:     cfg.RedisUsername,
		Password:     cfg.RedisPassword,
		ReadTimeout:  cfg.RedisReadTimeout,
		WriteTimeout: cfg.RedisWriteTimeout,
		PoolSize:     cfg.RedisPoolSize,
	}, log)
	if err != nil {
		log.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn("error closing redis", zap.Error(err))
		}
	}()
	log.Info("connected to Redis")

	repo := scheduling.NewPgRepository(pgPool)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)

	ledger := scheduling.NewLedger(repo, log)
	lifecycle := scheduling.NewLifecycle(repo, ledger, locker, log)
	projector := scheduling.NewProjector(repo)
	directory := scheduling.NewDirectory(repo, log)

	recommender, err := conversation.NewGeminiRecommender(rootCtx, cfg.GeminiAPIKey, cfg.GeminiModel,
		conversation.NewRepoDirectory(repo), log)
	if err != nil {
		log.Fatal("recommender init error", zap.Error(err))
	}
	defer recommender.Close()

	sessions := conversation.NewSessionStore(cfg.SessionTTL, log)
	sessions.StartSweeper(cfg.SweepInterval)
	defer sessions.Close()

	orchestrator := conversation.NewOrchestrator(conversation.OrchestratorConfig{
		Sessions:         sessions,
		Recommender:      recommender,
		Ledger:           ledger,
		Lifecycle:        lifecycle,
		Repo:             repo,
		Log:              log,
		RecommendTimeout: cfg.RecommendTimeout,
		ListTimeout:      cfg.ListTimeout,
	})

	router := api.NewRouter(api.RouterConfig{
		Directory:    directory,
		Ledger:       ledger,
		Lifecycle:    lifecycle,
		Projector:    projector,
		Orchestrator: orchestrator,
		PgPool:       pgPool,
		Redis:        rdb,
		JWTSecret:    cfg.JWTSecret,
		Env:          cfg.Env,
		Version:      version,
		Log:          log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-rootCtx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown incomplete", zap.Error(err))
	}
	log.Info("api-server stopped")
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "prod" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
