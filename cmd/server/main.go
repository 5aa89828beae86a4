package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/swiftraccoon/sdrTrunkTranscription/internal/audio"
	"github.com/swiftraccoon/sdrTrunkTranscription/internal/broadcast"
	"github.com/swiftraccoon/sdrTrunkTranscription/internal/config"
	"github.com/swiftraccoon/sdrTrunkTranscription/internal/database"
	"github.com/swiftraccoon/sdrTrunkTranscription/internal/domain"
	"github.com/swiftraccoon/sdrTrunkTranscription/internal/gateway"
	"github.com/swiftraccoon/sdrTrunkTranscription/internal/logging"
	"github.com/swiftraccoon/sdrTrunkTranscription/internal/metrics"
	"github.com/swiftraccoon/sdrTrunkTranscription/internal/notify"
	"github.com/swiftraccoon/sdrTrunkTranscription/internal/redis"
	"github.com/swiftraccoon/sdrTrunkTranscription/internal/server"
	"github.com/swiftraccoon/sdrTrunkTranscription/internal/session"
	"github.com/swiftraccoon/sdrTrunkTranscription/internal/subscription"
)

// Set via -ldflags at build time.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.RunMigrations(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(cfg *config.Config) *redis.Client {
	client, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupNotifier(cfg *config.Config) domain.NotificationSender {
	if cfg.PostmarkServerToken == "" {
		slog.Info("No Postmark token configured, email notifications disabled")
		return nil
	}
	mailer, err := notify.NewMailer(cfg.PostmarkServerToken, cfg.PostmarkAccountToken, cfg.NotificationSender)
	if err != nil {
		slog.Error("Failed to create mailer", "error", err)
		os.Exit(1)
	}
	return mailer
}

func runGracefulShutdown(srv *server.Server) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.Init(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)
	metrics.BuildInfo.WithLabelValues(version, commit, buildTime, runtime.Version()).Set(1)

	pool := setupDB(cfg)
	defer pool.Close()

	redisClient := setupRedis(cfg)
	defer func() { _ = redisClient.Close() }()

	// Repositories
	userRepo := database.NewUserRepo(pool)
	subscriptionRepo := database.NewSubscriptionRepo(pool)
	transcriptionRepo := database.NewTranscriptionRepo(pool)
	talkgroupRepo := database.NewTalkgroupRepo(pool, clock)
	recentStore := redis.NewRecentStore(redisClient)

	// Matching engine behind the short-TTL subscription cache
	cache := subscription.NewCache(subscriptionRepo, cfg.SubscriptionCacheTTL, clock)
	guard := subscription.NewGuard(cfg.PatternMaxLength)
	engine := subscription.NewEngine(cache, subscriptionRepo, setupNotifier(cfg), guard, clock, cfg.PatternBudget)

	// The coordinator reads connections from the gateway, which in turn needs
	// the coordinator; the function adapter defers the lookup until runtime.
	var gw *gateway.Gateway
	coordinator := audio.NewCoordinator(cfg.AudioQueueCapacity, audio.ConnSourceFunc(func() []audio.Conn {
		return gw.Connections()
	}))

	registry := session.NewRegistry(clock, cfg.CleanupGrace, func(userID uuid.UUID) {
		coordinator.Teardown(userID)
	})

	gw = gateway.New(userRepo, registry, coordinator, recentStore, clock, gateway.Options{
		HeartbeatInterval:     cfg.HeartbeatInterval,
		MinMessageInterval:    cfg.MinMessageInterval,
		MessageBurstCeiling:   cfg.MessageBurstCeiling,
		MaxConnectionsPerUser: cfg.MaxConnectionsPerUser,
		MaxConnections:        cfg.MaxConnections,
		AllowedOrigins:        cfg.Origins(),
		LatestTranscriptions:  cfg.LatestTranscriptions,
	})

	pipeline := broadcast.NewPipeline(engine, gw, talkgroupRepo, recentStore, clock, cfg.StalenessHorizon)

	srv := server.NewServer(cfg, gw, pipeline, coordinator, transcriptionRepo, pool, redisClient, clock)
	done := runGracefulShutdown(srv)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
