package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/app"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/domain"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/feed"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/imagegen"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/platform/config"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/platform/logging"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/platform/retry"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/postgres"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/redis"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/server"
	worksession "github.com/lassorfeasley/swiper.fit-sub002/internal/session"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/version"
	ws "github.com/lassorfeasley/swiper.fit-sub002/internal/websocket"
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

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	return pool
}

func setupRedis(ctx context.Context, cfg *config.Config) *redis.Client {
	client, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to create Redis client", "error", err)
		os.Exit(1)
	}
	if err := client.Ping(ctx); err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func runGracefulShutdown(srv *server.Server, appSvc *app.Service, hub *ws.Hub) <-chan struct{} {
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

		hub.Stop()
		appSvc.Shutdown()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	build := version.Get()
	slog.Info("Application starting",
		"env", cfg.AppEnv, "port", cfg.Port,
		"version", build.Version, "commit", build.Commit)

	pool := setupDB(cfg)
	defer pool.Close()

	redisClient := setupRedis(context.Background(), cfg)
	defer func() { _ = redisClient.Close() }()

	sessionRepo := postgres.NewSessionRepo(pool)
	setRepo := postgres.NewSetRepo(pool)

	changeFeed := redis.NewChangeFeed(redisClient)
	publisher := feed.NewPublisher(changeFeed)
	listener := feed.NewListener(changeFeed)

	var images domain.ImageGenerator
	if cfg.SummaryImageURL != "" {
		images = imagegen.NewClient(cfg.SummaryImageURL)
	}

	manager := worksession.NewManager(sessionRepo, setRepo, publisher, images, clock)

	appSvc := app.NewService(manager, setRepo, listener, clock, app.Options{
		IdleWindow:   cfg.IdleWindow,
		TickInterval: cfg.ElapsedTickInterval,
		WritePolicy:  retry.NoRetries(),
	})

	hub := ws.NewHub(cfg.MaxWebSocketConnections, func(ownerID uuid.UUID) {
		appSvc.Detach(ownerID)
	})

	appSvc.SetOnState(func(ownerID uuid.UUID, state app.StateSnapshot) {
		data, err := json.Marshal(state)
		if err != nil {
			slog.Error("Failed to marshal state snapshot", "error", err)
			return
		}
		hub.Broadcast(ownerID, data)
	})

	srv := server.NewServer(cfg, appSvc, hub, pool, redisClient)
	done := runGracefulShutdown(srv, appSvc, hub)

	if err := srv.Start(); err != nil {
		slog.Info("Server stopped", "reason", err)
	}
	<-done
}
