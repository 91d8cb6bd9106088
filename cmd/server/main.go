package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/oggyb/matchmaker/internal/api"
	"github.com/oggyb/matchmaker/internal/app"
	"github.com/oggyb/matchmaker/internal/cache"
	"github.com/oggyb/matchmaker/internal/clock"
	"github.com/oggyb/matchmaker/internal/config"
	"github.com/oggyb/matchmaker/internal/db"
	"github.com/oggyb/matchmaker/internal/logger"
	"github.com/oggyb/matchmaker/internal/server"
	"github.com/oggyb/matchmaker/internal/service/convsync"
	"github.com/oggyb/matchmaker/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L() // slog.Logger pointer

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(ctx); err != nil {
		log.Error("failed to connect to redis", "err", err)
		os.Exit(1)
	}
	defer redisCache.Close()

	clk := clock.Real()
	appCtx := app.New(cfg, database, redisCache, log, clk)

	hub := convsync.NewHub(appCtx)
	// end open subscriptions first so the graceful stop can drain
	context.AfterFunc(ctx, hub.Close)

	identity := session.NewIdentity(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL, clk)

	registrars := []server.Registrar{
		api.NewRegistrar(appCtx, hub),
	}

	log.Info("starting gRPC server",
		"addr", cfg.GRPC.Host+":"+cfg.GRPC.Port,
		"db_driver", cfg.DB.Driver,
		"daily_cap", cfg.Discovery.DailyCap,
		"timezone", cfg.Discovery.Timezone,
	)

	if err := server.StartGRPCServer(ctx, cfg, api.ServerOptions(identity, log), registrars...); err != nil {
		log.Error("gRPC server stopped", "err", err)
		os.Exit(1)
	}
	log.Info("gRPC server stopped")
}
