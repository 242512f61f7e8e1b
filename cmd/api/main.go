package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/surprise-envelope/backend/internal/cache"
	"github.com/surprise-envelope/backend/internal/chain"
	"github.com/surprise-envelope/backend/internal/claimlink"
	"github.com/surprise-envelope/backend/internal/config"
	"github.com/surprise-envelope/backend/internal/db"
	"github.com/surprise-envelope/backend/internal/events"
	apphttp "github.com/surprise-envelope/backend/internal/http"
	"github.com/surprise-envelope/backend/internal/http/handlers"
	"github.com/surprise-envelope/backend/internal/repositories"
	"github.com/surprise-envelope/backend/internal/services"
	"github.com/surprise-envelope/backend/migrations"
)

const resolvedCacheTTL = 24 * time.Hour

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	if err := cfg.Validate(log); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}
	vault := cfg.Vault()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, int32(cfg.PostgresMaxConns), log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Chain
	adapters, err := chain.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to connect to rpc", zap.Error(err))
	}
	defer adapters.Close()

	// Repositories
	depositRepo := repositories.NewDepositRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Claim-link core
	issuer := claimlink.NewIssuer(vault, log)
	resolver := claimlink.NewResolver(vault, adapters.Receipts, adapters.Deposits, adapters.Vault, claimlink.NewCodec(cfg.LinkHost), log)
	authorizer := claimlink.NewAuthorizer(vault, adapters.Names, log)

	// Services
	resolveCache := cache.NewResolveCache(rdb, cfg.ReceiptTimeout+30*time.Second, resolvedCacheTTL, log)
	linkService := services.NewLinkService(issuer, resolver, authorizer, depositRepo, auditRepo, resolveCache, publisher, cfg, log)

	// Handlers
	linkHandler := handlers.NewLinkHandler(linkService, log)
	wsHub := handlers.NewWSHub(subscriber, log)

	// Start WS hub
	wsHub.Start(ctx)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: apphttp.ErrorHandler(log),
	})

	apphttp.SetupRouter(app, cfg, log, rdb, linkHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server",
		zap.String("addr", addr),
		zap.Uint64("chain_id", vault.ChainID),
		zap.String("vault", vault.Address.Hex()),
	)
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
