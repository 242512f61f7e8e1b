package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/surprise-envelope/backend/internal/chain"
	"github.com/surprise-envelope/backend/internal/config"
	"github.com/surprise-envelope/backend/internal/db"
	"github.com/surprise-envelope/backend/internal/events"
	"github.com/surprise-envelope/backend/internal/indexer"
	"github.com/surprise-envelope/backend/internal/repositories"
	"github.com/surprise-envelope/backend/migrations"
)

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

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, int32(cfg.PostgresMaxConns), log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	client, err := chain.Dial(ctx, cfg.RPCURL, cfg.ChainID, log)
	if err != nil {
		log.Fatal("failed to connect to rpc", zap.Error(err))
	}
	defer client.Close()

	ix := indexer.New(vault, client, repositories.NewDepositRepo(pool), events.NewRedisPublisher(rdb, log), rdb, indexer.Config{
		StartBlock:   cfg.IndexerStartBlock,
		BatchBlocks:  cfg.IndexerBatchBlocks,
		PollInterval: cfg.IndexerPollInterval,
	}, log)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down deposit indexer")
		cancel()
	}()

	log.Info("deposit indexer started",
		zap.Uint64("chain_id", vault.ChainID),
		zap.String("vault", vault.Address.Hex()),
	)
	if err := ix.Run(ctx); err != nil {
		log.Fatal("indexer stopped", zap.Error(err))
	}
}
