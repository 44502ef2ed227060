package main

import (
	"context"
	"flag"

	"go.uber.org/zap"

	"github.com/minekarta/auctionhouse/internal/auction/application"
	"github.com/minekarta/auctionhouse/internal/auction/domain"
	"github.com/minekarta/auctionhouse/internal/auction/infra/economy"
	"github.com/minekarta/auctionhouse/internal/auction/infra/httpapi"
	"github.com/minekarta/auctionhouse/internal/auction/infra/repository/postgres"
	wsnotify "github.com/minekarta/auctionhouse/internal/auction/infra/websocket"
	"github.com/minekarta/auctionhouse/internal/auction/scheduler"
	"github.com/minekarta/auctionhouse/internal/shared/async"
	"github.com/minekarta/auctionhouse/internal/shared/config"
	"github.com/minekarta/auctionhouse/internal/shared/db"
	"github.com/minekarta/auctionhouse/internal/shared/db/migrations"
	"github.com/minekarta/auctionhouse/internal/shared/gameloop"
	"github.com/minekarta/auctionhouse/internal/shared/logger"
	sharedws "github.com/minekarta/auctionhouse/internal/shared/websocket"
)

func main() {
	log := logger.GetLogger()
	defer log.Sync()

	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	log.Info("Starting auction house server...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	log.Info("Running database migrations...")
	if err := migrations.RunMigrations(); err != nil {
		log.Fatal("Database migration failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.GetPostgresDBPool(ctx, cfg.Database.MaxConns)
	if err != nil {
		log.Fatal("Database connection failed", zap.Error(err))
	}
	defer pool.Close()

	listingRepo := postgres.NewListingRepository(pool)
	mailboxRepo := postgres.NewMailboxRepository(pool)
	funds := economy.NewMemoryEconomy()

	ledger := domain.NewLedger()
	loop := gameloop.New(cfg.Auction.WorkerQueueSize)
	workers := async.NewPool(cfg.Auction.WorkerPoolSize, cfg.Auction.WorkerQueueSize)
	defer workers.Shutdown()

	hub := sharedws.NewHub()
	go hub.Run(ctx)

	coordinator := application.NewCoordinator(
		ledger,
		listingRepo,
		mailboxRepo,
		funds,
		loop,
		workers,
		wsnotify.NewEventNotifier(hub),
		application.Config{
			MinPrice:             cfg.Auction.MinPrice,
			DefaultMinIncrement:  cfg.Auction.DefaultMinIncrement,
			DefaultDuration:      cfg.Auction.DefaultDuration.Std(),
			MaxDuration:          cfg.Auction.MaxDuration.Std(),
			MaxListingsPerSeller: cfg.Auction.MaxListingsPerSeller,
			OpTimeout:            cfg.Auction.OpTimeout.Std(),
		},
	)

	// Ledger must be populated before the loop starts serving operations.
	if err := coordinator.Rehydrate(ctx); err != nil {
		log.Fatal("Ledger rehydration failed", zap.Error(err))
	}

	go loop.Run(ctx)
	go scheduler.New(coordinator, cfg.Auction.SweepInterval.Std()).Run(ctx)

	queries := application.NewQueryService(ledger, loop)
	server := httpapi.NewServer(coordinator, queries, hub)
	if err := server.Start(cfg.Server.Addr); err != nil {
		log.Fatal("HTTP server failed", zap.Error(err))
	}
}
