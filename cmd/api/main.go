package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/auth"
	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/config"
	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/escrow"
	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/fees"
	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/jobs"
	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/payments"
	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/payout"
	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/repository"
	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/wallet"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure it is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL")

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	// Repositories
	userRepo := repository.NewUserRepo(pool)
	gigRepo := repository.NewGigRepo(pool)
	escrowRepo := repository.NewEscrowRepo(pool)
	txnRepo := repository.NewTransactionRepo(pool)
	appRepo := repository.NewApplicationRepo(pool)
	payoutRepo := repository.NewPayoutRepo(pool)
	withdrawalRepo := repository.NewWithdrawalRepo(pool)

	gateway := payments.NewHTTPGateway(cfg.GatewayBaseURL, cfg.GatewayKeyID, cfg.GatewayKeySecret)

	// Payout dispatch: insert func is set after the River client exists
	// (breaks the init cycle between the services and the worker pool).
	var insertMu sync.Mutex
	var insertFn escrow.EnqueuePayoutTxFunc
	enqueuePayout := func(ctx context.Context, tx pgx.Tx, args payout.DispatchArgs) error {
		insertMu.Lock()
		fn := insertFn
		insertMu.Unlock()
		if fn == nil {
			panic("river insert not wired")
		}
		return fn(ctx, tx, args)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, payout.NewDispatchWorker(payout.LogTransfer{Log: logger}, payoutRepo, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.PayoutMaxWorkers},
		},
		Workers: workers,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	insertMu.Lock()
	insertFn = func(ctx context.Context, tx pgx.Tx, args payout.DispatchArgs) error {
		_, err := riverClient.InsertTx(ctx, tx, args, nil)
		return err
	}
	insertMu.Unlock()

	// Services
	authSvc := auth.NewService(userRepo, cfg.JWTSecret)

	escrowSvc := escrow.NewService(escrow.Deps{
		DB:              pool,
		Gigs:            gigRepo,
		Escrows:         escrowRepo,
		Transactions:    txnRepo,
		Users:           userRepo,
		Applications:    appRepo,
		Payouts:         payoutRepo,
		Gateway:         gateway,
		Policy:          fees.DefaultPolicy(),
		EnqueuePayoutTx: enqueuePayout,
		Logger:          logger,
	})

	walletSvc := wallet.NewService(pool, userRepo, txnRepo, withdrawalRepo, payoutRepo, gateway,
		wallet.EnqueuePayoutTxFunc(enqueuePayout), logger)

	mux := http.NewServeMux()
	registerRoutes(mux, cfg, authSvc, escrowSvc, walletSvc, gigRepo, appRepo, txnRepo, withdrawalRepo, logger)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(mux)

	// Start River client (processes payout dispatch jobs)
	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	// Auto-release sweep scheduler
	scheduler, err := jobs.NewScheduler(escrowSvc, cfg.SweepSchedule, cfg.SweepTimeout, logger)
	if err != nil {
		slog.Error("Invalid sweep schedule", "schedule", cfg.SweepSchedule, "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	serverAddr := "0.0.0.0:" + cfg.Port
	slog.Info("Starting HTTP server", "addr", serverAddr)
	if err := http.ListenAndServe(serverAddr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
