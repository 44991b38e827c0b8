package main

import (
	"log/slog"
	"net/http"

	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/auth"
	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/config"
	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/escrow"
	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/handlers"
	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/middleware"
	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/repository"
	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/wallet"
)

// registerRoutes adds every /v1/ endpoint to the given mux.
// Middleware chain: SessionAuth -> (AdminOnly on admin routes) -> handler.
// The internal sweep endpoint uses the shared secret instead of a session.
func registerRoutes(
	mux *http.ServeMux,
	cfg *config.Config,
	authSvc auth.Service,
	escrowSvc *escrow.Service,
	walletSvc *wallet.Service,
	gigRepo *repository.GigRepo,
	appRepo *repository.ApplicationRepo,
	txnRepo *repository.TransactionRepo,
	withdrawalRepo *repository.WithdrawalRepo,
	logger *slog.Logger,
) {
	authHandler := auth.NewHandler(authSvc, logger)

	gigHandler := &handlers.GigHandler{
		Gigs:         gigRepo,
		Applications: appRepo,
		Logger:       logger,
	}
	escrowHandler := &handlers.EscrowHandler{
		Settlement: escrowSvc,
		Journal:    txnRepo,
		Gigs:       gigRepo,
		Logger:     logger,
	}
	walletHandler := &handlers.WalletHandler{
		Wallet:      walletSvc,
		Withdrawals: withdrawalRepo,
		Journal:     txnRepo,
		Logger:      logger,
	}

	session := middleware.SessionAuth(authSvc)
	sweepAuth := middleware.SweepSecret(cfg.SweepSecret)

	// Auth
	mux.HandleFunc("POST /v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /v1/auth/login", authHandler.Login)
	mux.Handle("GET /v1/auth/me", session(http.HandlerFunc(authHandler.Me)))

	// Gigs and applications
	mux.Handle("POST /v1/gigs", session(http.HandlerFunc(gigHandler.CreateGig)))
	mux.Handle("GET /v1/gigs", session(http.HandlerFunc(gigHandler.ListMyGigs)))
	mux.Handle("GET /v1/gigs/{id}", session(http.HandlerFunc(gigHandler.GetGig)))
	mux.Handle("POST /v1/gigs/{id}/apply", session(http.HandlerFunc(gigHandler.Apply)))
	mux.Handle("GET /v1/gigs/{id}/applications", session(http.HandlerFunc(gigHandler.ListApplications)))

	// Funding and settlement
	mux.Handle("POST /v1/gigs/{id}/fund/order", session(http.HandlerFunc(escrowHandler.CreateOrder)))
	mux.Handle("POST /v1/gigs/{id}/fund/verify", session(http.HandlerFunc(escrowHandler.VerifyPayment)))
	mux.Handle("POST /v1/gigs/{id}/deliver", session(http.HandlerFunc(escrowHandler.Deliver)))
	mux.Handle("POST /v1/gigs/{id}/release", session(http.HandlerFunc(escrowHandler.Release)))
	mux.Handle("POST /v1/gigs/{id}/handshake", session(http.HandlerFunc(escrowHandler.Handshake)))
	mux.Handle("POST /v1/gigs/{id}/return", session(http.HandlerFunc(escrowHandler.RentalReturn)))
	mux.Handle("POST /v1/gigs/{id}/dispute", session(http.HandlerFunc(escrowHandler.Dispute)))
	mux.Handle("POST /v1/gigs/{id}/cancel", session(http.HandlerFunc(escrowHandler.Cancel)))
	mux.Handle("GET /v1/gigs/{id}/transactions", session(http.HandlerFunc(escrowHandler.ListJournal)))

	// Wallet
	mux.Handle("POST /v1/wallet/topup/order", session(http.HandlerFunc(walletHandler.CreateTopupOrder)))
	mux.Handle("POST /v1/wallet/topup/verify", session(http.HandlerFunc(walletHandler.VerifyTopup)))
	mux.Handle("POST /v1/wallet/withdrawals", session(http.HandlerFunc(walletHandler.RequestWithdrawal)))
	mux.Handle("GET /v1/wallet/transactions", session(http.HandlerFunc(walletHandler.ListTransactions)))

	// Admin
	mux.Handle("GET /v1/admin/withdrawals", session(middleware.AdminOnly(http.HandlerFunc(walletHandler.ListPendingWithdrawals))))
	mux.Handle("POST /v1/admin/withdrawals/{id}/approve", session(middleware.AdminOnly(walletHandler.DecideWithdrawal(true))))
	mux.Handle("POST /v1/admin/withdrawals/{id}/reject", session(middleware.AdminOnly(walletHandler.DecideWithdrawal(false))))

	// Internal
	mux.Handle("POST /v1/internal/sweep", sweepAuth(http.HandlerFunc(escrowHandler.Sweep)))
}
