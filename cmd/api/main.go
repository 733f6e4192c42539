package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/cursorqr/backend/internal/auth"
	"github.com/cursorqr/backend/internal/config"
	"github.com/cursorqr/backend/internal/generation"
	"github.com/cursorqr/backend/internal/handlers"
	"github.com/cursorqr/backend/internal/ledger"
	"github.com/cursorqr/backend/internal/repository"
	"github.com/cursorqr/backend/internal/router"
	"github.com/cursorqr/backend/internal/upload"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

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
		slog.Error("Cannot reach PostgreSQL (connection refused or invalid). Ensure Postgres is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL database successfully!")

	if err := repository.Migrate(ctx, pool); err != nil {
		slog.Error("Schema migration failed", "error", err)
		os.Exit(1)
	}

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed. If the error is 'connection refused', start PostgreSQL first", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	userRepo := repository.NewUserRepo(pool)
	qrRepo := repository.NewQRRepo(pool)
	ledgerSvc := ledger.NewService(userRepo, logger)
	uploader := upload.NewClient(cfg.UploadAPIURL, cfg.UploadAPIKey)

	workers := river.NewWorkers()
	river.AddWorker(workers, generation.NewRenderQRWorker(pool, uploader, qrRepo, ledgerSvc, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	insertRenderQR := func(ctx context.Context, tx pgx.Tx, args generation.RenderQRJobArgs) error {
		_, err := riverClient.InsertTx(ctx, tx, args, nil)
		return err
	}

	verifier := auth.NewVerifier(cfg.SessionSecret)

	accountH := &handlers.AccountHandler{Ledger: ledgerSvc, Logger: logger}
	qrH := &handlers.QRHandler{
		Pool:           pool,
		QRRepo:         qrRepo,
		Ledger:         ledgerSvc,
		InsertRenderQR: insertRenderQR,
		Logger:         logger,
	}
	adminH := &handlers.AdminHandler{Ledger: ledgerSvc, Users: userRepo, Logger: logger}

	apiRouter := router.New(verifier, userRepo, accountH, qrH, adminH)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(apiRouter)

	// Start River client (processes render jobs)
	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	addr := cfg.HTTPAddress()
	slog.Info("Starting HTTP server", "addr", addr)
	if err := http.ListenAndServe(addr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
