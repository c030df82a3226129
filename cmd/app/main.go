package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"curve_go/internal/app"
	"curve_go/internal/infra"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	// 1. Pprof Server (for performance profiling)
	go func() {
		// Localhost only for security
		slog.Info("🕵️ Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Broadcast hub and its subscriber endpoint
	go bootstrap.Hub.Run()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", bootstrap.Hub.HandleWS)
	wsServer := &http.Server{Addr: ":8081", Handler: mux}
	go func() {
		slog.Info("✅ Subscriber endpoint listening", slog.String("addr", wsServer.Addr))
		if err := wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Subscriber endpoint failed", slog.Any("error", err))
		}
	}()

	// 5. Background sync loops
	cfg := bootstrap.Config

	reconcileLoop := infra.NewScheduler("reconcile", cfg.ReconcileInterval(), func(ctx context.Context) {
		if err := bootstrap.Reconciler.SyncAll(ctx); err != nil {
			slog.Error("Reconciliation cycle failed", slog.Any("error", err))
		}
	})
	reconcileLoop.Start(ctx)
	slog.InfoContext(ctx, "✅ Reconciliation loop started",
		slog.Duration("interval", cfg.ReconcileInterval()))

	holderLoop := infra.NewScheduler("holders", cfg.HolderInterval(), func(ctx context.Context) {
		if err := bootstrap.Holders.AggregateAll(ctx); err != nil {
			slog.Error("Holder aggregation cycle failed", slog.Any("error", err))
		}
	})
	holderLoop.Start(ctx)
	slog.InfoContext(ctx, "✅ Holder aggregation loop started",
		slog.Duration("interval", cfg.HolderInterval()))

	slog.InfoContext(ctx, "✨ Curve backend fully operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()

	slog.InfoContext(ctx, "👋 Shutting down gracefully...")

	reconcileLoop.Stop()
	holderLoop.Stop()
	bootstrap.Reconciler.Stop()
	bootstrap.Holders.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Subscriber endpoint shutdown failed", slog.Any("error", err))
	}

	snap := bootstrap.Metrics.Snapshot()
	slog.Info("Final metrics",
		slog.Uint64("trades_settled", snap.TradesSettled),
		slog.Uint64("sync_cycles", snap.SyncCycles),
		slog.Uint64("holder_cycles", snap.HolderCycles),
		slog.Uint64("errors", snap.ErrorsTotal))
}
