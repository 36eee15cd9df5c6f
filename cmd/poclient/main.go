package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/pofinance/internal/backend"
	"github.com/example/pofinance/internal/config"
	"github.com/example/pofinance/internal/ledger"
	"github.com/example/pofinance/internal/push"
	"github.com/example/pofinance/internal/store"
	"github.com/example/pofinance/internal/wallet"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	signer := wallet.NewLocalSigner(cfg.WalletAddress, []byte(cfg.WalletKey))
	session := wallet.NewSession(signer)

	gateway := ledger.NewGateway(ledger.Config{
		RPCEndpoint:     cfg.LedgerRPCURL,
		ContractAddress: cfg.ContractAddress,
		RequestTimeout:  cfg.HTTPTimeout,
		ConfirmInterval: cfg.ConfirmInterval,
		ConfirmTimeout:  cfg.ConfirmTimeout,
	}, signer, logger)
	client := backend.NewClient(cfg.BackendBaseURL, cfg.HTTPTimeout)

	cache, err := store.OpenPOCache(cfg.CachePath)
	if err != nil {
		logger.Warn("po cache unavailable, running without it", "path", cfg.CachePath, "error", err)
		cache = nil
	} else {
		defer cache.Close()
	}

	st := store.New(gateway, client, session, cache, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if addr, err := session.Connect(ctx); err != nil {
		logger.Warn("no wallet connected, ledger submissions disabled", "error", err)
	} else {
		logger.Info("wallet connected", "address", addr)
	}

	if err := st.Refresh(ctx); err != nil {
		logger.Error("initial refresh failed", "error", err)
	}

	// Push events carry no applicable detail; each one triggers a full
	// refresh. A refresh superseded mid-flight is discarded by the store.
	channel := push.NewChannel(cfg.PushEndpoint, logger)
	var dropped <-chan struct{}
	sub, err := channel.Subscribe(ctx, func(ev push.Event) {
		refreshCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout*4)
		defer cancel()
		if err := st.Refresh(refreshCtx); err != nil {
			logger.Error("push-triggered refresh failed", "event", ev.Type, "error", err)
		}
	})
	if err != nil {
		logger.Warn("push channel unavailable, relying on periodic refresh", "error", err)
	} else {
		defer sub.Close()
		dropped = sub.Done()
	}

	ticker := time.NewTicker(cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case <-dropped:
			logger.Warn("push connection dropped, relying on periodic refresh")
			dropped = nil
		case <-ticker.C:
			if err := st.Refresh(ctx); err != nil {
				logger.Error("periodic refresh failed", "error", err)
				continue
			}
			snap := st.Snapshot()
			logger.Info("snapshot refreshed",
				"pos", len(snap.POs),
				"loans", len(snap.Loans),
				"total_capital", snap.Stats.TotalCapital.String(),
				"ledger_stale", snap.LedgerStale,
				"backend_stale", snap.BackendStale,
			)
		}
	}
}
