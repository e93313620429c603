package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/efreitasn/papertrade/internal/config"
	"github.com/efreitasn/papertrade/internal/handler"
	"github.com/efreitasn/papertrade/internal/quote"
	"github.com/efreitasn/papertrade/internal/service"
	"github.com/efreitasn/papertrade/internal/store"
)

// quoteCacheEntries bounds the number of symbols kept in the quote cache.
const quoteCacheEntries = 10_000

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		if !healthy(http.DefaultClient, fmt.Sprintf("http://localhost:%s/healthz", port)) {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ledger, ping, closeLedger, err := openLedger(ctx, cfg)
	if err != nil {
		logger.Error("failed to open ledger store",
			slog.String("driver", cfg.StoreDriver),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer closeLedger()

	oracle, closeOracle, err := openOracle(cfg)
	if err != nil {
		logger.Error("failed to configure quote provider",
			slog.String("provider", cfg.QuoteProvider),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer closeOracle()

	// Services.
	quoteSvc := service.NewQuoteService(oracle, cfg.QuoteTimeout, logger)
	accountSvc := service.NewAccountService(ledger, cfg.StartingCash, cfg.StorageTimeout, logger)
	tradeSvc := service.NewTradeService(ledger, quoteSvc, cfg.StorageTimeout, logger)
	portfolioSvc := service.NewPortfolioService(ledger, quoteSvc, cfg.StorageTimeout, logger)
	leaderboardSvc := service.NewLeaderboardService(ledger, quoteSvc, cfg.StorageTimeout, logger)

	// Router.
	router := handler.NewRouter(accountSvc, tradeSvc, portfolioSvc, leaderboardSvc, quoteSvc, ping, logger)

	// Configure HTTP server.
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start HTTP server in a goroutine.
	go func() {
		logger.Info("server starting",
			slog.String("addr", addr),
			slog.String("store", cfg.StoreDriver),
			slog.String("quotes", cfg.QuoteProvider),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Graceful shutdown: drain HTTP requests, then release the ledger.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	cancel()

	logger.Info("server stopped")
}

// healthy reports whether a GET of url answers 200.
func healthy(client *http.Client, url string) bool {
	resp, err := client.Get(url)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// openLedger opens the configured ledger store. The returned pinger is nil
// for the in-memory store.
func openLedger(ctx context.Context, cfg *config.Config) (service.LedgerStore, handler.Pinger, func(), error) {
	openCtx, cancel := context.WithTimeout(ctx, cfg.StorageTimeout)
	defer cancel()

	switch cfg.StoreDriver {
	case config.DriverSQLite:
		s, err := store.OpenSQLite(openCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		return s, s.Ping, func() { _ = s.Close() }, nil
	case config.DriverPostgres:
		s, err := store.OpenPostgres(openCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		return s, s.Ping, func() { _ = s.Close() }, nil
	}
	return store.NewMemoryStore(), nil, func() {}, nil
}

// openOracle builds the configured price oracle, wrapped in a TTL cache
// unless QUOTE_CACHE_TTL is zero.
func openOracle(cfg *config.Config) (service.Oracle, func(), error) {
	var oracle service.Oracle
	switch cfg.QuoteProvider {
	case config.ProviderIEX:
		oracle = quote.NewIEXClient(cfg.QuoteAPIURL, cfg.QuoteAPIKey, cfg.QuoteTimeout)
	default:
		static, err := quote.ParseStatic(cfg.QuoteStatic)
		if err != nil {
			return nil, nil, err
		}
		oracle = static
	}

	if cfg.QuoteCacheTTL == 0 {
		return oracle, func() {}, nil
	}
	cache, err := quote.NewCache(oracle, quoteCacheEntries, cfg.QuoteCacheTTL)
	if err != nil {
		return nil, nil, err
	}
	return cache, cache.Close, nil
}
