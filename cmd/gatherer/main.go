package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tradeweave/marketdata/internal/api"
	"github.com/tradeweave/marketdata/internal/auth"
	"github.com/tradeweave/marketdata/internal/book"
	"github.com/tradeweave/marketdata/internal/config"
	"github.com/tradeweave/marketdata/internal/connection"
	"github.com/tradeweave/marketdata/internal/database"
	"github.com/tradeweave/marketdata/internal/gateway"
	"github.com/tradeweave/marketdata/internal/market"
	"github.com/tradeweave/marketdata/internal/metrics"
	"github.com/tradeweave/marketdata/internal/poller"
	"github.com/tradeweave/marketdata/internal/replay"
	"github.com/tradeweave/marketdata/internal/router"
	"github.com/tradeweave/marketdata/internal/userstream"
	"github.com/tradeweave/marketdata/internal/version"
	"github.com/tradeweave/marketdata/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/gatherer.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting gatherer",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"exchange", cfg.Exchange.Name,
		"rest_url", cfg.Exchange.RestURL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Timescale.Host,
		"port", cfg.Database.Timescale.Port,
		"database", cfg.Database.Timescale.Name,
	)

	pool, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger.Info("database connected")

	// Credentials are optional: without them the gatherer runs
	// public-data only and the user stream stays disabled.
	var creds *auth.Credentials
	if cfg.Exchange.APIKey != "" {
		creds, err = auth.NewCredentials(cfg.Exchange.APIKey, cfg.Exchange.APISecret)
		if err != nil {
			logger.Error("invalid credentials", "error", err)
			os.Exit(1)
		}
	}

	// Create API client
	apiOpts := []api.ClientOption{
		api.WithLogger(logger),
		api.WithTimeout(cfg.Exchange.Timeout),
		api.WithRetries(cfg.Exchange.MaxRetries, time.Second),
		api.WithRateLimit(cfg.Exchange.RateLimit, cfg.Exchange.RateBurst),
	}

	// Record/replay harness for the REST surface
	if cfg.Replay.Mode != "" && cfg.Replay.Mode != "off" {
		store, err := replay.OpenStore(cfg.Replay.Path)
		if err != nil {
			logger.Error("failed to open replay store", "error", err, "path", cfg.Replay.Path)
			os.Exit(1)
		}
		switch cfg.Replay.Mode {
		case "record":
			logger.Info("recording HTTP traffic", "path", cfg.Replay.Path)
			apiOpts = append(apiOpts, api.WithHTTPClient(&http.Client{
				Transport: replay.NewRecorder(store, nil),
			}))
		case "replay":
			logger.Info("replaying HTTP traffic", "path", cfg.Replay.Path)
			apiOpts = append(apiOpts, api.WithHTTPClient(&http.Client{
				Transport: replay.NewPlayer(store),
			}))
		default:
			logger.Error("unknown replay mode", "mode", cfg.Replay.Mode)
			os.Exit(1)
		}
	}

	apiClient := api.NewClient(cfg.Exchange.RestURL, creds, apiOpts...)

	// Check exchange status
	logger.Info("checking exchange status")
	status, err := apiClient.GetExchangeStatus(ctx)
	if err != nil {
		logger.Error("failed to get exchange status", "error", err)
		os.Exit(1)
	}
	logger.Info("exchange status",
		"exchange_active", status.ExchangeActive,
		"trading_active", status.TradingActive,
	)

	// Companion gateway service (optional)
	var gatewayClient *gateway.Client
	if cfg.Gateway.Enabled {
		gatewayClient, err = gateway.NewClient(cfg.Gateway, logger)
		if err != nil {
			logger.Error("failed to create gateway client", "error", err)
			os.Exit(1)
		}
		if ping, err := gatewayClient.Ping(ctx); err != nil {
			logger.Warn("gateway not reachable", "error", err)
		} else {
			logger.Info("gateway connected", "status", ping.Status)
		}
	}

	// Prometheus metrics
	promRegistry := metrics.NewRegistry()

	// Create instrument registry
	registryCfg := market.DefaultConfig()
	registryCfg.Symbols = cfg.Exchange.Pairs
	registry := market.NewRegistry(registryCfg, apiClient, logger)

	// Connection manager
	mgrCfg := connection.DefaultManagerConfig()
	mgrCfg.WSURL = cfg.Exchange.WSURL
	if cfg.Connections.BookCount > 0 {
		mgrCfg.BookCount = cfg.Connections.BookCount
	}
	if cfg.Connections.PairsPerConnection > 0 {
		mgrCfg.PairsPerConnection = cfg.Connections.PairsPerConnection
	}
	if cfg.Connections.ReconnectBaseDelay > 0 {
		mgrCfg.ReconnectBaseWait = cfg.Connections.ReconnectBaseDelay
	}
	if cfg.Connections.ReconnectMaxDelay > 0 {
		mgrCfg.ReconnectMaxWait = cfg.Connections.ReconnectMaxDelay
	}
	if cfg.Connections.PingInterval > 0 {
		mgrCfg.PingInterval = cfg.Connections.PingInterval
	}
	if cfg.Connections.BufferSize > 0 {
		mgrCfg.MessageBufferSize = cfg.Connections.BufferSize
	}
	mgrCfg.Metrics = promRegistry
	manager := connection.NewManager(mgrCfg, registry, logger)

	// Message router
	rtCfg := router.DefaultConfig()
	rtCfg.Metrics = promRegistry
	rt := router.NewRouter(rtCfg, manager.Messages(), logger)
	buffers := rt.Buffers()

	// The book buffer feeds both the writer and the in-memory tracker.
	writerBookBuf := router.NewGrowableBuffer[router.BookMsg](rtCfg.BookBufferSize)
	trackerBookBuf := router.NewGrowableBuffer[router.BookMsg](rtCfg.BookBufferSize)
	go teeBooks(ctx, buffers.Book, writerBookBuf, trackerBookBuf)

	tracker := book.NewTracker(book.TrackerConfig{
		ResyncDepth:      cfg.Poller.Depth,
		MaxPendingDeltas: 10000,
	}, apiClient, trackerBookBuf, logger)

	// Writers
	writerCfg := writer.DefaultWriterConfig()
	if cfg.Writers.BatchSize > 0 {
		writerCfg.BatchSize = cfg.Writers.BatchSize
	}
	if cfg.Writers.FlushInterval > 0 {
		writerCfg.FlushInterval = cfg.Writers.FlushInterval
	}
	writerCfg.Metrics = promRegistry
	tradeWriter := writer.NewTradeWriter(writerCfg, buffers.Trade, pool.Timescale, logger)
	tickerWriter := writer.NewTickerWriter(writerCfg, buffers.Ticker, pool.Timescale, logger)
	bookWriter := writer.NewBookWriter(writerCfg, writerBookBuf, pool.Timescale, logger)

	// REST snapshot poller feeds the book writer
	pollerCfg := poller.DefaultConfig()
	if cfg.Poller.Interval > 0 {
		pollerCfg.Interval = cfg.Poller.Interval
	}
	if cfg.Poller.Concurrency > 0 {
		pollerCfg.Concurrency = cfg.Poller.Concurrency
	}
	pollerCfg.Depth = cfg.Poller.Depth
	pollerCfg.Metrics = promRegistry
	snapshotPoller := poller.New(pollerCfg, apiClient, registry, bookWriter, logger)

	// User data stream (optional)
	var stream *userstream.Stream
	if cfg.UserStream.Enabled && creds != nil {
		usCfg := userstream.DefaultConfig()
		usCfg.WSURL = cfg.Exchange.WSURL + auth.WebSocketPath
		if cfg.UserStream.KeepAliveInterval > 0 {
			usCfg.KeepAliveInterval = cfg.UserStream.KeepAliveInterval
		}
		if cfg.UserStream.ReconnectDelay > 0 {
			usCfg.ReconnectDelay = cfg.UserStream.ReconnectDelay
		}
		if cfg.UserStream.BufferSize > 0 {
			usCfg.BufferSize = cfg.UserStream.BufferSize
		}
		stream = userstream.NewStream(usCfg, apiClient, creds, logger)
	}

	// Start health server early so we can monitor sync progress
	healthPort := 8080
	if cfg.Metrics.Port > 0 {
		healthPort = cfg.Metrics.Port
	}
	metricsPath := cfg.Metrics.Path
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", healthPort),
		Handler: createHealthHandler(pool, registry, manager, tracker, gatewayClient, promRegistry, metricsPath),
	}

	go func() {
		logger.Info("starting health server", "port", healthPort)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	// Start instrument registry (initial sync)
	logger.Info("starting instrument registry (initial sync)...")
	if err := registry.Start(ctx); err != nil {
		logger.Error("failed to start instrument registry", "error", err)
		os.Exit(1)
	}

	logger.Info("instrument registry started",
		"active_instruments", len(registry.ActiveSymbols()),
	)

	// Start the pipeline back to front so consumers are ready before
	// producers begin pushing.
	if err := tradeWriter.Start(ctx); err != nil {
		logger.Error("failed to start trade writer", "error", err)
		os.Exit(1)
	}
	if err := tickerWriter.Start(ctx); err != nil {
		logger.Error("failed to start ticker writer", "error", err)
		os.Exit(1)
	}
	if err := bookWriter.Start(ctx); err != nil {
		logger.Error("failed to start book writer", "error", err)
		os.Exit(1)
	}
	if err := tracker.Start(ctx); err != nil {
		logger.Error("failed to start book tracker", "error", err)
		os.Exit(1)
	}
	if err := rt.Start(ctx); err != nil {
		logger.Error("failed to start router", "error", err)
		os.Exit(1)
	}
	if err := manager.Start(ctx); err != nil {
		logger.Error("failed to start connection manager", "error", err)
		os.Exit(1)
	}
	if err := snapshotPoller.Start(ctx); err != nil {
		logger.Error("failed to start snapshot poller", "error", err)
		os.Exit(1)
	}
	if stream != nil {
		if err := stream.Start(ctx); err != nil {
			logger.Error("failed to start user stream", "error", err)
			os.Exit(1)
		}
		go consumeUserEvents(ctx, stream, logger)
	}

	logger.Info("gatherer running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", healthPort),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop producers first, then drain consumers.
	if stream != nil {
		stream.Stop(shutdownCtx)
	}
	snapshotPoller.Stop(shutdownCtx)
	manager.Stop()
	rt.Stop(shutdownCtx)
	tracker.Stop(shutdownCtx)
	bookWriter.Stop(shutdownCtx)
	tickerWriter.Stop(shutdownCtx)
	tradeWriter.Stop(shutdownCtx)
	registry.Stop(shutdownCtx)

	healthServer.Shutdown(shutdownCtx)

	logger.Info("gatherer stopped")
}

// teeBooks fans book messages out to the writer and tracker buffers.
func teeBooks(ctx context.Context, in, writerBuf, trackerBuf *router.GrowableBuffer[router.BookMsg]) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, ok := in.TryReceive()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
				continue
			}
		}

		writerBuf.Send(msg)
		trackerBuf.Send(msg)
	}
}

// consumeUserEvents drains the user event channel. Order state lives in
// the stream's tracker; this loop just surfaces events in the log.
func consumeUserEvents(ctx context.Context, stream *userstream.Stream, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-stream.Events():
			if !ok {
				return
			}
			if ev.Order != nil {
				logger.Debug("order update",
					"client_order_id", ev.Order.ClientOrderID,
					"state", ev.Order.State,
				)
			}
			if ev.Balance != nil {
				logger.Debug("balance update", "asset", ev.Balance.Asset)
			}
		}
	}
}

// createHealthHandler creates the HTTP handler for health checks,
// debug endpoints and Prometheus metrics.
func createHealthHandler(
	pool *database.Pool,
	registry market.Registry,
	manager *connection.Manager,
	tracker *book.Tracker,
	gatewayClient *gateway.Client,
	prom *metrics.Registry,
	metricsPath string,
) http.Handler {
	mux := http.NewServeMux()

	mux.Handle(metricsPath, prom.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		// Check database
		if err := pool.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["timescaledb"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["timescaledb"] = "connected"
		}

		// Check instrument registry
		active := registry.ActiveSymbols()
		health.Components["instrument_registry"] = map[string]interface{}{
			"instruments": len(active),
		}
		if len(active) == 0 {
			health.Status = "degraded"
		}

		// Check WebSocket connections
		states := manager.ConnectionStates()
		up := 0
		for _, connected := range states {
			if connected {
				up++
			}
		}
		health.Components["connections"] = map[string]interface{}{
			"total": len(states),
			"up":    up,
		}
		if up < len(states) {
			health.Status = "degraded"
		}

		// Check companion gateway when configured
		if gatewayClient != nil {
			if _, err := gatewayClient.Ping(ctx); err != nil {
				health.Components["gateway"] = map[string]string{
					"status": "unreachable",
					"error":  err.Error(),
				}
				health.Status = "degraded"
			} else {
				health.Components["gateway"] = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/instruments", func(w http.ResponseWriter, r *http.Request) {
		instruments := registry.ActiveInstruments()

		// Limit to first 100 for debugging
		limit := 100
		total := len(instruments)
		if total > limit {
			instruments = instruments[:limit]
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"count":       total,
			"showing":     len(instruments),
			"instruments": instruments,
		})
	})

	mux.HandleFunc("/debug/book", func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("symbol")
		if symbol == "" {
			http.Error(w, "missing symbol parameter", http.StatusBadRequest)
			return
		}

		// Accept pair notation too, e.g. BTC-USDT for BTC_USDT.
		if sym, ok := registry.Symbols().SymbolFor(symbol); ok {
			symbol = sym
		}

		b, ok := tracker.Book(symbol)
		if !ok {
			http.Error(w, "book not synced", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(b.Snapshot(20))
	})

	return mux
}
