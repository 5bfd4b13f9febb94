// streamtest connects to the exchange WebSocket feed and streams parsed
// messages to the console. Useful for eyeballing a feed before pointing
// the gatherer at it.
//
// Usage: go run ./cmd/streamtest --config configs/gatherer.local.yaml
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tradeweave/marketdata/internal/api"
	"github.com/tradeweave/marketdata/internal/auth"
	"github.com/tradeweave/marketdata/internal/config"
	"github.com/tradeweave/marketdata/internal/connection"
	"github.com/tradeweave/marketdata/internal/market"
	"github.com/tradeweave/marketdata/internal/router"
)

func main() {
	configPath := flag.String("config", "configs/gatherer.example.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "print full message JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	// Credentials are optional for the public feed
	var creds *auth.Credentials
	if cfg.Exchange.APIKey != "" {
		creds, err = auth.NewCredentials(cfg.Exchange.APIKey, cfg.Exchange.APISecret)
		if err != nil {
			logger.Error("invalid credentials", "error", err)
			os.Exit(1)
		}
	}

	apiClient := api.NewClient(cfg.Exchange.RestURL, creds, api.WithLogger(logger))

	// Instrument registry
	registryCfg := market.DefaultConfig()
	registryCfg.Symbols = cfg.Exchange.Pairs
	registry := market.NewRegistry(registryCfg, apiClient, logger)

	logger.Info("starting instrument registry sync...")
	if err := registry.Start(ctx); err != nil {
		logger.Error("failed to start instrument registry", "error", err)
		os.Exit(1)
	}

	logger.Info("instrument registry ready", "active_instruments", len(registry.ActiveSymbols()))

	// Connection manager
	connCfg := connection.DefaultManagerConfig()
	connCfg.WSURL = cfg.Exchange.WSURL
	connCfg.MessageBufferSize = 10000

	connMgr := connection.NewManager(connCfg, registry, logger)

	// Router using the connection manager's message channel
	rtr := router.NewRouter(router.Config{
		BookBufferSize:   1000,
		TradeBufferSize:  1000,
		TickerBufferSize: 1000,
	}, connMgr.Messages(), logger)

	// Start router first so the output channel has a consumer
	logger.Info("starting router")
	if err := rtr.Start(ctx); err != nil {
		logger.Error("failed to start router", "error", err)
		os.Exit(1)
	}

	logger.Info("starting connection manager")
	if err := connMgr.Start(ctx); err != nil {
		logger.Error("failed to start connection manager", "error", err)
		os.Exit(1)
	}

	// Get buffers
	buffers := rtr.Buffers()

	// Start console printers
	go printBooks(ctx, buffers.Book, *verbose)
	go printTrades(ctx, buffers.Trade, *verbose)
	go printTickers(ctx, buffers.Ticker, *verbose)

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := rtr.Stats()
				states := connMgr.ConnectionStates()
				up := 0
				for _, connected := range states {
					if connected {
						up++
					}
				}
				logger.Info("stats",
					"conns_up", up,
					"conns_total", len(states),
					"router_received", stats.MessagesReceived,
					"router_routed", stats.MessagesRouted,
					"parse_errors", stats.ParseErrors,
					"book_buf", stats.BookBuffer.Count,
					"trade_buf", stats.TradeBuffer.Count,
					"ticker_buf", stats.TickerBuffer.Count,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	connMgr.Stop()
	rtr.Stop(shutdownCtx)
	registry.Stop(shutdownCtx)

	logger.Info("shutdown complete")
}

func printBooks(ctx context.Context, buf *router.GrowableBuffer[router.BookMsg], verbose bool) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg, ok := buf.TryReceive()
			if !ok {
				time.Sleep(10 * time.Millisecond)
				continue
			}

			if verbose {
				data, _ := json.MarshalIndent(msg, "", "  ")
				fmt.Printf("[BOOK] %s\n", data)
			} else {
				if msg.Type == "delta" {
					side := "ask"
					if msg.Bid {
						side = "bid"
					}
					fmt.Printf("[BOOK DELTA] symbol=%s side=%s price=%s size=%s update_id=%d seq=%d\n",
						msg.Symbol, side, msg.Price, msg.Size, msg.UpdateID, msg.Seq)
				} else {
					fmt.Printf("[BOOK SNAPSHOT] symbol=%s bids=%d asks=%d update_id=%d seq=%d\n",
						msg.Symbol, len(msg.Bids), len(msg.Asks), msg.UpdateID, msg.Seq)
				}
			}
		}
	}
}

func printTrades(ctx context.Context, buf *router.GrowableBuffer[router.TradeMsg], verbose bool) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg, ok := buf.TryReceive()
			if !ok {
				time.Sleep(10 * time.Millisecond)
				continue
			}

			if verbose {
				data, _ := json.MarshalIndent(msg, "", "  ")
				fmt.Printf("[TRADE] %s\n", data)
			} else {
				taker := "sell"
				if msg.TakerBuy {
					taker = "buy"
				}
				fmt.Printf("[TRADE] symbol=%s id=%s price=%s size=%s taker=%s\n",
					msg.Symbol, msg.TradeID, msg.Price, msg.Size, taker)
			}
		}
	}
}

func printTickers(ctx context.Context, buf *router.GrowableBuffer[router.TickerMsg], verbose bool) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg, ok := buf.TryReceive()
			if !ok {
				time.Sleep(10 * time.Millisecond)
				continue
			}

			if verbose {
				data, _ := json.MarshalIndent(msg, "", "  ")
				fmt.Printf("[TICKER] %s\n", data)
			} else {
				fmt.Printf("[TICKER] symbol=%s last=%s bid=%s ask=%s vol=%s\n",
					msg.Symbol, msg.LastPrice, msg.BestBid, msg.BestAsk, msg.Volume24h)
			}
		}
	}
}
