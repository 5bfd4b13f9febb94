// Package router parses raw feed messages and demultiplexes them by type
// into growable buffers consumed by the writers and the book tracker.
package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/tradeweave/marketdata/internal/api"
	"github.com/tradeweave/marketdata/internal/connection"
	"github.com/tradeweave/marketdata/internal/model"
)

// Router parses raw WebSocket messages and routes them to consumers.
type Router interface {
	// Start begins routing messages from the input channel.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the router.
	Stop(ctx context.Context) error

	// Buffers returns output buffers for consumers.
	Buffers() Buffers

	// Stats returns current router statistics.
	Stats() Stats
}

// Buffers provides access to output buffers for consumers.
type Buffers struct {
	Book   *GrowableBuffer[BookMsg]
	Trade  *GrowableBuffer[TradeMsg]
	Ticker *GrowableBuffer[TickerMsg]
}

// Stats contains runtime statistics.
type Stats struct {
	MessagesReceived int64
	MessagesRouted   int64
	ParseErrors      int64
	UnknownMessages  int64
	BookBuffer       BufferStats
	TradeBuffer      BufferStats
	TickerBuffer     BufferStats
}

// router is the internal implementation.
type router struct {
	cfg    Config
	logger *slog.Logger

	// Input from the connection manager
	input <-chan connection.RawMessage

	// Output buffers
	bookBuf   *GrowableBuffer[BookMsg]
	tradeBuf  *GrowableBuffer[TradeMsg]
	tickerBuf *GrowableBuffer[TickerMsg]

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Stats
	mu              sync.RWMutex
	received        int64
	routed          int64
	parseErrors     int64
	unknownMessages int64
}

// NewRouter creates a new message router.
func NewRouter(cfg Config, input <-chan connection.RawMessage, logger *slog.Logger) Router {
	if logger == nil {
		logger = slog.Default()
	}

	return &router{
		cfg:       cfg,
		logger:    logger,
		input:     input,
		bookBuf:   NewGrowableBuffer[BookMsg](cfg.BookBufferSize),
		tradeBuf:  NewGrowableBuffer[TradeMsg](cfg.TradeBufferSize),
		tickerBuf: NewGrowableBuffer[TickerMsg](cfg.TickerBufferSize),
	}
}

// Start begins routing messages.
func (r *router) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.routeLoop()

	r.logger.Info("message router started",
		"book_buffer", r.cfg.BookBufferSize,
		"trade_buffer", r.cfg.TradeBufferSize,
		"ticker_buffer", r.cfg.TickerBufferSize,
	)

	return nil
}

// Stop gracefully shuts down the router.
func (r *router) Stop(ctx context.Context) error {
	r.logger.Info("stopping message router")

	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("message router stopped")
	case <-ctx.Done():
		r.logger.Warn("message router stop timed out")
	}

	r.bookBuf.Close()
	r.tradeBuf.Close()
	r.tickerBuf.Close()

	return nil
}

// Buffers returns output buffers for consumers.
func (r *router) Buffers() Buffers {
	return Buffers{
		Book:   r.bookBuf,
		Trade:  r.tradeBuf,
		Ticker: r.tickerBuf,
	}
}

// Stats returns current statistics.
func (r *router) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Stats{
		MessagesReceived: r.received,
		MessagesRouted:   r.routed,
		ParseErrors:      r.parseErrors,
		UnknownMessages:  r.unknownMessages,
		BookBuffer:       r.bookBuf.Stats(),
		TradeBuffer:      r.tradeBuf.Stats(),
		TickerBuffer:     r.tickerBuf.Stats(),
	}
}

// routeLoop is the main routing goroutine.
func (r *router) routeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case raw, ok := <-r.input:
			if !ok {
				r.logger.Info("input channel closed")
				return
			}
			r.route(raw)
		}
	}
}

// route parses and routes a single message.
func (r *router) route(raw connection.RawMessage) {
	r.mu.Lock()
	r.received++
	r.mu.Unlock()

	var env messageEnvelope
	if err := json.Unmarshal(raw.Data, &env); err != nil {
		r.logger.Warn("failed to parse message envelope", "error", err)
		r.countParseError("envelope")
		return
	}

	var sent bool

	switch env.Type {
	case "book.snapshot":
		msg, err := parseBookSnapshot(env, raw)
		if err != nil {
			r.logger.Warn("failed to parse book snapshot", "error", err)
			r.countParseError("book")
			return
		}
		sent = r.bookBuf.Send(msg)

	case "book.delta":
		msg, err := parseBookDelta(env, raw)
		if err != nil {
			r.logger.Warn("failed to parse book delta", "error", err)
			r.countParseError("book")
			return
		}
		sent = r.bookBuf.Send(msg)

	case "trade":
		msg, err := parseTrade(env, raw)
		if err != nil {
			r.logger.Warn("failed to parse trade", "error", err)
			r.countParseError("trades")
			return
		}
		sent = r.tradeBuf.Send(msg)

	case "ticker":
		msg, err := parseTicker(env, raw)
		if err != nil {
			r.logger.Warn("failed to parse ticker", "error", err)
			r.countParseError("ticker")
			return
		}
		sent = r.tickerBuf.Send(msg)

	default:
		// Command responses never reach the router; anything else is an
		// unknown frame type.
		r.logger.Debug("skipping message type", "type", env.Type)
		r.mu.Lock()
		r.unknownMessages++
		r.mu.Unlock()
		return
	}

	if sent {
		r.mu.Lock()
		r.routed++
		r.mu.Unlock()
	}

	if r.cfg.Metrics != nil {
		r.cfg.Metrics.BufferDepth.WithLabelValues("book").Set(float64(r.bookBuf.Len()))
		r.cfg.Metrics.BufferDepth.WithLabelValues("trade").Set(float64(r.tradeBuf.Len()))
		r.cfg.Metrics.BufferDepth.WithLabelValues("ticker").Set(float64(r.tickerBuf.Len()))
	}
}

func (r *router) countParseError(channel string) {
	r.mu.Lock()
	r.parseErrors++
	r.mu.Unlock()

	if r.cfg.Metrics != nil {
		r.cfg.Metrics.WSParseErrors.WithLabelValues(channel).Inc()
	}
}

// parseBookSnapshot parses a book.snapshot data frame.
func parseBookSnapshot(env messageEnvelope, raw connection.RawMessage) (BookMsg, error) {
	var wire bookSnapshotWire
	if err := json.Unmarshal(env.Data, &wire); err != nil {
		return BookMsg{}, err
	}

	return BookMsg{
		Type:       "snapshot",
		Symbol:     wire.Symbol,
		SubID:      env.SubID,
		Seq:        env.Seq,
		UpdateID:   wire.UpdateID,
		ExchangeTS: api.MillisToMicro(wire.Ts),
		ReceivedAt: raw.ReceivedAt,
		SeqGap:     raw.SeqGap,
		GapSize:    raw.GapSize,
		Bids:       parseLevels(wire.Bids),
		Asks:       parseLevels(wire.Asks),
	}, nil
}

// parseBookDelta parses a book.delta data frame.
func parseBookDelta(env messageEnvelope, raw connection.RawMessage) (BookMsg, error) {
	var wire bookDeltaWire
	if err := json.Unmarshal(env.Data, &wire); err != nil {
		return BookMsg{}, err
	}

	return BookMsg{
		Type:       "delta",
		Symbol:     wire.Symbol,
		SubID:      env.SubID,
		Seq:        env.Seq,
		UpdateID:   wire.UpdateID,
		ExchangeTS: api.MillisToMicro(wire.Ts),
		ReceivedAt: raw.ReceivedAt,
		SeqGap:     raw.SeqGap,
		GapSize:    raw.GapSize,
		Bid:        wire.Side == "bid",
		Price:      api.ParseDecimal(wire.Price),
		Size:       api.ParseDecimal(wire.Size),
	}, nil
}

// parseTrade parses a trade data frame.
func parseTrade(env messageEnvelope, raw connection.RawMessage) (TradeMsg, error) {
	var wire tradeWire
	if err := json.Unmarshal(env.Data, &wire); err != nil {
		return TradeMsg{}, err
	}

	return TradeMsg{
		Symbol:     wire.Symbol,
		TradeID:    wire.TradeID,
		Price:      api.ParseDecimal(wire.Price),
		Size:       api.ParseDecimal(wire.Size),
		TakerBuy:   wire.TakerSide == "buy",
		SubID:      env.SubID,
		Seq:        env.Seq,
		ExchangeTS: api.MillisToMicro(wire.Ts),
		ReceivedAt: raw.ReceivedAt,
		SeqGap:     raw.SeqGap,
		GapSize:    raw.GapSize,
	}, nil
}

// parseTicker parses a ticker data frame.
func parseTicker(env messageEnvelope, raw connection.RawMessage) (TickerMsg, error) {
	var wire tickerWire
	if err := json.Unmarshal(env.Data, &wire); err != nil {
		return TickerMsg{}, err
	}

	return TickerMsg{
		Symbol:     wire.Symbol,
		LastPrice:  api.ParseDecimal(wire.LastPrice),
		BestBid:    api.ParseDecimal(wire.BestBid),
		BestAsk:    api.ParseDecimal(wire.BestAsk),
		Volume24h:  api.ParseDecimal(wire.Volume24h),
		SubID:      env.SubID,
		ExchangeTS: api.MillisToMicro(wire.Ts),
		ReceivedAt: raw.ReceivedAt,
	}, nil
}

// parseLevels converts [price, size] string pairs to book levels.
func parseLevels(raw [][2]string) []model.BookLevel {
	result := make([]model.BookLevel, 0, len(raw))
	for _, lvl := range raw {
		result = append(result, model.BookLevel{
			Price: api.ParseDecimal(lvl[0]),
			Size:  api.ParseDecimal(lvl[1]),
		})
	}
	return result
}
