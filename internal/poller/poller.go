package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tradeweave/marketdata/internal/api"
	"github.com/tradeweave/marketdata/internal/metrics"
	"github.com/tradeweave/marketdata/internal/model"
)

// InstrumentSource provides the instruments to poll.
type InstrumentSource interface {
	ActiveSymbols() []string
}

// SnapshotHandler receives fetched snapshots.
type SnapshotHandler interface {
	HandleSnapshot(snapshot model.BookSnapshot) error
}

// SnapshotHandlerFunc is a function adapter for SnapshotHandler.
type SnapshotHandlerFunc func(model.BookSnapshot) error

func (f SnapshotHandlerFunc) HandleSnapshot(s model.BookSnapshot) error {
	return f(s)
}

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration // Poll interval (default: 15m)
	Concurrency int           // Max concurrent requests (default: 10)
	Timeout     time.Duration // Per-request timeout (default: 10s)
	Depth       int           // Levels per snapshot, 0 = all

	// Metrics receives poll cycle and error counters when set.
	Metrics *metrics.Registry
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    15 * time.Minute,
		Concurrency: 10,
		Timeout:     10 * time.Second,
	}
}

// Poller periodically fetches order book snapshots over REST.
type Poller struct {
	cfg         Config
	client      *api.Client
	instruments InstrumentSource
	handler     SnapshotHandler
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller.
func New(cfg Config, client *api.Client, instruments InstrumentSource, handler SnapshotHandler, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		cfg:         cfg,
		client:      client,
		instruments: instruments,
		handler:     handler,
		logger:      logger,
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("snapshot poller started",
		"interval", p.cfg.Interval,
		"concurrency", p.cfg.Concurrency,
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("snapshot poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.pollAll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.pollAll()
		}
	}
}

// pollAll fetches books for all active instruments concurrently.
func (p *Poller) pollAll() {
	start := time.Now()

	symbols := p.instruments.ActiveSymbols()
	if len(symbols) == 0 {
		p.logger.Debug("no active instruments to poll")
		return
	}

	// Semaphore for bounded concurrency.
	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup
	var fetched, errs atomic.Int64

	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-p.ctx.Done():
				return
			}

			if err := p.pollInstrument(symbol); err != nil {
				p.logger.Warn("failed to poll instrument",
					"symbol", symbol,
					"err", err,
				)
				errs.Add(1)
				return
			}

			fetched.Add(1)
		}(symbol)
	}

	wg.Wait()

	if p.cfg.Metrics != nil {
		p.cfg.Metrics.PollCycles.Inc()
		p.cfg.Metrics.PollErrors.Add(float64(errs.Load()))
		p.cfg.Metrics.SnapshotsPolled.Add(float64(fetched.Load()))
	}

	p.logger.Info("poll cycle complete",
		"instruments", len(symbols),
		"fetched", fetched.Load(),
		"errors", errs.Load(),
		"duration", time.Since(start),
	)
}

// pollInstrument fetches and handles a single instrument's book.
func (p *Poller) pollInstrument(symbol string) error {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	book, err := p.client.GetBook(ctx, symbol, p.cfg.Depth)
	if err != nil {
		return err
	}

	snapshot := book.ToBookSnapshot("rest")

	if p.handler != nil {
		if err := p.handler.HandleSnapshot(snapshot); err != nil {
			return err
		}
	}

	return nil
}
