package market

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tradeweave/marketdata/internal/api"
	"github.com/tradeweave/marketdata/internal/model"
	"github.com/tradeweave/marketdata/internal/symbols"
)

// Config holds instrument registry configuration.
type Config struct {
	ReconcileInterval time.Duration
	PageSize          int

	// Symbols restricts the registry to an explicit instrument set.
	// Empty means track every instrument the exchange lists.
	Symbols []string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ReconcileInterval: 5 * time.Minute,
		PageSize:          1000,
	}
}

// registryImpl implements the Registry interface.
type registryImpl struct {
	cfg    Config
	rest   *api.Client
	logger *slog.Logger

	state *registryState

	// Bidirectional exchange symbol <-> trading pair map, populated
	// lazily from the instruments sync.
	syms *symbols.Map

	// Symbol filter derived from cfg.Symbols, nil when unrestricted.
	// Entries may use either exchange or pair notation.
	filter map[string]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry creates a new instrument registry.
func NewRegistry(cfg Config, rest *api.Client, logger *slog.Logger) Registry {
	if logger == nil {
		logger = slog.Default()
	}

	var filter map[string]struct{}
	if len(cfg.Symbols) > 0 {
		filter = make(map[string]struct{}, len(cfg.Symbols))
		for _, s := range cfg.Symbols {
			filter[s] = struct{}{}
		}
	}

	return &registryImpl{
		cfg:    cfg,
		rest:   rest,
		logger: logger,
		state:  newState(),
		syms:   symbols.NewMap(),
		filter: filter,
	}
}

// Start performs the initial sync and begins background reconciliation.
func (r *registryImpl) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	// Initial sync (blocking).
	if err := r.initialSync(r.ctx); err != nil {
		r.cancel()
		return err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.reconciliationLoop(r.ctx)
	}()

	r.logger.Info("instrument registry started",
		"active_instruments", len(r.state.activeSet),
		"total_instruments", len(r.state.instruments),
	)

	return nil
}

// Stop gracefully shuts down.
func (r *registryImpl) Stop(ctx context.Context) error {
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
		r.logger.Info("instrument registry stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveInstruments returns all instruments currently open for trading.
func (r *registryImpl) ActiveInstruments() []model.Instrument {
	return r.state.getActiveInstruments()
}

// Instrument returns a specific instrument by symbol.
func (r *registryImpl) Instrument(symbol string) (model.Instrument, bool) {
	return r.state.getInstrument(symbol)
}

// ActiveSymbols returns the symbols of all trading instruments.
func (r *registryImpl) ActiveSymbols() []string {
	return r.state.getActiveSymbols()
}

// Changes returns the channel of instrument state changes.
func (r *registryImpl) Changes() <-chan ChangeEvent {
	return r.state.changes
}

// Symbols returns the exchange symbol <-> trading pair map.
func (r *registryImpl) Symbols() *symbols.Map {
	return r.syms
}

// recordMapping registers an instrument's symbol <-> pair association.
// Must run before the filter check so pair-notation filters resolve.
func (r *registryImpl) recordMapping(inst model.Instrument) {
	if err := r.syms.Put(inst.Symbol, inst.TradingPair); err != nil {
		r.logger.Warn("conflicting symbol mapping",
			"symbol", inst.Symbol,
			"pair", inst.TradingPair,
			"err", err,
		)
	}
}

// tracked reports whether a symbol passes the configured filter. Filter
// entries in pair notation are translated through the symbol map.
func (r *registryImpl) tracked(symbol string) bool {
	if r.filter == nil {
		return true
	}
	if _, ok := r.filter[symbol]; ok {
		return true
	}
	if pair, ok := r.syms.PairFor(symbol); ok {
		_, ok = r.filter[pair]
		return ok
	}
	return false
}
