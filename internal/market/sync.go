package market

import (
	"context"
	"time"

	"github.com/tradeweave/marketdata/internal/api"
	"github.com/tradeweave/marketdata/internal/model"
)

// initialSync fetches the instrument universe from the REST API on startup.
// Trading and halted instruments are both loaded; delisted history is not.
func (r *registryImpl) initialSync(ctx context.Context) error {
	// Check exchange status first.
	if err := r.checkExchangeStatus(ctx); err != nil {
		return err
	}

	r.logger.Info("starting initial instrument sync")
	start := time.Now()

	instruments, err := r.fetchListed(ctx)
	if err != nil {
		return err
	}

	r.state.mu.Lock()
	for _, ai := range instruments {
		inst := ai.ToModel()
		r.recordMapping(inst)
		if !r.tracked(inst.Symbol) {
			continue
		}
		r.state.upsertInstrumentLocked(inst)

		if inst.IsTrading() {
			r.state.notifyChange(ChangeEvent{
				Type:       ChangeListed,
				Symbol:     inst.Symbol,
				Instrument: inst,
			})
		}
	}
	r.state.lastSyncAt = time.Now()
	r.state.mu.Unlock()

	r.logger.Info("initial sync complete",
		"total_instruments", len(instruments),
		"active_instruments", len(r.state.activeSet),
		"duration", time.Since(start),
	)

	return nil
}

// fetchListed pages through trading and halted instruments.
func (r *registryImpl) fetchListed(ctx context.Context) ([]api.APIInstrument, error) {
	trading, err := r.rest.GetAllInstrumentsWithOptions(ctx, api.GetInstrumentsOptions{
		Status: model.StatusTrading,
		Limit:  r.cfg.PageSize,
	})
	if err != nil {
		return nil, err
	}

	halted, err := r.rest.GetAllInstrumentsWithOptions(ctx, api.GetInstrumentsOptions{
		Status: model.StatusHalted,
		Limit:  r.cfg.PageSize,
	})
	if err != nil {
		return nil, err
	}

	combined := make([]api.APIInstrument, 0, len(trading)+len(halted))
	combined = append(combined, trading...)
	combined = append(combined, halted...)
	return combined, nil
}

// checkExchangeStatus verifies the exchange is active.
func (r *registryImpl) checkExchangeStatus(ctx context.Context) error {
	status, err := r.rest.GetExchangeStatus(ctx)
	if err != nil {
		return err
	}

	r.state.mu.Lock()
	r.state.exchangeActive = status.ExchangeActive
	r.state.tradingActive = status.TradingActive
	r.state.mu.Unlock()

	if !status.ExchangeActive {
		// Continue anyway, reconciliation will retry.
		r.logger.Warn("exchange is not active")
	}

	return nil
}

// reconciliationLoop periodically syncs with the REST API.
func (r *registryImpl) reconciliationLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reconcile(ctx)
		}
	}
}

// reconcile fetches the current instrument universe and detects listings,
// status changes, and delistings missed since the last sync.
func (r *registryImpl) reconcile(ctx context.Context) {
	start := time.Now()

	instruments, err := r.fetchListed(ctx)
	if err != nil {
		r.logger.Error("reconciliation fetch failed", "err", err)
		return
	}

	seen := make(map[string]struct{}, len(instruments))
	var listed, changed, delisted int

	r.state.mu.Lock()
	for _, ai := range instruments {
		inst := ai.ToModel()
		r.recordMapping(inst)
		if !r.tracked(inst.Symbol) {
			continue
		}
		seen[inst.Symbol] = struct{}{}

		existing, ok := r.state.instruments[inst.Symbol]
		if !ok {
			// New listing we missed.
			r.state.upsertInstrumentLocked(inst)
			if inst.IsTrading() {
				r.state.notifyChange(ChangeEvent{
					Type:       ChangeListed,
					Symbol:     inst.Symbol,
					Instrument: inst,
				})
				listed++
			}
			continue
		}

		if existing.Status != inst.Status {
			oldStatus := existing.Status
			r.state.upsertInstrumentLocked(inst)

			r.state.notifyChange(ChangeEvent{
				Type:       ChangeStatusChanged,
				Symbol:     inst.Symbol,
				OldStatus:  oldStatus,
				Instrument: inst,
			})
			changed++
		}
	}

	// Instruments that vanished from the listed universe are delisted.
	now := time.Now().UnixMicro()
	for symbol, existing := range r.state.instruments {
		if existing.Status == model.StatusDelisted {
			continue
		}
		if _, ok := seen[symbol]; ok {
			continue
		}

		oldStatus := existing.Status
		if inst, ok := r.state.markDelistedLocked(symbol, now); ok {
			r.state.notifyChange(ChangeEvent{
				Type:       ChangeDelisted,
				Symbol:     symbol,
				OldStatus:  oldStatus,
				Instrument: inst,
			})
			delisted++
		}
	}

	r.state.lastSyncAt = time.Now()
	r.state.mu.Unlock()

	if listed > 0 || changed > 0 || delisted > 0 {
		r.logger.Info("reconciliation found changes",
			"listed", listed,
			"changed", changed,
			"delisted", delisted,
			"duration", time.Since(start),
		)
	} else {
		r.logger.Debug("reconciliation complete",
			"total_instruments", len(instruments),
			"duration", time.Since(start),
		)
	}
}
