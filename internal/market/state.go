package market

import (
	"sync"
	"time"

	"github.com/tradeweave/marketdata/internal/model"
)

// registryState holds the thread-safe instrument cache.
type registryState struct {
	mu sync.RWMutex

	// All known instruments indexed by symbol.
	instruments map[string]*model.Instrument

	// Instruments currently open for trading.
	activeSet map[string]struct{}

	// Exchange status.
	exchangeActive bool
	tradingActive  bool

	// Last successful REST sync timestamp.
	lastSyncAt time.Time

	// Output channel for the connection manager.
	changes chan ChangeEvent
}

func newState() *registryState {
	return &registryState{
		instruments: make(map[string]*model.Instrument),
		activeSet:   make(map[string]struct{}),
		changes:     make(chan ChangeEvent, ChangeBufferSize),
	}
}

// getInstrument returns an instrument by symbol (read-locked).
func (s *registryState) getInstrument(symbol string) (model.Instrument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instruments[symbol]
	if !ok {
		return model.Instrument{}, false
	}
	return *inst, true
}

// getActiveInstruments returns a copy of all trading instruments (read-locked).
func (s *registryState) getActiveInstruments() []model.Instrument {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Instrument, 0, len(s.activeSet))
	for symbol := range s.activeSet {
		if inst, ok := s.instruments[symbol]; ok {
			result = append(result, *inst)
		}
	}
	return result
}

// getActiveSymbols returns the symbols of all trading instruments (read-locked).
func (s *registryState) getActiveSymbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]string, 0, len(s.activeSet))
	for symbol := range s.activeSet {
		result = append(result, symbol)
	}
	return result
}

// upsertInstrumentLocked adds or updates an instrument (caller must hold
// the write lock).
func (s *registryState) upsertInstrumentLocked(inst model.Instrument) {
	instCopy := inst
	s.instruments[inst.Symbol] = &instCopy

	if inst.IsTrading() {
		s.activeSet[inst.Symbol] = struct{}{}
	} else {
		delete(s.activeSet, inst.Symbol)
	}
}

// markDelistedLocked flags an instrument as delisted (caller must hold
// the write lock).
func (s *registryState) markDelistedLocked(symbol string, ts int64) (model.Instrument, bool) {
	inst, ok := s.instruments[symbol]
	if !ok {
		return model.Instrument{}, false
	}

	inst.Status = model.StatusDelisted
	inst.DelistedTS = ts
	inst.UpdatedAt = ts
	delete(s.activeSet, symbol)

	return *inst, true
}

// notifyChange sends a change to the changes channel (non-blocking).
func (s *registryState) notifyChange(change ChangeEvent) {
	select {
	case s.changes <- change:
	default:
		// Channel full, drop oldest by consuming one and retrying.
		select {
		case <-s.changes:
			s.changes <- change
		default:
		}
	}
}
