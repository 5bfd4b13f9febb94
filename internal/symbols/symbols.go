// Package symbols maintains the bidirectional mapping between exchange
// symbols and canonical trading pair notation. The connector initializes
// the map from the instruments endpoint and every component translates
// through it rather than string-munging symbols itself.
package symbols

import (
	"fmt"
	"strings"
	"sync"
)

// Map is a thread-safe bidirectional symbol map.
type Map struct {
	mu         sync.RWMutex
	byExchange map[string]string // exchange symbol → trading pair
	byPair     map[string]string // trading pair → exchange symbol
}

// NewMap creates an empty symbol map.
func NewMap() *Map {
	return &Map{
		byExchange: make(map[string]string),
		byPair:     make(map[string]string),
	}
}

// Put registers a symbol ↔ pair association. Both directions must be
// unique; a conflicting entry is rejected.
func (m *Map) Put(exchangeSymbol, tradingPair string) error {
	if exchangeSymbol == "" || tradingPair == "" {
		return fmt.Errorf("empty symbol or pair")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.byExchange[exchangeSymbol]; ok && existing != tradingPair {
		return fmt.Errorf("symbol %q already mapped to %q", exchangeSymbol, existing)
	}
	if existing, ok := m.byPair[tradingPair]; ok && existing != exchangeSymbol {
		return fmt.Errorf("pair %q already mapped to %q", tradingPair, existing)
	}

	m.byExchange[exchangeSymbol] = tradingPair
	m.byPair[tradingPair] = exchangeSymbol
	return nil
}

// PairFor returns the trading pair for an exchange symbol.
func (m *Map) PairFor(exchangeSymbol string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pair, ok := m.byExchange[exchangeSymbol]
	return pair, ok
}

// SymbolFor returns the exchange symbol for a trading pair.
func (m *Map) SymbolFor(tradingPair string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	symbol, ok := m.byPair[tradingPair]
	return symbol, ok
}

// Len returns the number of associations.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byExchange)
}

// Ready reports whether the map has been initialized.
func (m *Map) Ready() bool {
	return m.Len() > 0
}

// Pairs returns all known trading pairs.
func (m *Map) Pairs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pairs := make([]string, 0, len(m.byPair))
	for p := range m.byPair {
		pairs = append(pairs, p)
	}
	return pairs
}

// CombinePair builds the canonical pair notation from base and quote assets.
func CombinePair(base, quote string) string {
	return strings.ToUpper(base) + "-" + strings.ToUpper(quote)
}

// SplitPair splits canonical pair notation into base and quote assets.
func SplitPair(pair string) (base, quote string, err error) {
	parts := strings.Split(pair, "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed trading pair %q", pair)
	}
	return parts[0], parts[1], nil
}
