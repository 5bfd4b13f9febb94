// Package market maintains the instrument registry: the set of tradeable
// instruments discovered over REST, kept fresh by periodic reconciliation.
package market

import (
	"context"

	"github.com/tradeweave/marketdata/internal/model"
	"github.com/tradeweave/marketdata/internal/symbols"
)

// ChangeBufferSize is the capacity of the ChangeEvent channel.
const ChangeBufferSize = 1000

// ChangeType classifies an instrument state transition.
type ChangeType string

const (
	// ChangeListed fires when an instrument becomes tradeable for the
	// first time, including the initial sync.
	ChangeListed ChangeType = "listed"

	// ChangeStatusChanged fires on any status transition that keeps the
	// instrument listed (e.g. trading -> halted).
	ChangeStatusChanged ChangeType = "status_change"

	// ChangeDelisted fires when an instrument is removed from the
	// exchange or marked delisted.
	ChangeDelisted ChangeType = "delisted"
)

// Registry manages instrument discovery and lifecycle.
type Registry interface {
	// Start performs a blocking initial sync, then begins background
	// reconciliation. Emits ChangeEvents as instruments appear and change.
	Start(ctx context.Context) error

	// Stop gracefully shuts down.
	Stop(ctx context.Context) error

	// ActiveInstruments returns all instruments currently open for trading.
	ActiveInstruments() []model.Instrument

	// ActiveSymbols returns the symbols of all trading instruments.
	ActiveSymbols() []string

	// Instrument returns a specific instrument by symbol.
	Instrument(symbol string) (model.Instrument, bool)

	// Symbols returns the exchange symbol <-> trading pair map,
	// populated from the instruments sync.
	Symbols() *symbols.Map

	// Changes returns a channel of instrument state changes. The
	// connection manager uses this to adjust subscriptions.
	Changes() <-chan ChangeEvent
}

// ChangeEvent represents an instrument state transition.
type ChangeEvent struct {
	Type       ChangeType
	Symbol     string
	OldStatus  string // Previous status, empty for listed
	Instrument model.Instrument
}
