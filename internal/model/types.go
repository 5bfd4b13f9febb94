package model

import (
	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Reference Types
// -----------------------------------------------------------------------------

// Instrument statuses as normalized from the exchange.
const (
	StatusTrading  = "trading"
	StatusHalted   = "halted"
	StatusDelisted = "delisted"
)

// Instrument represents a tradeable instrument on the exchange.
type Instrument struct {
	Symbol        string // Exchange symbol (e.g., "BTC_USDT")
	TradingPair   string // Canonical pair notation (e.g., "BTC-USDT")
	BaseAsset     string
	QuoteAsset    string
	Status        string          // trading, halted, delisted
	PriceStep     decimal.Decimal // Minimum price increment
	SizeStep      decimal.Decimal // Minimum size increment
	MinOrderSize  decimal.Decimal
	LastPrice     decimal.Decimal
	Volume24h     decimal.Decimal
	ListedTS      int64 // Listing time (µs since epoch)
	DelistedTS    int64 // Delisting time, 0 if still listed
	UpdatedAt     int64 // Last update (µs since epoch)
}

// IsTrading reports whether the instrument is open for trading.
func (i Instrument) IsTrading() bool {
	return i.Status == StatusTrading
}

// -----------------------------------------------------------------------------
// Time-Series Types
// -----------------------------------------------------------------------------

// Trade represents an executed trade on the public feed.
type Trade struct {
	TradeID    string          // Exchange trade ID (unique per instrument)
	ExchangeTS int64           // Exchange server timestamp (µs since epoch)
	ReceivedAt int64           // Gatherer receive timestamp (µs since epoch)
	Symbol     string          // Exchange symbol
	Price      decimal.Decimal // Execution price
	Size       decimal.Decimal // Executed base quantity
	TakerBuy   bool            // true = taker bought, false = taker sold
	Seq        int64           // Feed sequence number (per-subscription)
}

// BookLevel represents a single price level in an order book.
type BookLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// BookDelta represents a change to the order book at one price level.
// A Size of zero removes the level.
type BookDelta struct {
	ExchangeTS int64           // Exchange server timestamp (µs since epoch)
	ReceivedAt int64           // Gatherer receive timestamp (µs since epoch)
	Symbol     string          // Exchange symbol
	Bid        bool            // true = bid side, false = ask side
	Price      decimal.Decimal // Price level
	Size       decimal.Decimal // New absolute size at this level
	UpdateID   int64           // Exchange book update ID (monotonic per instrument)
	Seq        int64           // Feed sequence number (per-subscription)
}

// BookSnapshot represents a full order book state at a point in time.
type BookSnapshot struct {
	SnapshotTS int64       // Snapshot timestamp (µs since epoch)
	ExchangeTS int64       // Exchange server timestamp, 0 if not provided
	Symbol     string      // Exchange symbol
	Source     string      // "ws" or "rest"
	UpdateID   int64       // Last book update ID covered by this snapshot
	Bids       []BookLevel // Sorted best (highest) first
	Asks       []BookLevel // Sorted best (lowest) first
}

// BestBid returns the top bid level, or false if the book is empty.
func (s BookSnapshot) BestBid() (BookLevel, bool) {
	if len(s.Bids) == 0 {
		return BookLevel{}, false
	}
	return s.Bids[0], true
}

// BestAsk returns the top ask level, or false if the book is empty.
func (s BookSnapshot) BestAsk() (BookLevel, bool) {
	if len(s.Asks) == 0 {
		return BookLevel{}, false
	}
	return s.Asks[0], true
}

// Ticker represents a rolling market statistics update.
type Ticker struct {
	ExchangeTS int64           // Exchange server timestamp (µs since epoch)
	ReceivedAt int64           // Gatherer receive timestamp (µs since epoch)
	Symbol     string          // Exchange symbol
	BestBid    decimal.Decimal // Best bid price
	BestAsk    decimal.Decimal // Best ask price
	LastPrice  decimal.Decimal // Last trade price
	Volume24h  decimal.Decimal // 24h base volume
	QuoteVol   decimal.Decimal // 24h quote volume
	High24h    decimal.Decimal
	Low24h     decimal.Decimal
}
