package router

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradeweave/marketdata/internal/metrics"
	"github.com/tradeweave/marketdata/internal/model"
)

// Config holds configuration for the message router.
type Config struct {
	// Output buffer sizes
	BookBufferSize   int // Default: 5000
	TradeBufferSize  int // Default: 1000
	TickerBufferSize int // Default: 1000

	// Metrics receives parse-error counts and buffer depths when set.
	Metrics *metrics.Registry
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		BookBufferSize:   5000,
		TradeBufferSize:  1000,
		TickerBufferSize: 1000,
	}
}

// BookMsg represents either a snapshot or delta message.
// Type field indicates which: "snapshot" or "delta".
type BookMsg struct {
	Type string // "snapshot" or "delta"

	// Common fields
	Symbol     string
	SubID      int64
	Seq        int64
	UpdateID   int64
	ExchangeTS int64 // Microseconds
	ReceivedAt time.Time
	SeqGap     bool
	GapSize    int

	// Snapshot-only fields (empty for delta)
	Bids []model.BookLevel
	Asks []model.BookLevel

	// Delta-only fields (zero for snapshot)
	Bid   bool // true = bid side, false = ask side
	Price decimal.Decimal
	Size  decimal.Decimal // New absolute size, zero removes the level
}

// TradeMsg represents a trade message from the feed.
type TradeMsg struct {
	Symbol     string
	TradeID    string
	Price      decimal.Decimal
	Size       decimal.Decimal
	TakerBuy   bool
	SubID      int64
	Seq        int64
	ExchangeTS int64 // Microseconds
	ReceivedAt time.Time
	SeqGap     bool
	GapSize    int
}

// TickerMsg represents a ticker update message from the feed.
type TickerMsg struct {
	Symbol     string
	LastPrice  decimal.Decimal
	BestBid    decimal.Decimal
	BestAsk    decimal.Decimal
	Volume24h  decimal.Decimal
	SubID      int64
	ExchangeTS int64 // Microseconds
	ReceivedAt time.Time
	// Note: ticker messages have no Seq field
}

// Wire types for JSON parsing

// messageEnvelope extracts the routing fields of a data frame.
type messageEnvelope struct {
	Type  string          `json:"type"`
	SubID int64           `json:"sub_id"`
	Seq   int64           `json:"seq"`
	Data  json.RawMessage `json:"data"`
}

// bookSnapshotWire is the wire format of a book.snapshot data payload.
type bookSnapshotWire struct {
	Symbol   string      `json:"symbol"`
	UpdateID int64       `json:"update_id"`
	Bids     [][2]string `json:"bids"` // [price, size] decimal strings, best first
	Asks     [][2]string `json:"asks"`
	Ts       int64       `json:"ts"` // milliseconds
}

// bookDeltaWire is the wire format of a book.delta data payload.
type bookDeltaWire struct {
	Symbol   string `json:"symbol"`
	Side     string `json:"side"` // "bid" or "ask"
	Price    string `json:"price"`
	Size     string `json:"size"` // absolute size, "0" removes the level
	UpdateID int64  `json:"update_id"`
	Ts       int64  `json:"ts"` // milliseconds
}

// tradeWire is the wire format of a trade data payload.
type tradeWire struct {
	Symbol    string `json:"symbol"`
	TradeID   string `json:"trade_id"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	TakerSide string `json:"taker_side"` // "buy" or "sell"
	Ts        int64  `json:"ts"`         // milliseconds
}

// tickerWire is the wire format of a ticker data payload.
type tickerWire struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"last_price"`
	BestBid   string `json:"best_bid"`
	BestAsk   string `json:"best_ask"`
	Volume24h string `json:"volume_24h"`
	Ts        int64  `json:"ts"` // milliseconds
}
