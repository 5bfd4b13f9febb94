package writer

import (
	"time"

	"github.com/tradeweave/marketdata/internal/metrics"
)

// WriterConfig contains configuration for batch writers.
type WriterConfig struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration

	// Metrics receives flush, insert, and gap counters when set.
	Metrics *metrics.Registry
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     1000,
		FlushInterval: 5 * time.Second,
	}
}

// tradeRow represents a row to be inserted into the trades table.
type tradeRow struct {
	TradeID    string
	ExchangeTS int64 // Microseconds
	ReceivedAt int64 // Microseconds
	Symbol     string
	Price      string // Decimal string, bound to NUMERIC
	Size       string
	TakerBuy   bool
	Seq        int64
	SubID      int64
}

// bookDeltaRow represents a row for the book_deltas table.
type bookDeltaRow struct {
	ExchangeTS int64
	ReceivedAt int64
	Symbol     string
	Bid        bool // TRUE = bid side, FALSE = ask side
	Price      string
	Size       string // New absolute size, "0" removes the level
	UpdateID   int64
	Seq        int64
	SubID      int64
}

// bookSnapshotRow represents a row for the book_snapshots table.
type bookSnapshotRow struct {
	SnapshotTS int64
	ExchangeTS int64 // 0 when the exchange did not stamp the snapshot
	Symbol     string
	Source     string // "ws" or "rest"
	UpdateID   int64
	Bids       []byte // JSONB: [{price: string, size: string}, ...]
	Asks       []byte // JSONB
	BestBid    string
	BestAsk    string
	Spread     string
	SubID      int64
}

// tickerRow represents a row for the tickers table.
type tickerRow struct {
	ExchangeTS int64
	ReceivedAt int64
	Symbol     string
	LastPrice  string
	BestBid    string
	BestAsk    string
	Volume24h  string
	SubID      int64
}

// WriterMetrics holds metrics for a writer.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
	SeqGaps   int64
}
