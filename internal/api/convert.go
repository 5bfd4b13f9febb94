package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradeweave/marketdata/internal/model"
	"github.com/tradeweave/marketdata/internal/symbols"
)

// ParseDecimal parses a decimal string, returning zero for empty or
// invalid input. Exchange payloads routinely omit optional numeric fields.
func ParseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ParseTimestamp parses an ISO 8601 timestamp to microseconds since epoch.
// Returns 0 for empty or invalid input.
func ParseTimestamp(iso string) int64 {
	if iso == "" {
		return 0
	}

	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		// Try without timezone
		t, err = time.Parse("2006-01-02T15:04:05", iso)
		if err != nil {
			return 0
		}
	}

	return t.UnixMicro()
}

// MillisToMicro converts a millisecond epoch timestamp to microseconds.
func MillisToMicro(ms int64) int64 {
	return ms * 1000
}

// NowMicro returns the current time in microseconds since epoch.
func NowMicro() int64 {
	return time.Now().UnixMicro()
}

// ToModel converts an APIInstrument to model.Instrument.
func (i *APIInstrument) ToModel() model.Instrument {
	return model.Instrument{
		Symbol:       i.Symbol,
		TradingPair:  symbols.CombinePair(i.BaseAsset, i.QuoteAsset),
		BaseAsset:    i.BaseAsset,
		QuoteAsset:   i.QuoteAsset,
		Status:       i.Status,
		PriceStep:    ParseDecimal(i.PriceStep),
		SizeStep:     ParseDecimal(i.SizeStep),
		MinOrderSize: ParseDecimal(i.MinOrderSize),
		LastPrice:    ParseDecimal(i.LastPrice),
		Volume24h:    ParseDecimal(i.Volume24h),
		ListedTS:     ParseTimestamp(i.ListedTime),
		DelistedTS:   ParseTimestamp(i.DelistedTime),
		UpdatedAt:    NowMicro(),
	}
}

// ToModel converts an APITicker to model.Ticker.
func (t *APITicker) ToModel() model.Ticker {
	return model.Ticker{
		ExchangeTS: MillisToMicro(t.Ts),
		ReceivedAt: NowMicro(),
		Symbol:     t.Symbol,
		BestBid:    ParseDecimal(t.BestBid),
		BestAsk:    ParseDecimal(t.BestAsk),
		LastPrice:  ParseDecimal(t.LastPrice),
		Volume24h:  ParseDecimal(t.Volume24h),
	}
}

// ToBookSnapshot converts a BookResponse to model.BookSnapshot.
func (b *BookResponse) ToBookSnapshot(source string) model.BookSnapshot {
	return model.BookSnapshot{
		SnapshotTS: NowMicro(),
		ExchangeTS: MillisToMicro(b.Ts),
		Symbol:     b.Symbol,
		Source:     source,
		UpdateID:   b.UpdateID,
		Bids:       parseLevels(b.Bids),
		Asks:       parseLevels(b.Asks),
	}
}

// parseLevels converts [["42000.5","1.25"], ...] to []model.BookLevel.
func parseLevels(raw [][2]string) []model.BookLevel {
	levels := make([]model.BookLevel, 0, len(raw))
	for _, l := range raw {
		levels = append(levels, model.BookLevel{
			Price: ParseDecimal(l[0]),
			Size:  ParseDecimal(l[1]),
		})
	}
	return levels
}
