package writer

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/tradeweave/marketdata/internal/model"
)

// numeric renders a decimal for binding against a NUMERIC column.
// pgx encodes plain strings as text, which Postgres casts losslessly.
func numeric(d decimal.Decimal) string {
	return d.String()
}

// bookLevelJSON represents a price level in JSONB format. Prices and
// sizes stay as decimal strings so no precision is lost in storage.
type bookLevelJSON struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// levelsToJSONB converts model.BookLevel slice to JSONB bytes.
func levelsToJSONB(levels []model.BookLevel) []byte {
	result := make([]bookLevelJSON, len(levels))
	for i, level := range levels {
		result[i] = bookLevelJSON{
			Price: level.Price.String(),
			Size:  level.Size.String(),
		}
	}
	data, _ := json.Marshal(result)
	return data
}

// bestPrice returns the price of the first level, or "0" for an empty side.
func bestPrice(levels []model.BookLevel) string {
	if len(levels) == 0 {
		return "0"
	}
	return levels[0].Price.String()
}

// spreadOf computes best ask minus best bid, or "0" when either side is empty.
func spreadOf(bids, asks []model.BookLevel) string {
	if len(bids) == 0 || len(asks) == 0 {
		return "0"
	}
	return asks[0].Price.Sub(bids[0].Price).String()
}
