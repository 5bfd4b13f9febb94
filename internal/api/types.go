package api

// ServerTimeResponse from GET /time
type ServerTimeResponse struct {
	ServerTime int64 `json:"server_time"` // milliseconds since epoch
}

// ExchangeStatusResponse from GET /status
type ExchangeStatusResponse struct {
	ExchangeActive      bool   `json:"exchange_active"`
	TradingActive       bool   `json:"trading_active"`
	EstimatedResumeTime string `json:"estimated_resume_time,omitempty"`
}

// InstrumentsResponse from GET /instruments
type InstrumentsResponse struct {
	Instruments []APIInstrument `json:"instruments"`
	Cursor      string          `json:"cursor"`
}

// APIInstrument represents an instrument from the exchange API.
type APIInstrument struct {
	Symbol     string `json:"symbol"`
	BaseAsset  string `json:"base_asset"`
	QuoteAsset string `json:"quote_asset"`
	Status     string `json:"status"` // trading, halted, delisted

	// Precision / limits as decimal strings
	PriceStep    string `json:"price_step"`
	SizeStep     string `json:"size_step"`
	MinOrderSize string `json:"min_order_size"`

	// Rolling stats as decimal strings
	LastPrice string `json:"last_price"`
	Volume24h string `json:"volume_24h"`

	// Timestamps (ISO 8601)
	ListedTime   string `json:"listed_time"`
	DelistedTime string `json:"delisted_time,omitempty"`
}

// SingleInstrumentResponse from GET /instruments/{symbol}
type SingleInstrumentResponse struct {
	Instrument APIInstrument `json:"instrument"`
}

// BookResponse from GET /instruments/{symbol}/book
type BookResponse struct {
	Symbol   string      `json:"symbol"`
	UpdateID int64       `json:"update_id"`
	Bids     [][2]string `json:"bids"` // [price, size] decimal strings, best first
	Asks     [][2]string `json:"asks"`
	Ts       int64       `json:"ts"` // milliseconds since epoch, 0 if omitted
}

// TickersResponse from GET /tickers
type TickersResponse struct {
	Tickers []APITicker `json:"tickers"`
}

// APITicker represents a ticker entry from the exchange API.
type APITicker struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"last_price"`
	BestBid   string `json:"best_bid"`
	BestAsk   string `json:"best_ask"`
	Volume24h string `json:"volume_24h"`
	Ts        int64  `json:"ts"`
}

// ListenKeyResponse from POST /userDataStream
type ListenKeyResponse struct {
	ListenKey string `json:"listen_key"`
	ExpiresAt int64  `json:"expires_at"` // milliseconds since epoch
}

// GetInstrumentsOptions configures a GetInstruments request.
type GetInstrumentsOptions struct {
	Limit   int
	Cursor  string
	Status  string
	Symbols []string
}
