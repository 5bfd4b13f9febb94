package connection

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/tradeweave/marketdata/internal/metrics"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrTimeout         = errors.New("operation timeout")
	ErrAlreadyClosed   = errors.New("already closed")
)

// Channel names on the feed.
const (
	ChannelBook   = "book"
	ChannelTrades = "trades"
	ChannelTicker = "ticker"
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// RawMessage is a message from the connection manager to the message router.
type RawMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ConnID     int       // Which connection this came from
	ReceivedAt time.Time // Local timestamp when the client received the message
	SeqGap     bool      // True if a sequence gap was detected before this message
	GapSize    int       // Number of missed messages (0 if no gap)
}

// Command is a WebSocket command to send to the feed.
type Command struct {
	ID   int64  `json:"id"`
	Op   string `json:"op"` // "subscribe" or "unsubscribe"
	Args any    `json:"args"`
}

// SubscribeArgs are arguments for a subscribe command.
type SubscribeArgs struct {
	Channel string `json:"channel"`
	Symbol  string `json:"symbol,omitempty"` // Empty for global channels
}

// UnsubscribeArgs are arguments for an unsubscribe command.
type UnsubscribeArgs struct {
	SubIDs []int64 `json:"sub_ids"`
}

// Response is a command response from the feed.
type Response struct {
	ID     int64           `json:"id"`
	Type   string          `json:"type"` // "subscribed", "unsubscribed", "error", "ok"
	Result json.RawMessage `json:"result"`
}

// SubscribedResult is the result payload of a "subscribed" response.
type SubscribedResult struct {
	SubID   int64  `json:"sub_id"`
	Channel string `json:"channel"`
}

// ErrorResult is the result payload of an "error" response.
type ErrorResult struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DataMessage is the envelope of a data frame (book, trade, ticker).
type DataMessage struct {
	Type  string          `json:"type"` // "book.snapshot", "book.delta", "trade", "ticker"
	SubID int64           `json:"sub_id"`
	Seq   int64           `json:"seq,omitempty"` // Per-subscription sequence number
	Data  json.RawMessage `json:"data"`
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL          string        // WebSocket URL
	Headers      http.Header   // Extra handshake headers (auth), may be nil
	PingTimeout  time.Duration // Max time without ping before considering connection stale
	WriteTimeout time.Duration // Write deadline for sends
	PingInterval time.Duration // Keepalive ping cadence
	BufferSize   int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(url string) ClientConfig {
	return ClientConfig{
		URL:          url,
		PingTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		PingInterval: 30 * time.Second,
		BufferSize:   100000,
	}
}

// ManagerConfig configures the connection manager.
type ManagerConfig struct {
	WSURL              string        // Feed WebSocket URL
	Headers            http.Header   // Extra handshake headers applied to every connection
	BookCount          int           // Number of book connections in the pool
	PairsPerConnection int           // Soft cap of instruments per book connection
	SubscribeTimeout   time.Duration // Timeout for subscribe commands
	ReconnectBaseWait  time.Duration // Base wait time for reconnection
	ReconnectMaxWait   time.Duration // Max wait time for reconnection
	PingInterval       time.Duration // Keepalive ping cadence
	MessageBufferSize  int           // Buffer size for the output message channel
	WorkerCount        int           // Number of subscribe workers

	// Metrics receives per-connection counters when set.
	Metrics *metrics.Registry
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		BookCount:          4,
		PairsPerConnection: 50,
		SubscribeTimeout:   10 * time.Second,
		ReconnectBaseWait:  1 * time.Second,
		ReconnectMaxWait:   60 * time.Second,
		PingInterval:       30 * time.Second,
		MessageBufferSize:  100000,
		WorkerCount:        4,
	}
}

// ConnectionRole identifies the purpose of a connection.
type ConnectionRole string

const (
	RoleTicker ConnectionRole = "ticker"
	RoleTrade  ConnectionRole = "trade"
	RoleBook   ConnectionRole = "book"
)

// Subscription tracks an active subscription.
type Subscription struct {
	SubID   int64
	Channel string
	ConnID  int
	Symbol  string // Empty for global subscriptions
}
