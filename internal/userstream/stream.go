// Package userstream maintains the authenticated user data stream: it
// acquires a listen key over REST, keeps it alive, and demultiplexes
// order and balance events from the private WebSocket feed.
package userstream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/tradeweave/marketdata/internal/api"
	"github.com/tradeweave/marketdata/internal/auth"
	"github.com/tradeweave/marketdata/internal/connection"
	"github.com/tradeweave/marketdata/internal/model"
)

// Config holds user stream configuration.
type Config struct {
	WSURL             string        // Private feed WebSocket URL
	KeepAliveInterval time.Duration // Listen key keepalive cadence
	ReconnectDelay    time.Duration // Fixed wait between reconnect attempts
	BufferSize        int           // Event channel buffer size
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		KeepAliveInterval: 30 * time.Minute,
		ReconnectDelay:    5 * time.Second,
		BufferSize:        1000,
	}
}

// Stream owns the user data stream connection and its listen key.
type Stream struct {
	cfg    Config
	rest   *api.Client
	creds  *auth.Credentials
	logger *slog.Logger

	events chan model.UserEvent
	orders *OrderTracker

	mu         sync.Mutex
	listenKey  string
	client     connection.Client
	lastRecvAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStream creates a user data stream.
func NewStream(cfg Config, rest *api.Client, creds *auth.Credentials, logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}

	return &Stream{
		cfg:    cfg,
		rest:   rest,
		creds:  creds,
		logger: logger,
		events: make(chan model.UserEvent, cfg.BufferSize),
		orders: NewOrderTracker(),
	}
}

// Events returns the demultiplexed user event channel.
func (s *Stream) Events() <-chan model.UserEvent {
	return s.events
}

// Orders returns the in-flight order tracker fed by this stream.
func (s *Stream) Orders() *OrderTracker {
	return s.orders
}

// ListenKey returns the current listen key.
func (s *Stream) ListenKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listenKey
}

// Start acquires a listen key and begins streaming. It returns after the
// key is acquired; the connection itself is managed in the background.
func (s *Stream) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if err := s.acquireListenKey(s.ctx); err != nil {
		s.cancel()
		return err
	}

	s.wg.Add(2)
	go s.runLoop()
	go s.keepAliveLoop()

	s.logger.Info("user stream started")
	return nil
}

// Stop closes the connection and revokes the listen key.
func (s *Stream) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	s.mu.Lock()
	client := s.client
	key := s.listenKey
	s.mu.Unlock()

	if client != nil {
		client.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if key != "" {
		if err := s.rest.DeleteListenKey(ctx, key); err != nil {
			s.logger.Warn("failed to delete listen key", "error", err)
		}
	}

	close(s.events)
	s.logger.Info("user stream stopped")
	return nil
}

// LastReceivedAt returns the time of the last user stream message.
func (s *Stream) LastReceivedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRecvAt
}

// acquireListenKey creates a fresh listen key over REST.
func (s *Stream) acquireListenKey(ctx context.Context) error {
	resp, err := s.rest.CreateListenKey(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listenKey = resp.ListenKey
	s.mu.Unlock()

	s.logger.Info("listen key acquired", "expires_at", resp.ExpiresAt)
	return nil
}

// runLoop keeps the WebSocket connected. Unlike the public feed pool,
// reconnects here use a fixed delay and a fresh listen key.
func (s *Stream) runLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		if err := s.connectAndConsume(); err != nil {
			s.logger.Warn("user stream disconnected", "error", err)
		}

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(s.cfg.ReconnectDelay):
		}

		// The old key may have expired while disconnected.
		if err := s.acquireListenKey(s.ctx); err != nil {
			s.logger.Error("failed to renew listen key", "error", err)
		}
	}
}

// connectAndConsume dials the private feed and consumes it until the
// connection drops.
func (s *Stream) connectAndConsume() error {
	s.mu.Lock()
	key := s.listenKey
	s.mu.Unlock()

	wsURL := s.cfg.WSURL + "?listen_key=" + url.QueryEscape(key)

	headers := http.Header{}
	for k, v := range s.creds.SignWebSocket() {
		headers.Set(k, v)
	}

	cfg := connection.DefaultClientConfig(wsURL)
	cfg.Headers = headers
	cfg.BufferSize = s.cfg.BufferSize

	client := connection.NewClient(cfg, s.logger.With("stream", "user"))
	if err := client.Connect(s.ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()

	defer client.Close()

	for {
		select {
		case <-s.ctx.Done():
			return nil
		case err := <-client.Errors():
			return err
		case msg, ok := <-client.Messages():
			if !ok {
				return nil
			}
			s.handleMessage(msg)
		}
	}
}

// keepAliveLoop pings the listen key on a fixed cadence. A failed
// keepalive forces a reconnect, which acquires a fresh key.
func (s *Stream) keepAliveLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			key := s.listenKey
			client := s.client
			s.mu.Unlock()

			if key == "" {
				continue
			}

			if err := s.rest.KeepAliveListenKey(s.ctx, key); err != nil {
				s.logger.Warn("listen key keepalive failed, forcing reconnect", "error", err)
				if client != nil {
					client.Close()
				}
				continue
			}

			s.logger.Debug("listen key kept alive")
		}
	}
}

// eventEnvelope is the wire envelope of a user stream frame.
type eventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// orderUpdateWire is the wire format of an order.update payload.
type orderUpdateWire struct {
	ClientOrderID string `json:"client_order_id"`
	OrderID       string `json:"order_id"`
	Symbol        string `json:"symbol"`
	Status        string `json:"status"`
	FilledSize    string `json:"filled_size"`
	AvgFillPrice  string `json:"avg_fill_price"`
	Ts            int64  `json:"ts"` // milliseconds
}

// balanceUpdateWire is the wire format of a balance.update payload.
type balanceUpdateWire struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
	Ts     int64  `json:"ts"` // milliseconds
}

// handleMessage parses and demultiplexes a single user stream frame.
func (s *Stream) handleMessage(msg connection.TimestampedMessage) {
	s.mu.Lock()
	s.lastRecvAt = msg.ReceivedAt
	s.mu.Unlock()

	var env eventEnvelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		s.logger.Warn("unparseable user stream message", "error", err)
		return
	}

	switch env.Type {
	case "order.update":
		var wire orderUpdateWire
		if err := json.Unmarshal(env.Data, &wire); err != nil {
			s.logger.Warn("unparseable order update", "error", err)
			return
		}

		update := model.OrderUpdate{
			ClientOrderID:   wire.ClientOrderID,
			ExchangeOrderID: wire.OrderID,
			Symbol:          wire.Symbol,
			State:           parseOrderState(wire.Status),
			FilledSize:      api.ParseDecimal(wire.FilledSize),
			AvgFillPrice:    api.ParseDecimal(wire.AvgFillPrice),
			ExchangeTS:      api.MillisToMicro(wire.Ts),
			ReceivedAt:      msg.ReceivedAt.UnixMicro(),
		}

		s.orders.ApplyUpdate(update)
		s.emit(model.UserEvent{Type: model.EventOrderUpdate, Order: &update})

	case "balance.update":
		var wire balanceUpdateWire
		if err := json.Unmarshal(env.Data, &wire); err != nil {
			s.logger.Warn("unparseable balance update", "error", err)
			return
		}

		update := model.BalanceUpdate{
			Asset:      wire.Asset,
			Free:       api.ParseDecimal(wire.Free),
			Locked:     api.ParseDecimal(wire.Locked),
			ExchangeTS: api.MillisToMicro(wire.Ts),
			ReceivedAt: msg.ReceivedAt.UnixMicro(),
		}

		s.emit(model.UserEvent{Type: model.EventBalanceUpdate, Balance: &update})

	default:
		s.logger.Debug("skipping user stream message type", "type", env.Type)
	}
}

// emit delivers an event without blocking the read loop.
func (s *Stream) emit(ev model.UserEvent) {
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("user event buffer full, dropping event", "type", ev.Type)
	}
}

// parseOrderState normalizes exchange order statuses.
func parseOrderState(status string) model.OrderState {
	switch status {
	case "new", "open":
		return model.OrderOpen
	case "partially_filled":
		return model.OrderPartiallyFilled
	case "filled":
		return model.OrderFilled
	case "canceled", "cancelled":
		return model.OrderCancelled
	case "rejected", "expired":
		return model.OrderFailed
	default:
		return model.OrderPending
	}
}
