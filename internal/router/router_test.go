package router

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/tradeweave/marketdata/internal/connection"
	"github.com/tradeweave/marketdata/internal/metrics"
)

func startTestRouter(t *testing.T) (Router, chan connection.RawMessage) {
	t.Helper()

	input := make(chan connection.RawMessage, 100)
	r := NewRouter(DefaultConfig(), input, nil)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		r.Stop(ctx)
	})

	return r, input
}

func rawMsg(data string) connection.RawMessage {
	return connection.RawMessage{
		Data:       []byte(data),
		ConnID:     1,
		ReceivedAt: time.Now(),
	}
}

// receive polls a growable buffer until an item arrives.
func receive[T any](t *testing.T, buf *GrowableBuffer[T]) T {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if item, ok := buf.TryReceive(); ok {
			return item
		}
		time.Sleep(time.Millisecond)
	}

	t.Fatal("timed out waiting for routed message")
	var zero T
	return zero
}

func TestRouter_RoutesBookSnapshot(t *testing.T) {
	r, input := startTestRouter(t)

	input <- rawMsg(`{
		"type": "book.snapshot",
		"sub_id": 7,
		"seq": 1,
		"data": {
			"symbol": "BTC_USDT",
			"update_id": 1000,
			"bids": [["50000.5", "0.25"], ["50000.0", "1.0"]],
			"asks": [["50001.0", "0.5"]],
			"ts": 1756200000000
		}
	}`)

	msg := receive(t, r.Buffers().Book)

	if msg.Type != "snapshot" {
		t.Errorf("expected snapshot, got %q", msg.Type)
	}
	if msg.Symbol != "BTC_USDT" {
		t.Errorf("unexpected symbol %q", msg.Symbol)
	}
	if msg.SubID != 7 || msg.Seq != 1 {
		t.Errorf("unexpected sub_id/seq: %d/%d", msg.SubID, msg.Seq)
	}
	if msg.UpdateID != 1000 {
		t.Errorf("unexpected update_id %d", msg.UpdateID)
	}
	if len(msg.Bids) != 2 || len(msg.Asks) != 1 {
		t.Fatalf("unexpected level counts: %d bids, %d asks", len(msg.Bids), len(msg.Asks))
	}
	if !msg.Bids[0].Price.Equal(decimal.RequireFromString("50000.5")) {
		t.Errorf("unexpected best bid price %s", msg.Bids[0].Price)
	}
	if msg.ExchangeTS != 1756200000000*1000 {
		t.Errorf("unexpected exchange ts %d", msg.ExchangeTS)
	}
}

func TestRouter_RoutesBookDelta(t *testing.T) {
	r, input := startTestRouter(t)

	raw := rawMsg(`{
		"type": "book.delta",
		"sub_id": 7,
		"seq": 2,
		"data": {
			"symbol": "BTC_USDT",
			"side": "ask",
			"price": "50001.0",
			"size": "0",
			"update_id": 1001,
			"ts": 1756200000100
		}
	}`)
	raw.SeqGap = true
	raw.GapSize = 3
	input <- raw

	msg := receive(t, r.Buffers().Book)

	if msg.Type != "delta" {
		t.Errorf("expected delta, got %q", msg.Type)
	}
	if msg.Bid {
		t.Error("expected ask side")
	}
	if !msg.Size.IsZero() {
		t.Errorf("expected zero size (level removal), got %s", msg.Size)
	}
	if !msg.SeqGap || msg.GapSize != 3 {
		t.Errorf("gap flags not propagated: %v/%d", msg.SeqGap, msg.GapSize)
	}
}

func TestRouter_RoutesTrade(t *testing.T) {
	r, input := startTestRouter(t)

	input <- rawMsg(`{
		"type": "trade",
		"sub_id": 3,
		"seq": 42,
		"data": {
			"symbol": "ETH_USDT",
			"trade_id": "t-981",
			"price": "2500.75",
			"size": "1.5",
			"taker_side": "sell",
			"ts": 1756200000200
		}
	}`)

	msg := receive(t, r.Buffers().Trade)

	if msg.TradeID != "t-981" {
		t.Errorf("unexpected trade id %q", msg.TradeID)
	}
	if msg.TakerBuy {
		t.Error("expected taker sell")
	}
	if !msg.Price.Equal(decimal.RequireFromString("2500.75")) {
		t.Errorf("unexpected price %s", msg.Price)
	}
	if !msg.Size.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("unexpected size %s", msg.Size)
	}
}

func TestRouter_RoutesTicker(t *testing.T) {
	r, input := startTestRouter(t)

	input <- rawMsg(`{
		"type": "ticker",
		"sub_id": 5,
		"data": {
			"symbol": "BTC_USDT",
			"last_price": "50000.5",
			"best_bid": "50000.0",
			"best_ask": "50001.0",
			"volume_24h": "1234.56",
			"ts": 1756200000300
		}
	}`)

	msg := receive(t, r.Buffers().Ticker)

	if msg.Symbol != "BTC_USDT" {
		t.Errorf("unexpected symbol %q", msg.Symbol)
	}
	if !msg.BestBid.Equal(decimal.RequireFromString("50000.0")) {
		t.Errorf("unexpected best bid %s", msg.BestBid)
	}
	if !msg.Volume24h.Equal(decimal.RequireFromString("1234.56")) {
		t.Errorf("unexpected volume %s", msg.Volume24h)
	}
}

func TestRouter_CountsParseErrors(t *testing.T) {
	r, input := startTestRouter(t)

	input <- rawMsg(`{not json`)
	input <- rawMsg(`{"type": "something_else", "data": {}}`)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		stats := r.Stats()
		if stats.ParseErrors == 1 && stats.UnknownMessages == 1 {
			if stats.MessagesReceived != 2 {
				t.Errorf("expected 2 received, got %d", stats.MessagesReceived)
			}
			if stats.MessagesRouted != 0 {
				t.Errorf("expected 0 routed, got %d", stats.MessagesRouted)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}

	t.Fatalf("stats never converged: %+v", r.Stats())
}

func TestRouter_PrometheusCounters(t *testing.T) {
	prom := metrics.NewRegistry()
	cfg := DefaultConfig()
	cfg.Metrics = prom

	input := make(chan connection.RawMessage, 100)
	r := NewRouter(cfg, input, nil)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		r.Stop(ctx)
	})

	input <- rawMsg(`{not json`)
	input <- rawMsg(`{
		"type": "trade",
		"sub_id": 3,
		"seq": 1,
		"data": {"symbol": "BTC_USDT", "trade_id": "t1", "price": "100", "size": "1", "taker_side": "buy", "ts": 1756200000000}
	}`)

	receive(t, r.Buffers().Trade)

	if got := testutil.ToFloat64(prom.WSParseErrors.WithLabelValues("envelope")); got != 1 {
		t.Errorf("expected 1 envelope parse error, got %v", got)
	}
	// The trade was routed but not yet consumed when the gauge was set.
	if got := testutil.ToFloat64(prom.BufferDepth.WithLabelValues("trade")); got != 1 {
		t.Errorf("expected trade buffer depth 1, got %v", got)
	}
	if got := testutil.ToFloat64(prom.BufferDepth.WithLabelValues("book")); got != 0 {
		t.Errorf("expected book buffer depth 0, got %v", got)
	}
}

func TestRouter_StopClosesBuffers(t *testing.T) {
	input := make(chan connection.RawMessage)
	r := NewRouter(DefaultConfig(), input, nil)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if _, ok := r.Buffers().Trade.Receive(); ok {
		t.Error("expected closed trade buffer")
	}
}
