package writer

import (
	"context"
	"testing"
	"time"

	"github.com/tradeweave/marketdata/internal/router"
)

func TestTickerWriter_Transform(t *testing.T) {
	cfg := DefaultWriterConfig()
	input := router.NewGrowableBuffer[router.TickerMsg](10)
	w := NewTickerWriter(cfg, input, nil, nil)

	receivedAt := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	msg := router.TickerMsg{
		Symbol:     "BTC-USDT",
		LastPrice:  dec("42100.5"),
		BestBid:    dec("42100.0"),
		BestAsk:    dec("42101.0"),
		Volume24h:  dec("1523.75"),
		SubID:      12,
		ExchangeTS: 1741608000000000,
		ReceivedAt: receivedAt,
	}

	row := w.transform(msg)

	if row.Symbol != "BTC-USDT" {
		t.Errorf("Symbol = %s, want BTC-USDT", row.Symbol)
	}
	if row.LastPrice != "42100.5" {
		t.Errorf("LastPrice = %s, want 42100.5", row.LastPrice)
	}
	if row.BestBid != "42100" {
		t.Errorf("BestBid = %s, want 42100", row.BestBid)
	}
	if row.BestAsk != "42101" {
		t.Errorf("BestAsk = %s, want 42101", row.BestAsk)
	}
	if row.Volume24h != "1523.75" {
		t.Errorf("Volume24h = %s, want 1523.75", row.Volume24h)
	}
	if row.ExchangeTS != 1741608000000000 {
		t.Errorf("ExchangeTS = %d, want 1741608000000000", row.ExchangeTS)
	}
	if row.ReceivedAt != receivedAt.UnixMicro() {
		t.Errorf("ReceivedAt = %d, want %d", row.ReceivedAt, receivedAt.UnixMicro())
	}
	if row.SubID != 12 {
		t.Errorf("SubID = %d, want 12", row.SubID)
	}
}

func TestTickerWriter_HandleMessage_AddsToBatch(t *testing.T) {
	cfg := WriterConfig{
		BatchSize:     100,
		FlushInterval: time.Hour,
	}
	input := router.NewGrowableBuffer[router.TickerMsg](10)
	w := NewTickerWriter(cfg, input, nil, nil)

	w.handleMessage(router.TickerMsg{
		Symbol:     "ETH-USDT",
		LastPrice:  dec("1850"),
		ReceivedAt: time.Now(),
	})

	w.batchMu.Lock()
	batchLen := len(w.batch)
	w.batchMu.Unlock()

	if batchLen != 1 {
		t.Errorf("batch length = %d, want 1", batchLen)
	}
}

func TestTickerWriter_Lifecycle(t *testing.T) {
	cfg := WriterConfig{
		BatchSize:     10,
		FlushInterval: 100 * time.Millisecond,
	}
	input := router.NewGrowableBuffer[router.TickerMsg](10)
	w := NewTickerWriter(cfg, input, nil, nil)

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := w.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestTickerWriter_Stats(t *testing.T) {
	cfg := DefaultWriterConfig()
	input := router.NewGrowableBuffer[router.TickerMsg](10)
	w := NewTickerWriter(cfg, input, nil, nil)

	stats := w.Stats()

	if stats.Inserts != 0 {
		t.Errorf("initial Inserts = %d, want 0", stats.Inserts)
	}
	if stats.Flushes != 0 {
		t.Errorf("initial Flushes = %d, want 0", stats.Flushes)
	}
}
