package book

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tradeweave/marketdata/internal/api"
	"github.com/tradeweave/marketdata/internal/model"
	"github.com/tradeweave/marketdata/internal/router"
)

func snapshotMsg(updateID int64, bids, asks []model.BookLevel) router.BookMsg {
	return router.BookMsg{
		Type:       "snapshot",
		Symbol:     "BTC_USDT",
		UpdateID:   updateID,
		ReceivedAt: time.Now(),
		Bids:       bids,
		Asks:       asks,
	}
}

func deltaMsg(updateID int64, bid bool, price, size string) router.BookMsg {
	return router.BookMsg{
		Type:       "delta",
		Symbol:     "BTC_USDT",
		UpdateID:   updateID,
		ReceivedAt: time.Now(),
		Bid:        bid,
		Price:      dec(price),
		Size:       dec(size),
	}
}

func startTracker(t *testing.T, rest *api.Client) (*Tracker, *router.GrowableBuffer[router.BookMsg]) {
	t.Helper()

	input := router.NewGrowableBuffer[router.BookMsg](100)
	tr := NewTracker(DefaultTrackerConfig(), rest, input, nil)

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		tr.Stop(ctx)
		input.Close()
	})

	return tr, input
}

func waitForBook(t *testing.T, tr *Tracker, symbol string) *Book {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b, ok := tr.Book(symbol); ok {
			return b
		}
		time.Sleep(time.Millisecond)
	}

	t.Fatalf("timed out waiting for synced book %s", symbol)
	return nil
}

func waitForUpdateID(t *testing.T, tr *Tracker, symbol string, want int64) *Book {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b, ok := tr.Book(symbol); ok && b.UpdateID() == want {
			return b
		}
		time.Sleep(time.Millisecond)
	}

	b, _ := tr.Book(symbol)
	var got int64
	if b != nil {
		got = b.UpdateID()
	}
	t.Fatalf("timed out waiting for update id %d, got %d", want, got)
	return nil
}

func TestTracker_SnapshotThenDeltas(t *testing.T) {
	tr, input := startTracker(t, nil)

	input.Send(snapshotMsg(100,
		[]model.BookLevel{level("50000.0", "1.0")},
		[]model.BookLevel{level("50001.0", "1.0")},
	))
	input.Send(deltaMsg(101, true, "50000.5", "0.5"))

	b := waitForUpdateID(t, tr, "BTC_USDT", 101)

	bid, _ := b.BestBid()
	if !bid.Price.Equal(dec("50000.5")) {
		t.Errorf("expected best bid 50000.5, got %s", bid.Price)
	}
}

func TestTracker_BuffersDeltasBeforeSnapshot(t *testing.T) {
	tr, input := startTracker(t, nil)

	// Deltas arrive before the first snapshot.
	input.Send(deltaMsg(99, true, "49999.0", "1.0"))  // predates snapshot, must be skipped
	input.Send(deltaMsg(101, true, "50000.5", "0.5")) // postdates snapshot, must be replayed

	// Give the consume loop time to buffer them.
	time.Sleep(50 * time.Millisecond)

	if _, ok := tr.Book("BTC_USDT"); ok {
		t.Fatal("book should not be synced before a snapshot")
	}

	input.Send(snapshotMsg(100,
		[]model.BookLevel{level("50000.0", "1.0")},
		[]model.BookLevel{level("50001.0", "1.0")},
	))

	b := waitForUpdateID(t, tr, "BTC_USDT", 101)

	bid, _ := b.BestBid()
	if !bid.Price.Equal(dec("50000.5")) {
		t.Errorf("replayed delta not applied, best bid %s", bid.Price)
	}

	// The stale pre-snapshot delta must not have resurrected 49999.0 as a level
	// beyond what the snapshot contained.
	bids, _ := b.Depth()
	if bids != 2 {
		t.Errorf("expected 2 bid levels (snapshot + replayed), got %d", bids)
	}
}

func TestTracker_DropsStaleDeltas(t *testing.T) {
	tr, input := startTracker(t, nil)

	input.Send(snapshotMsg(100,
		[]model.BookLevel{level("50000.0", "1.0")},
		nil,
	))
	waitForBook(t, tr, "BTC_USDT")

	input.Send(deltaMsg(100, true, "49000.0", "9.9")) // already reflected
	input.Send(deltaMsg(101, true, "50000.5", "0.5"))

	b := waitForUpdateID(t, tr, "BTC_USDT", 101)

	bids, _ := b.Depth()
	if bids != 2 {
		t.Errorf("stale delta applied, expected 2 bid levels, got %d", bids)
	}
}

func TestTracker_ResyncOnGap(t *testing.T) {
	var hits atomic.Int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		json.NewEncoder(w).Encode(api.BookResponse{
			Symbol:   "BTC_USDT",
			UpdateID: 205,
			Bids:     [][2]string{{"50010.0", "2.0"}},
			Asks:     [][2]string{{"50011.0", "2.0"}},
		})
	}))
	defer srv.Close()

	rest := api.NewClient(srv.URL, nil, api.WithRetries(0, time.Millisecond))
	tr, input := startTracker(t, rest)

	input.Send(snapshotMsg(100,
		[]model.BookLevel{level("50000.0", "1.0")},
		[]model.BookLevel{level("50001.0", "1.0")},
	))
	waitForBook(t, tr, "BTC_USDT")

	// Skip update 101: the tracker must resync over REST.
	input.Send(deltaMsg(102, true, "50000.5", "0.5"))

	b := waitForUpdateID(t, tr, "BTC_USDT", 205)

	if hits.Load() == 0 {
		t.Error("expected a REST snapshot request")
	}

	bid, _ := b.BestBid()
	if !bid.Price.Equal(dec("50010.0")) {
		t.Errorf("expected resynced best bid 50010.0, got %s", bid.Price)
	}

	_, _, resyncs := tr.Stats()
	if resyncs != 1 {
		t.Errorf("expected 1 resync, got %d", resyncs)
	}
}
