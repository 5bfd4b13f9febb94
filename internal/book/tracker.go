package book

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tradeweave/marketdata/internal/api"
	"github.com/tradeweave/marketdata/internal/model"
	"github.com/tradeweave/marketdata/internal/router"
)

// TrackerConfig holds order book tracker configuration.
type TrackerConfig struct {
	// ResyncDepth is the level count requested on REST resync. 0 = full book.
	ResyncDepth int

	// MaxPendingDeltas caps deltas buffered per symbol while a snapshot
	// is outstanding. Oldest entries are dropped beyond the cap.
	MaxPendingDeltas int
}

// DefaultTrackerConfig returns sensible defaults.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		ResyncDepth:      0,
		MaxPendingDeltas: 10000,
	}
}

// Tracker consumes book messages from the router and maintains one live
// book per instrument. Deltas that arrive before the first snapshot are
// buffered and replayed; update-ID gaps trigger a REST resync.
type Tracker struct {
	cfg    TrackerConfig
	rest   *api.Client
	input  *router.GrowableBuffer[router.BookMsg]
	logger *slog.Logger

	mu    sync.RWMutex
	books map[string]*bookState

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Stats
	applied int64
	dropped int64
	resyncs int64
}

// bookState pairs a book with its sync status.
type bookState struct {
	book    *Book
	synced  bool
	pending []router.BookMsg
}

// NewTracker creates an order book tracker.
func NewTracker(cfg TrackerConfig, rest *api.Client, input *router.GrowableBuffer[router.BookMsg], logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}

	return &Tracker{
		cfg:    cfg,
		rest:   rest,
		input:  input,
		logger: logger,
		books:  make(map[string]*bookState),
	}
}

// Start begins consuming book messages.
func (t *Tracker) Start(ctx context.Context) error {
	t.ctx, t.cancel = context.WithCancel(ctx)

	t.wg.Add(1)
	go t.consumeLoop()

	t.logger.Info("order book tracker started")
	return nil
}

// Stop gracefully shuts down the tracker.
func (t *Tracker) Stop(ctx context.Context) error {
	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("order book tracker stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Book returns the live book for a symbol, if tracked and synced.
func (t *Tracker) Book(symbol string) (*Book, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st, ok := t.books[symbol]
	if !ok || !st.synced {
		return nil, false
	}
	return st.book, true
}

// Symbols returns all tracked symbols, synced or not.
func (t *Tracker) Symbols() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.books))
	for sym := range t.books {
		out = append(out, sym)
	}
	return out
}

// Stats reports tracker counters.
func (t *Tracker) Stats() (applied, dropped, resyncs int64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.applied, t.dropped, t.resyncs
}

// consumeLoop drains the router's book buffer.
func (t *Tracker) consumeLoop() {
	defer t.wg.Done()

	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}

		msg, ok := t.input.TryReceive()
		if !ok {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		t.handle(msg)
	}
}

// handle applies a single book message.
func (t *Tracker) handle(msg router.BookMsg) {
	t.mu.Lock()
	st, ok := t.books[msg.Symbol]
	if !ok {
		st = &bookState{book: New(msg.Symbol)}
		t.books[msg.Symbol] = st
	}
	t.mu.Unlock()

	switch msg.Type {
	case "snapshot":
		t.applySnapshot(st, msg)
	case "delta":
		t.applyDelta(st, msg)
	}
}

// applySnapshot installs a snapshot and replays any buffered deltas that
// postdate it.
func (t *Tracker) applySnapshot(st *bookState, msg router.BookMsg) {
	st.book.ApplySnapshot(model.BookSnapshot{
		SnapshotTS: msg.ReceivedAt.UnixMicro(),
		ExchangeTS: msg.ExchangeTS,
		Symbol:     msg.Symbol,
		Source:     "ws",
		UpdateID:   msg.UpdateID,
		Bids:       msg.Bids,
		Asks:       msg.Asks,
	})

	t.mu.Lock()
	st.synced = true
	pending := st.pending
	st.pending = nil
	t.applied++
	t.mu.Unlock()

	replayed := 0
	for _, d := range pending {
		if d.UpdateID <= msg.UpdateID {
			continue // predates the snapshot
		}
		st.book.ApplyDelta(toDelta(d))
		replayed++
	}

	if replayed > 0 || len(pending) > 0 {
		t.logger.Debug("snapshot applied",
			"symbol", msg.Symbol,
			"update_id", msg.UpdateID,
			"buffered", len(pending),
			"replayed", replayed,
		)
	}
}

// applyDelta applies a delta in order, buffering pre-snapshot deltas and
// resyncing when the update sequence breaks.
func (t *Tracker) applyDelta(st *bookState, msg router.BookMsg) {
	t.mu.Lock()
	synced := st.synced
	t.mu.Unlock()

	if !synced {
		t.bufferDelta(st, msg)
		return
	}

	current := st.book.UpdateID()

	switch {
	case msg.UpdateID <= current:
		// Stale, already reflected in the book.
		t.mu.Lock()
		t.dropped++
		t.mu.Unlock()

	case msg.UpdateID == current+1 && !msg.SeqGap:
		st.book.ApplyDelta(toDelta(msg))
		t.mu.Lock()
		t.applied++
		t.mu.Unlock()

	default:
		// Missed an update or the transport reported a gap.
		t.logger.Warn("book update gap, resyncing",
			"symbol", msg.Symbol,
			"expected", current+1,
			"got", msg.UpdateID,
			"seq_gap", msg.SeqGap,
		)
		t.resync(st, msg.Symbol)
	}
}

// bufferDelta queues a delta while the first snapshot is outstanding.
func (t *Tracker) bufferDelta(st *bookState, msg router.BookMsg) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st.pending = append(st.pending, msg)
	if len(st.pending) > t.cfg.MaxPendingDeltas {
		st.pending = st.pending[1:]
		t.dropped++
	}
}

// resync replaces the book with a fresh REST snapshot.
func (t *Tracker) resync(st *bookState, symbol string) {
	t.mu.Lock()
	st.synced = false
	t.resyncs++
	t.mu.Unlock()

	resp, err := t.rest.GetBook(t.ctx, symbol, t.cfg.ResyncDepth)
	if err != nil {
		t.logger.Error("book resync failed", "symbol", symbol, "error", err)
		// Stay unsynced; subsequent deltas buffer until the next snapshot.
		return
	}

	st.book.ApplySnapshot(resp.ToBookSnapshot("rest"))

	t.mu.Lock()
	st.synced = true
	pending := st.pending
	st.pending = nil
	t.mu.Unlock()

	for _, d := range pending {
		if d.UpdateID > st.book.UpdateID() {
			st.book.ApplyDelta(toDelta(d))
		}
	}

	t.logger.Info("book resynced", "symbol", symbol, "update_id", st.book.UpdateID())
}

// toDelta converts a router delta message to the model type.
func toDelta(msg router.BookMsg) model.BookDelta {
	return model.BookDelta{
		ExchangeTS: msg.ExchangeTS,
		ReceivedAt: msg.ReceivedAt.UnixMicro(),
		Symbol:     msg.Symbol,
		Bid:        msg.Bid,
		Price:      msg.Price,
		Size:       msg.Size,
		UpdateID:   msg.UpdateID,
		Seq:        msg.Seq,
	}
}
