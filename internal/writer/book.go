package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradeweave/marketdata/internal/model"
	"github.com/tradeweave/marketdata/internal/router"
)

// BookWriter consumes BookMsg from the router buffer and writes to the
// book_deltas and book_snapshots tables. It also accepts REST snapshots
// from the poller via HandleSnapshot.
type BookWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	// Input from Message Router
	input *router.GrowableBuffer[router.BookMsg]

	// Database
	db *pgxpool.Pool

	// Batching (separate batches for deltas and snapshots)
	deltaBatch    []bookDeltaRow
	snapshotBatch []bookSnapshotRow
	batchMu       sync.Mutex
	flushTicker   *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics BookWriterMetrics
}

// BookWriterMetrics extends WriterMetrics with delta/snapshot breakdown.
type BookWriterMetrics struct {
	DeltaInserts    int64
	DeltaConflicts  int64
	DeltaErrors     int64
	SnapshotInserts int64
	SnapshotErrors  int64
	SeqGaps         int64
	Flushes         int64
}

// NewBookWriter creates a new BookWriter.
func NewBookWriter(
	cfg WriterConfig,
	input *router.GrowableBuffer[router.BookMsg],
	db *pgxpool.Pool,
	logger *slog.Logger,
) *BookWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &BookWriter{
		cfg:           cfg,
		input:         input,
		db:            db,
		logger:        logger,
		deltaBatch:    make([]bookDeltaRow, 0, cfg.BatchSize),
		snapshotBatch: make([]bookSnapshotRow, 0, 100), // Snapshots are less frequent
	}
}

// Start begins consuming messages and writing to the database.
func (w *BookWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	// Consumer goroutine
	w.wg.Add(1)
	go w.consumeLoop()

	// Flush ticker goroutine
	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("book writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer.
func (w *BookWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping book writer")

	if w.cancel != nil {
		w.cancel()
	}

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	// Wait for goroutines
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("book writer stopped")
	case <-ctx.Done():
		w.logger.Warn("book writer stop timed out")
	}

	// Final flush
	w.flush()

	return nil
}

// Stats returns current metrics.
func (w *BookWriter) Stats() BookWriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// HandleSnapshot enqueues a REST snapshot fetched by the poller.
// Implements poller.SnapshotHandler.
func (w *BookWriter) HandleSnapshot(snapshot model.BookSnapshot) error {
	row := w.transformModelSnapshot(snapshot)
	w.batchMu.Lock()
	w.snapshotBatch = append(w.snapshotBatch, row)
	w.batchMu.Unlock()
	return nil
}

// consumeLoop reads from the input buffer and accumulates batches.
func (w *BookWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			msg, ok := w.input.TryReceive()
			if !ok {
				select {
				case <-w.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}

			w.handleMessage(msg)
		}
	}
}

// flushLoop periodically flushes the batches.
func (w *BookWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush()
		}
	}
}

// handleMessage processes a message based on its type (snapshot or delta).
func (w *BookWriter) handleMessage(msg router.BookMsg) {
	// Track sequence gaps
	if msg.SeqGap {
		w.logger.Warn("sequence gap detected",
			"symbol", msg.Symbol,
			"gap_size", msg.GapSize,
		)
		w.batchMu.Lock()
		w.metrics.SeqGaps++
		w.batchMu.Unlock()
		if w.cfg.Metrics != nil {
			w.cfg.Metrics.SeqGaps.WithLabelValues("book").Inc()
		}
	}

	switch msg.Type {
	case "snapshot":
		row := w.transformSnapshot(msg)
		w.batchMu.Lock()
		w.snapshotBatch = append(w.snapshotBatch, row)
		w.batchMu.Unlock()
	case "delta":
		row := w.transformDelta(msg)
		w.batchMu.Lock()
		w.deltaBatch = append(w.deltaBatch, row)
		shouldFlush := len(w.deltaBatch) >= w.cfg.BatchSize
		w.batchMu.Unlock()
		if shouldFlush {
			w.flush()
		}
	default:
		w.logger.Warn("unknown book message type", "type", msg.Type)
	}
}

// transformDelta converts a BookMsg (delta) to bookDeltaRow.
func (w *BookWriter) transformDelta(msg router.BookMsg) bookDeltaRow {
	return bookDeltaRow{
		ExchangeTS: msg.ExchangeTS,
		ReceivedAt: msg.ReceivedAt.UnixMicro(),
		Symbol:     msg.Symbol,
		Bid:        msg.Bid,
		Price:      numeric(msg.Price),
		Size:       numeric(msg.Size),
		UpdateID:   msg.UpdateID,
		Seq:        msg.Seq,
		SubID:      msg.SubID,
	}
}

// transformSnapshot converts a BookMsg (snapshot) to bookSnapshotRow.
func (w *BookWriter) transformSnapshot(msg router.BookMsg) bookSnapshotRow {
	return bookSnapshotRow{
		SnapshotTS: msg.ReceivedAt.UnixMicro(),
		ExchangeTS: msg.ExchangeTS,
		Symbol:     msg.Symbol,
		Source:     "ws",
		UpdateID:   msg.UpdateID,
		Bids:       levelsToJSONB(msg.Bids),
		Asks:       levelsToJSONB(msg.Asks),
		BestBid:    bestPrice(msg.Bids),
		BestAsk:    bestPrice(msg.Asks),
		Spread:     spreadOf(msg.Bids, msg.Asks),
		SubID:      msg.SubID,
	}
}

// transformModelSnapshot converts a model.BookSnapshot (REST) to bookSnapshotRow.
func (w *BookWriter) transformModelSnapshot(s model.BookSnapshot) bookSnapshotRow {
	return bookSnapshotRow{
		SnapshotTS: s.SnapshotTS,
		ExchangeTS: s.ExchangeTS,
		Symbol:     s.Symbol,
		Source:     s.Source,
		UpdateID:   s.UpdateID,
		Bids:       levelsToJSONB(s.Bids),
		Asks:       levelsToJSONB(s.Asks),
		BestBid:    bestPrice(s.Bids),
		BestAsk:    bestPrice(s.Asks),
		Spread:     spreadOf(s.Bids, s.Asks),
	}
}

// flush writes both batches to the database.
func (w *BookWriter) flush() {
	w.batchMu.Lock()
	deltaBatch := w.deltaBatch
	snapshotBatch := w.snapshotBatch
	w.deltaBatch = make([]bookDeltaRow, 0, w.cfg.BatchSize)
	w.snapshotBatch = make([]bookSnapshotRow, 0, 100)
	w.batchMu.Unlock()

	if len(deltaBatch) == 0 && len(snapshotBatch) == 0 {
		return
	}

	start := time.Now()

	// Flush deltas
	if len(deltaBatch) > 0 {
		conflicts, err := w.batchInsertDeltas(deltaBatch)
		if err != nil {
			w.logger.Error("delta batch insert failed", "error", err, "count", len(deltaBatch))
			w.batchMu.Lock()
			w.metrics.DeltaErrors++
			w.batchMu.Unlock()
		} else {
			w.batchMu.Lock()
			w.metrics.DeltaInserts += int64(len(deltaBatch) - conflicts)
			w.metrics.DeltaConflicts += int64(conflicts)
			w.batchMu.Unlock()
			if w.cfg.Metrics != nil {
				w.cfg.Metrics.RowsInserted.WithLabelValues("book").Add(float64(len(deltaBatch) - conflicts))
				w.cfg.Metrics.RowConflicts.WithLabelValues("book").Add(float64(conflicts))
			}
		}
	}

	// Flush snapshots
	if len(snapshotBatch) > 0 {
		err := w.batchInsertSnapshots(snapshotBatch)
		if err != nil {
			w.logger.Error("snapshot batch insert failed", "error", err, "count", len(snapshotBatch))
			w.batchMu.Lock()
			w.metrics.SnapshotErrors++
			w.batchMu.Unlock()
		} else {
			w.batchMu.Lock()
			w.metrics.SnapshotInserts += int64(len(snapshotBatch))
			w.batchMu.Unlock()
			if w.cfg.Metrics != nil {
				w.cfg.Metrics.RowsInserted.WithLabelValues("book").Add(float64(len(snapshotBatch)))
			}
		}
	}

	w.batchMu.Lock()
	w.metrics.Flushes++
	w.batchMu.Unlock()

	if w.cfg.Metrics != nil {
		w.cfg.Metrics.FlushDuration.WithLabelValues("book").Observe(time.Since(start).Seconds())
	}

	w.logger.Debug("flushed book",
		"deltas", len(deltaBatch),
		"snapshots", len(snapshotBatch),
		"duration", time.Since(start),
	)
}

// batchInsertDeltas inserts delta rows with ON CONFLICT DO NOTHING.
func (w *BookWriter) batchInsertDeltas(rows []bookDeltaRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO book_deltas (exchange_ts, received_at, symbol, bid, price, size, update_id, seq, sub_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (symbol, update_id, bid, price) DO NOTHING
		`, r.ExchangeTS, r.ReceivedAt, r.Symbol, r.Bid, r.Price, r.Size, r.UpdateID, r.Seq, r.SubID)
	}

	results := w.db.SendBatch(w.ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}

// batchInsertSnapshots inserts snapshot rows with ON CONFLICT DO NOTHING.
func (w *BookWriter) batchInsertSnapshots(rows []bookSnapshotRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO book_snapshots (snapshot_ts, exchange_ts, symbol, source, update_id, bids, asks, best_bid, best_ask, spread, sub_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (symbol, snapshot_ts, source) DO NOTHING
		`, r.SnapshotTS, r.ExchangeTS, r.Symbol, r.Source, r.UpdateID, r.Bids, r.Asks, r.BestBid, r.BestAsk, r.Spread, r.SubID)
	}

	results := w.db.SendBatch(w.ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}

	return nil
}
