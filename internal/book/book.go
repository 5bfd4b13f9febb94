// Package book maintains live order books: a btree-backed book per
// instrument plus a tracker that applies feed snapshots and deltas in
// update-ID order, resyncing over REST when the sequence breaks.
package book

import (
	"sync"

	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"github.com/tradeweave/marketdata/internal/model"
)

// Book is a thread-safe order book for a single instrument.
type Book struct {
	symbol string

	mu       sync.RWMutex
	bids     *btree.BTreeG[model.BookLevel]
	asks     *btree.BTreeG[model.BookLevel]
	updateID int64

	snapshotTS int64
}

// byPrice orders levels ascending by price. Bids read from the max end,
// asks from the min end.
func byPrice(a, b model.BookLevel) bool {
	return a.Price.LessThan(b.Price)
}

// New creates an empty book for a symbol.
func New(symbol string) *Book {
	return &Book{
		symbol: symbol,
		bids:   btree.NewBTreeG(byPrice),
		asks:   btree.NewBTreeG(byPrice),
	}
}

// Symbol returns the instrument symbol this book tracks.
func (b *Book) Symbol() string {
	return b.symbol
}

// UpdateID returns the exchange update ID of the last applied change.
func (b *Book) UpdateID() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updateID
}

// ApplySnapshot replaces the book contents with a full snapshot.
func (b *Book) ApplySnapshot(snap model.BookSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bids = btree.NewBTreeG(byPrice)
	b.asks = btree.NewBTreeG(byPrice)

	for _, lvl := range snap.Bids {
		if lvl.Size.IsPositive() {
			b.bids.Set(lvl)
		}
	}
	for _, lvl := range snap.Asks {
		if lvl.Size.IsPositive() {
			b.asks.Set(lvl)
		}
	}

	b.updateID = snap.UpdateID
	b.snapshotTS = snap.SnapshotTS
}

// ApplyDelta applies a single level change. A zero size removes the level.
func (b *Book) ApplyDelta(d model.BookDelta) {
	b.mu.Lock()
	defer b.mu.Unlock()

	side := b.asks
	if d.Bid {
		side = b.bids
	}

	lvl := model.BookLevel{Price: d.Price, Size: d.Size}
	if d.Size.IsZero() {
		side.Delete(lvl)
	} else {
		side.Set(lvl)
	}

	if d.UpdateID > b.updateID {
		b.updateID = d.UpdateID
	}
}

// BestBid returns the highest bid, if any.
func (b *Book) BestBid() (model.BookLevel, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bids.Max()
}

// BestAsk returns the lowest ask, if any.
func (b *Book) BestAsk() (model.BookLevel, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.asks.Min()
}

// Spread returns best ask minus best bid, or false if either side is empty.
func (b *Book) Spread() (decimal.Decimal, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return decimal.Zero, false
	}
	return ask.Price.Sub(bid.Price), true
}

// MidPrice returns the midpoint of best bid and ask, or false if either
// side is empty.
func (b *Book) MidPrice() (decimal.Decimal, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return decimal.Zero, false
	}
	return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2)), true
}

// Depth returns the number of price levels on each side.
func (b *Book) Depth() (bids, asks int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bids.Len(), b.asks.Len()
}

// Snapshot copies the book into a model snapshot, best levels first.
// depth 0 includes all levels.
func (b *Book) Snapshot(depth int) model.BookSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snap := model.BookSnapshot{
		Symbol:     b.symbol,
		Source:     "ws",
		UpdateID:   b.updateID,
		SnapshotTS: b.snapshotTS,
	}

	b.bids.Descend(model.BookLevel{Price: maxPrice}, func(lvl model.BookLevel) bool {
		snap.Bids = append(snap.Bids, lvl)
		return depth == 0 || len(snap.Bids) < depth
	})
	b.asks.Ascend(model.BookLevel{}, func(lvl model.BookLevel) bool {
		snap.Asks = append(snap.Asks, lvl)
		return depth == 0 || len(snap.Asks) < depth
	})

	return snap
}

// maxPrice is a descend pivot above any real price.
var maxPrice = decimal.New(1, 30)
