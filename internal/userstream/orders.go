package userstream

import (
	"sync"

	"github.com/tradeweave/marketdata/internal/model"
)

// OrderTracker holds in-flight orders keyed by client order ID and keeps
// them consistent with user stream updates.
type OrderTracker struct {
	mu     sync.RWMutex
	orders map[string]*model.InFlightOrder
}

// NewOrderTracker creates an empty tracker.
func NewOrderTracker() *OrderTracker {
	return &OrderTracker{
		orders: make(map[string]*model.InFlightOrder),
	}
}

// StartTracking registers an order before submission so the first stream
// update always finds it.
func (t *OrderTracker) StartTracking(order *model.InFlightOrder) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.orders[order.ClientOrderID.String()] = order
}

// StopTracking removes an order regardless of state.
func (t *OrderTracker) StopTracking(clientOrderID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.orders, clientOrderID)
}

// Get returns a copy of a tracked order.
func (t *OrderTracker) Get(clientOrderID string) (model.InFlightOrder, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	order, ok := t.orders[clientOrderID]
	if !ok {
		return model.InFlightOrder{}, false
	}
	return *order, true
}

// Active returns copies of all tracked orders.
func (t *OrderTracker) Active() []model.InFlightOrder {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]model.InFlightOrder, 0, len(t.orders))
	for _, order := range t.orders {
		out = append(out, *order)
	}
	return out
}

// Len returns the number of tracked orders.
func (t *OrderTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.orders)
}

// ApplyUpdate applies a stream update to the matching order. Terminal
// states remove the order from tracking. Updates for unknown client IDs
// (e.g. orders placed outside this process) report false.
func (t *OrderTracker) ApplyUpdate(update model.OrderUpdate) (model.InFlightOrder, bool) {
	if update.ClientOrderID == "" {
		return model.InFlightOrder{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	order, ok := t.orders[update.ClientOrderID]
	if !ok {
		return model.InFlightOrder{}, false
	}

	if update.ExchangeOrderID != "" {
		order.ExchangeOrderID = update.ExchangeOrderID
	}
	order.State = update.State
	if update.FilledSize.GreaterThan(order.FilledSize) {
		order.FilledSize = update.FilledSize
	}
	order.UpdatedTS = update.ExchangeTS

	result := *order
	if order.State.Terminal() {
		delete(t.orders, update.ClientOrderID)
	}

	return result, true
}
