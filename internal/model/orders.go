package model

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderState is the lifecycle state of an in-flight order.
type OrderState string

const (
	OrderPending         OrderState = "pending"
	OrderOpen            OrderState = "open"
	OrderPartiallyFilled OrderState = "partially_filled"
	OrderFilled          OrderState = "filled"
	OrderCancelled       OrderState = "cancelled"
	OrderFailed          OrderState = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s OrderState) Terminal() bool {
	return s == OrderFilled || s == OrderCancelled || s == OrderFailed
}

// InFlightOrder tracks an order between submission and a terminal state.
// Orders are keyed by the client-generated ID, which is what the user
// stream echoes back; the exchange ID arrives with the first update.
type InFlightOrder struct {
	ClientOrderID   uuid.UUID
	ExchangeOrderID string
	Symbol          string
	Side            string // "buy" or "sell"
	Price           decimal.Decimal
	Size            decimal.Decimal
	FilledSize      decimal.Decimal
	State           OrderState
	CreatedTS       int64 // µs since epoch
	UpdatedTS       int64 // µs since epoch
}

// NewInFlightOrder creates a pending order with a fresh client order ID.
func NewInFlightOrder(symbol, side string, price, size decimal.Decimal, nowMicro int64) *InFlightOrder {
	return &InFlightOrder{
		ClientOrderID: uuid.New(),
		Symbol:        symbol,
		Side:          side,
		Price:         price,
		Size:          size,
		FilledSize:    decimal.Zero,
		State:         OrderPending,
		CreatedTS:     nowMicro,
		UpdatedTS:     nowMicro,
	}
}

// -----------------------------------------------------------------------------
// User Stream Events
// -----------------------------------------------------------------------------

// UserEventType identifies a user stream event.
type UserEventType string

const (
	EventOrderUpdate   UserEventType = "order_update"
	EventBalanceUpdate UserEventType = "balance_update"
)

// OrderUpdate is an order status change from the user stream.
type OrderUpdate struct {
	ClientOrderID   string // Echoed client order ID, may be empty for manual orders
	ExchangeOrderID string
	Symbol          string
	State           OrderState
	FilledSize      decimal.Decimal
	AvgFillPrice    decimal.Decimal
	ExchangeTS      int64 // µs since epoch
	ReceivedAt      int64 // µs since epoch
}

// BalanceUpdate is an account balance change from the user stream.
type BalanceUpdate struct {
	Asset      string
	Free       decimal.Decimal
	Locked     decimal.Decimal
	ExchangeTS int64 // µs since epoch
	ReceivedAt int64 // µs since epoch
}

// UserEvent is the demultiplexed user stream event envelope.
type UserEvent struct {
	Type    UserEventType
	Order   *OrderUpdate   // Set when Type == EventOrderUpdate
	Balance *BalanceUpdate // Set when Type == EventBalanceUpdate
}
