// Package writer implements batch writers that consume typed messages
// from the router buffers and persist them to TimescaleDB.
//
// Each writer accumulates rows and flushes on a size or time trigger,
// inserting with ON CONFLICT DO NOTHING so replayed messages after a
// reconnect never produce duplicate rows.
package writer
