// Package database provides connection pool management for TimescaleDB.
//
// The gatherer stores its time-series output locally:
//   - trades, book deltas, book snapshots, tickers (hypertables)
//   - instruments (relational reference data)
package database
