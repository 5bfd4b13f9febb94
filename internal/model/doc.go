// Package model defines shared data types used across the gatherer.
//
// Conventions:
//   - Prices and sizes: decimal.Decimal with exchange precision
//   - Timestamps: int64 microseconds since Unix epoch
//   - IDs: string for instrument symbols, uuid.UUID for client order IDs
package model
