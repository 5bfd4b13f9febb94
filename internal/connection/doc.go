// Package connection implements the WebSocket connection manager.
//
// The manager maintains a small pool of feed connections:
//   - one trade connection and one ticker connection (global channels)
//   - N book connections, each carrying a bounded set of instruments
//
// It correlates subscribe/unsubscribe commands with their responses,
// detects per-subscription sequence gaps, reconnects with exponential
// backoff, and forwards data frames to the message router.
package connection
