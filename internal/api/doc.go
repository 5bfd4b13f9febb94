// Package api provides the exchange REST client.
//
// Requests pass through a token-bucket throttler and a circuit breaker
// before hitting the wire; retryable failures (5xx, 429) are retried with
// jittered exponential backoff.
//
// Key endpoints: /time, /status, /instruments, /instruments/{symbol}/book,
// /userDataStream (listen key lifecycle).
package api
