// Package poller implements the REST snapshot poller.
//
// The poller:
//   - Fetches order book snapshots over REST on a fixed interval
//   - Provides the backup data source when the WebSocket feed gaps
//   - Bounds request concurrency with a semaphore
//   - Marks snapshots with source="rest"
package poller
