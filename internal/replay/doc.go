// Package replay provides an HTTP record/replay harness backed by a
// SQLite fixture database. Recorder captures live exchange traffic,
// Player serves it back in tests without network access.
package replay
