// Package storage caches tracker state across restarts.
//
// It currently supports:
//   - Per-network snapshots of the last successfully fetched broadcast list
//     (so a restart can render immediately while the first poll is in flight)
//   - An append-only journal of observed lifecycle transitions
package storage
