// Package storage provides the delivery log backends.
//
// Drivers:
//   - memory: process-local, lost on restart
//   - file:   append-only JSON Lines, replayed on open
//   - sqlite: modernc.org/sqlite database file in WAL mode
package storage
