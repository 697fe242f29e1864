package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures the delivery store.
//
// Driver values:
//   - "" or "memory": in-memory store
//   - "file": JSON Lines file at Path
//   - "sqlite": SQLite database file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means 5s
}
