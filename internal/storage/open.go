package storage

import (
	"errors"
	"strings"

	"wadispatch/internal/delivery"
	"wadispatch/pkg/logx"
)

// Open initializes the configured delivery store.
func Open(cfg Config, log logx.Logger) (delivery.Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
