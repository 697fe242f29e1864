package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"wadispatch/internal/delivery"
	"wadispatch/pkg/logx"
)

// fileStore appends entries to a JSON Lines journal and serves queries from
// the replayed in-memory copy.
type fileStore struct {
	log logx.Logger

	mu      sync.Mutex
	f       *os.File
	entries []delivery.Entry
}

func openFile(cfg Config, log logx.Logger) (delivery.Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	entries, skipped, err := replayJournal(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if skipped > 0 {
		log.Warn("skipped unreadable delivery records", logx.String("path", path), logx.Int("count", skipped))
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	log.Debug("delivery journal opened", logx.String("path", path), logx.Int("entries", len(entries)))
	return &fileStore{log: log, f: f, entries: entries}, nil
}

func (s *fileStore) AppendDelivery(_ context.Context, e delivery.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.f).Encode(e); err != nil {
		return err
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *fileStore) QueryDeliveries(_ context.Context, f delivery.Filter, limit, offset int) ([]delivery.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil, ErrClosed
	}
	return selectEntries(s.entries, f, limit, offset), nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func replayJournal(path string) ([]delivery.Entry, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var (
		out     []delivery.Entry
		skipped int
	)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var e delivery.Entry
		if err := json.Unmarshal(line, &e); err != nil || e.ID == "" {
			skipped++
			continue
		}
		out = append(out, e)
	}
	return out, skipped, sc.Err()
}
