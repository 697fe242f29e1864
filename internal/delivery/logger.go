package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"wadispatch/pkg/logx"
)

const (
	DefaultQueryLimit = 50
	MaxQueryLimit     = 500
)

// Logger is the append-only delivery log used by broadcast runs.
type Logger struct {
	store Store
	log   logx.Logger
	now   func() time.Time

	mu   sync.Mutex
	last time.Time
}

func NewLogger(store Store, log logx.Logger) *Logger {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Logger{store: store, log: log, now: time.Now}
}

// Append stores e, filling ID and Timestamp when absent. Timestamps assigned
// here strictly increase, so later attempts always sort after earlier ones.
func (l *Logger) Append(ctx context.Context, e Entry) (Entry, error) {
	if l == nil || l.store == nil {
		return e, errors.New("delivery log not configured")
	}
	if strings.TrimSpace(e.ID) == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = StatusPending
	}
	e.Timestamp = l.stamp(e.Timestamp)

	if err := l.store.AppendDelivery(ctx, e); err != nil {
		return e, fmt.Errorf("append delivery: %w", err)
	}
	l.log.Trace("delivery logged",
		logx.String("campaign", e.CampaignName),
		logx.String("phone", e.RecipientPhone),
		logx.String("status", string(e.Status)),
	)
	return e, nil
}

func (l *Logger) stamp(ts time.Time) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ts.IsZero() {
		ts = l.now().UTC()
		if !ts.After(l.last) {
			ts = l.last.Add(time.Microsecond)
		}
	}
	if ts.After(l.last) {
		l.last = ts
	}
	return ts
}

// Query returns matching entries newest-first.
func (l *Logger) Query(ctx context.Context, f Filter, limit, offset int) ([]Entry, error) {
	if l == nil || l.store == nil {
		return nil, errors.New("delivery log not configured")
	}
	out, err := l.store.QueryDeliveries(ctx, f, NormalizeLimit(limit), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	return out, nil
}

func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultQueryLimit
	}
	return min(limit, MaxQueryLimit)
}
