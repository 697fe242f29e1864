package delivery_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"wadispatch/internal/delivery"
	"wadispatch/internal/storage"
	"wadispatch/pkg/logx"
)

func TestAppendAssignsIDAndMonotonicTimestamp(t *testing.T) {
	l := delivery.NewLogger(storage.NewMemory(), logx.Nop())
	ctx := context.Background()

	var prev delivery.Entry
	for i := 0; i < 20; i++ {
		e, err := l.Append(ctx, delivery.Entry{CampaignName: "c", RecipientPhone: "1", MessageType: "template", Status: delivery.StatusSent})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if e.ID == "" || e.Timestamp.IsZero() {
			t.Fatalf("missing id or timestamp: %+v", e)
		}
		if i > 0 {
			if !e.Timestamp.After(prev.Timestamp) {
				t.Fatalf("timestamp not increasing: %v then %v", prev.Timestamp, e.Timestamp)
			}
			if e.ID == prev.ID {
				t.Fatalf("duplicate id %s", e.ID)
			}
		}
		prev = e
	}

	got, err := l.Query(ctx, delivery.Filter{CampaignName: "c"}, 0, 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 20 || got[0].ID != prev.ID {
		t.Fatalf("newest entry should come first")
	}
}

func TestAppendKeepsCallerValues(t *testing.T) {
	l := delivery.NewLogger(storage.NewMemory(), logx.Nop())
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	e, err := l.Append(context.Background(), delivery.Entry{ID: "fixed", Timestamp: ts, CampaignName: "c", RecipientPhone: "1"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if e.ID != "fixed" || !e.Timestamp.Equal(ts) || e.Status != delivery.StatusPending {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestQueryLimits(t *testing.T) {
	cases := map[int]int{-1: 50, 0: 50, 10: 10, 500: 500, 9000: 500}
	for in, want := range cases {
		if got := delivery.NormalizeLimit(in); got != want {
			t.Errorf("NormalizeLimit(%d) = %d, want %d", in, got, want)
		}
	}

	l := delivery.NewLogger(storage.NewMemory(), logx.Nop())
	for i := 0; i < 60; i++ {
		_, _ = l.Append(context.Background(), delivery.Entry{CampaignName: "c", RecipientPhone: fmt.Sprint(i)})
	}
	got, _ := l.Query(context.Background(), delivery.Filter{}, 0, 0)
	if len(got) != delivery.DefaultQueryLimit {
		t.Fatalf("default limit: got %d", len(got))
	}

	got, err := l.Query(context.Background(), delivery.Filter{}, 50, math.MaxInt-10)
	if err != nil || len(got) != 0 {
		t.Fatalf("huge offset: got %d rows, err %v", len(got), err)
	}
}

func TestConcurrentAppends(t *testing.T) {
	l := delivery.NewLogger(storage.NewMemory(), logx.Nop())
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_, _ = l.Append(context.Background(), delivery.Entry{CampaignName: fmt.Sprintf("c%d", w), RecipientPhone: "1"})
			}
		}(w)
	}
	wg.Wait()
	got, _ := l.Query(context.Background(), delivery.Filter{}, 500, 0)
	if len(got) != 200 {
		t.Fatalf("got %d entries", len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i-1].Timestamp.After(got[i].Timestamp) {
			t.Fatalf("timestamps not strictly ordered at %d", i)
		}
	}
}

type failingStore struct{ delivery.Store }

func (failingStore) AppendDelivery(context.Context, delivery.Entry) error {
	return errors.New("disk full")
}

func TestAppendWrapsStoreError(t *testing.T) {
	l := delivery.NewLogger(failingStore{}, logx.Nop())
	if _, err := l.Append(context.Background(), delivery.Entry{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseStatus(t *testing.T) {
	if s, err := delivery.ParseStatus(" Sent "); err != nil || s != delivery.StatusSent {
		t.Fatalf("got %q %v", s, err)
	}
	if _, err := delivery.ParseStatus("bounced"); err == nil {
		t.Fatalf("expected error")
	}
}
