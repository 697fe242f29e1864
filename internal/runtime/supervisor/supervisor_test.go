package supervisor

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"wadispatch/pkg/logx"
)

func TestGoRecoversPanicAndCancels(t *testing.T) {
	s := New(context.Background(), WithLogger(logx.Nop()), WithCancelOnError(true))
	s.Go0("boom", func(ctx context.Context) { panic("kaboom") })
	s.Go0("waiter", func(ctx context.Context) { <-ctx.Done() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("err = %v", err)
	}

	var boom Stats
	for _, st := range s.Snapshot() {
		if st.Name == "boom" {
			boom = st
		}
	}
	if boom.Panics != 1 || boom.Active != 0 {
		t.Fatalf("stats = %+v", boom)
	}
}

func TestCanceledIsNotAnError(t *testing.T) {
	s := New(context.Background())
	s.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestGoRestart(t *testing.T) {
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart("flaky", func(ctx context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, time.Millisecond, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if runs.Load() != 3 {
		t.Fatalf("runs = %d", runs.Load())
	}
	snap := s.Snapshot()
	if len(snap) != 1 || snap[0].Restarts != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
}
