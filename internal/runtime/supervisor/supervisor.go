// Package supervisor runs the process's long-lived goroutines under one
// context, with panic recovery and restart loops.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"wadispatch/pkg/logx"
)

// Supervisor manages goroutines tied to a shared context.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	log         logx.Logger
	cancelOnErr bool

	firstErr atomic.Pointer[error]
	wg       sync.WaitGroup
	doneOnce sync.Once
	doneCh   chan struct{}

	mu    sync.Mutex
	stats map[string]*Stats
}

// Stats is a best-effort view of one named goroutine, for health output.
type Stats struct {
	Name      string    `json:"name"`
	Active    int       `json:"active"`
	Started   int       `json:"started"`
	Restarts  int       `json:"restarts"`
	Panics    int       `json:"panics"`
	LastStart time.Time `json:"last_start"`
	LastErr   string    `json:"last_err,omitempty"`
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// WithCancelOnError cancels the shared context on the first non-nil error.
func WithCancelOnError(enabled bool) Option {
	return func(s *Supervisor) { s.cancelOnErr = enabled }
}

func New(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{
		ctx:    ctx,
		cancel: cancel,
		doneCh: make(chan struct{}),
		stats:  map[string]*Stats{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel cancels the supervisor context without waiting.
func (s *Supervisor) Cancel() { s.cancel() }

func (s *Supervisor) Err() error {
	if p := s.firstErr.Load(); p != nil {
		return *p
	}
	return nil
}

func (s *Supervisor) setErr(err error) {
	if err == nil {
		return
	}
	s.firstErr.CompareAndSwap(nil, &err)
	if s.cancelOnErr {
		s.cancel()
	}
}

func (s *Supervisor) note(name string, fn func(st *Stats)) {
	s.mu.Lock()
	st := s.stats[name]
	if st == nil {
		st = &Stats{Name: name}
		s.stats[name] = st
	}
	fn(st)
	s.mu.Unlock()
}

// Snapshot returns per-name stats, active goroutines first.
func (s *Supervisor) Snapshot() []Stats {
	s.mu.Lock()
	out := make([]Stats, 0, len(s.stats))
	for _, st := range s.stats {
		out = append(out, *st)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Active != out[j].Active {
			return out[i].Active > out[j].Active
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// runOnce calls fn, converting a panic into an error.
func (s *Supervisor) runOnce(name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.note(name, func(st *Stats) { st.Panics++ })
			s.log.Error("goroutine panicked", logx.String("name", name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(s.ctx)
}

// Go runs fn once. A returned error (other than cancellation) or a panic is
// recorded as the supervisor's error.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.note(name, func(st *Stats) { st.Active++; st.Started++; st.LastStart = time.Now() })
		s.log.Debug("goroutine started", logx.String("name", name))

		err := s.runOnce(name, fn)
		s.note(name, func(st *Stats) {
			st.Active--
			if err != nil {
				st.LastErr = err.Error()
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.setErr(fmt.Errorf("%s: %w", name, err))
		}
		s.log.Debug("goroutine stopped", logx.String("name", name))
	}()
}

func (s *Supervisor) Go0(name string, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	s.Go(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// GoRestart runs fn and restarts it after errors or panics with jittered
// exponential backoff between min and max. A clean return stops the loop.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, min, max time.Duration) {
	if fn == nil {
		return
	}
	if min <= 0 {
		min = 250 * time.Millisecond
	}
	if max < min {
		max = min
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		backoff := min
		for restarts := 0; ; restarts++ {
			if s.ctx.Err() != nil {
				return
			}
			started := time.Now()
			s.note(name, func(st *Stats) {
				st.Active++
				st.Started++
				st.LastStart = started
				if restarts > 0 {
					st.Restarts++
				}
			})
			err := s.runOnce(name, fn)
			s.note(name, func(st *Stats) {
				st.Active--
				if err != nil {
					st.LastErr = err.Error()
				}
			})
			if err == nil || s.ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}

			// A long healthy run resets the backoff.
			if time.Since(started) >= 30*time.Second {
				backoff = min
			}
			wait := backoff + time.Duration(time.Now().UnixNano()%int64(backoff/5+1))
			s.log.Warn("goroutine restarting", logx.String("name", name), logx.Duration("backoff", wait), logx.Err(err))
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(wait):
			}
			backoff = backoff * 2
			if backoff > max {
				backoff = max
			}
		}
	}()
}

// Stop cancels the context and waits for every goroutine.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

// Wait blocks until all goroutines exit or ctx is done.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.doneOnce.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.doneCh)
		}()
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.doneCh:
		return s.Err()
	}
}
