package broadcast

import (
	"context"
	"errors"
	"testing"
	"time"

	"wadispatch/internal/strategy"
	"wadispatch/pkg/logx"
)

type fakeRunner struct {
	block chan struct{}
	err   error
}

func (f *fakeRunner) RunWithProgress(ctx context.Context, recipients []Recipient, _ strategy.MessageType, _ string, progress ProgressFunc) (Result, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	var res Result
	for i, r := range recipients {
		rr := RecipientResult{Phone: r.Phone, Success: r.Name != "bad"}
		if !rr.Success {
			rr.Error = "upstream rejected"
		}
		res.add(rr)
		if progress != nil {
			progress(i, rr)
		}
	}
	return res, f.err
}

func waitState(t *testing.T, s *Service, id string, want JobState) JobStatus {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st, ok := s.Status(id); ok && st.State == want {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	st, _ := s.Status(id)
	t.Fatalf("job %s state = %s, want %s", id, st.State, want)
	return st
}

func startService(t *testing.T, cfg ServiceConfig, r Runner) *Service {
	t.Helper()
	s := NewService(cfg, r, logx.Nop())
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func TestServiceRunsJob(t *testing.T) {
	s := startService(t, ServiceConfig{Enabled: true}, &fakeRunner{})
	id, err := s.NewJob(Request{
		Campaign:   "Spring",
		Recipients: []Recipient{{Name: "a", Phone: "1"}, {Name: "bad", Phone: "2"}, {Name: "c", Phone: "3"}},
		Message:    strategy.CustomText{Body: "Hi"},
		Source:     "api",
	})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	st := waitState(t, s, id, JobCompleted)
	if st.Total != 3 || st.Done != 3 || st.Successful != 2 || st.Failed != 1 {
		t.Fatalf("unexpected status: %+v", st)
	}
	if len(st.Failures) != 1 || st.Failures[0].Phone != "2" {
		t.Fatalf("failures: %+v", st.Failures)
	}
	if st.Kind != "custom_text" || st.Source != "api" || st.StartedAt.IsZero() || st.DoneAt.IsZero() {
		t.Fatalf("metadata: %+v", st)
	}
}

func TestServiceRunError(t *testing.T) {
	s := startService(t, ServiceConfig{Enabled: true}, &fakeRunner{err: ErrConfiguration})
	id, err := s.NewJob(Request{Campaign: "c", Message: strategy.Template{Name: "promo"}})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	st := waitState(t, s, id, JobFailed)
	if st.Error == "" {
		t.Fatalf("expected error text")
	}
}

func TestServiceQueueFull(t *testing.T) {
	r := &fakeRunner{block: make(chan struct{})}
	s := startService(t, ServiceConfig{Enabled: true, Workers: 1, QueueSize: 1}, r)
	req := Request{Campaign: "c", Message: strategy.Template{Name: "promo"}, Recipients: []Recipient{{Phone: "1"}}}

	first, err := s.NewJob(req)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	waitState(t, s, first, JobRunning)
	if _, err := s.NewJob(req); err != nil {
		t.Fatalf("second should queue: %v", err)
	}
	third, err := s.NewJob(req)
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("third err = %v", err)
	}
	if st, ok := s.Status(third); !ok || st.State != JobDropped {
		t.Fatalf("dropped status: %+v", st)
	}
	close(r.block)
	waitState(t, s, first, JobCompleted)
}

func TestServiceDisabledAndStopped(t *testing.T) {
	s := NewService(ServiceConfig{}, &fakeRunner{}, logx.Nop())
	req := Request{Campaign: "c", Message: strategy.Template{Name: "promo"}}
	if _, err := s.NewJob(req); !errors.Is(err, ErrDisabled) {
		t.Fatalf("disabled err = %v", err)
	}
	s.Apply(ServiceConfig{Enabled: true})
	if _, err := s.NewJob(req); !errors.Is(err, ErrStopped) {
		t.Fatalf("stopped err = %v", err)
	}
	if _, err := s.NewJob(Request{Campaign: "c"}); !IsClientError(err) {
		t.Fatalf("invalid err = %v", err)
	}
}

func TestServiceStopCancelsRunningJob(t *testing.T) {
	r := &fakeRunner{block: make(chan struct{})}
	s := NewService(ServiceConfig{Enabled: true, Workers: 1}, r, logx.Nop())
	s.Start(context.Background())
	id, err := s.NewJob(Request{Campaign: "c", Message: strategy.Template{Name: "promo"}})
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	waitState(t, s, id, JobRunning)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	st, _ := s.Status(id)
	if st.State != JobFailed {
		t.Fatalf("state after stop = %s", st.State)
	}
	if _, err := s.NewJob(Request{Campaign: "c", Message: strategy.Template{Name: "promo"}}); !errors.Is(err, ErrStopped) {
		t.Fatalf("after stop err = %v", err)
	}
}

func TestServiceStopFailsQueuedJobs(t *testing.T) {
	r := &fakeRunner{block: make(chan struct{})}
	s := NewService(ServiceConfig{Enabled: true, Workers: 1, QueueSize: 4}, r, logx.Nop())
	s.Start(context.Background())
	req := Request{Campaign: "c", Message: strategy.Template{Name: "promo"}}
	running, err := s.NewJob(req)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	waitState(t, s, running, JobRunning)
	queued, err := s.NewJob(req)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)

	st, _ := s.Status(queued)
	if st.State != JobFailed || st.Error != ErrStopped.Error() || st.DoneAt.IsZero() {
		t.Fatalf("queued job after stop = %+v", st)
	}
}

func TestPruneStatus(t *testing.T) {
	s := NewService(ServiceConfig{Enabled: true, StatusMax: 3, StatusTTL: time.Hour}, &fakeRunner{}, logx.Nop())
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.status = map[string]*JobStatus{
		"expired": {ID: "expired", State: JobCompleted, DoneAt: now.Add(-2 * time.Hour)},
		"old":     {ID: "old", State: JobCompleted, DoneAt: now.Add(-30 * time.Minute)},
		"new":     {ID: "new", State: JobCompleted, DoneAt: now.Add(-time.Minute)},
		"running": {ID: "running", State: JobRunning, StartedAt: now.Add(-3 * time.Hour)},
	}
	s.pruneStatus(now)
	if _, ok := s.status["expired"]; ok {
		t.Fatalf("expired status kept")
	}
	if _, ok := s.status["running"]; !ok {
		t.Fatalf("running status evicted")
	}
	if _, ok := s.status["old"]; ok {
		t.Fatalf("oldest finished status should make room")
	}
	if len(s.status) != 2 {
		t.Fatalf("status size = %d", len(s.status))
	}
}
