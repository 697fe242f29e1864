package broadcast

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"wadispatch/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan job, idx int) {
	for {
		// fast-exit so stop wins over queued work
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case j := <-queue:
			s.execJob(ctx, j, idx)
		}
	}
}

// failQueued marks jobs still waiting in q as failed once no worker is left
// to take them.
func (s *Service) failQueued(q chan job) int {
	n := 0
	for {
		select {
		case j := <-q:
			s.finish(j.id, ErrStopped)
			n++
		default:
			return n
		}
	}
}

func (s *Service) execJob(ctx context.Context, j job, idx int) {
	start := time.Now()
	s.setRunning(j.id)

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in broadcast worker",
				logx.Int("worker", idx),
				logx.String("job", j.id),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())),
			)
			s.finish(j.id, fmt.Errorf("panic: %v", r))
		}
	}()

	s.log.Info("broadcast job started", logx.String("job", j.id), logx.String("campaign", j.req.Campaign), logx.Int("total", len(j.req.Recipients)))

	_, err := s.runner.RunWithProgress(ctx, j.req.Recipients, j.req.Message, j.req.Campaign, func(_ int, rr RecipientResult) {
		s.markDone(j.id, rr)
	})
	s.finish(j.id, err)

	st, _ := s.Status(j.id)
	fields := []logx.Field{
		logx.String("job", j.id),
		logx.String("campaign", j.req.Campaign),
		logx.Int("total", st.Total),
		logx.Int("failed", st.Failed),
		logx.Duration("dur", time.Since(start)),
	}
	switch {
	case err != nil:
		s.log.Error("broadcast job failed", append(fields, logx.Err(err))...)
	case st.Failed > 0:
		s.log.Warn("broadcast job finished with failures", fields...)
	default:
		s.log.Info("broadcast job finished", fields...)
	}
}

func (s *Service) setRunning(id string) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if st := s.status[id]; st != nil {
		st.StartedAt = s.now()
		st.State = JobRunning
	}
}

func (s *Service) markDone(id string, rr RecipientResult) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	st := s.status[id]
	if st == nil {
		return
	}
	st.Done++
	if rr.Success {
		st.Successful++
		return
	}
	st.Failed++
	if len(st.Failures) < maxFailuresKept {
		st.Failures = append(st.Failures, rr)
	}
}

func (s *Service) finish(id string, err error) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	st := s.status[id]
	if st == nil || !st.DoneAt.IsZero() {
		return
	}
	st.DoneAt = s.now()
	st.State = JobCompleted
	if err != nil {
		st.State = JobFailed
		st.Error = err.Error()
	}
}
