package broadcast

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"wadispatch/internal/strategy"
	"wadispatch/pkg/logx"
)

// NewJob validates and enqueues req. A full queue still records the job as
// dropped, so the returned id is valid alongside ErrQueueFull.
func (s *Service) NewJob(req Request) (string, error) {
	if !s.Enabled() {
		return "", ErrDisabled
	}
	req.Campaign = strings.TrimSpace(req.Campaign)
	if req.Campaign == "" {
		return "", fmt.Errorf("%w: campaign name is required", ErrInvalidInput)
	}
	if err := strategy.Validate(req.Message); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	s.mu.Lock()
	q := s.queue
	running := s.stopCh != nil && s.stopDone == nil
	s.mu.Unlock()
	if !running {
		return "", ErrStopped
	}

	now := s.now()
	s.pruneStatus(now)

	id := uuid.NewString()
	st := &JobStatus{
		ID:        id,
		Campaign:  req.Campaign,
		Kind:      string(req.Message.Kind()),
		Source:    req.Source,
		State:     JobQueued,
		Total:     len(req.Recipients),
		CreatedAt: now,
	}
	s.statusMu.Lock()
	s.status[id] = st
	s.statusMu.Unlock()

	select {
	case q <- job{id: id, req: req}:
		s.log.Debug("broadcast job enqueued",
			logx.String("job", id),
			logx.String("campaign", req.Campaign),
			logx.Int("total", len(req.Recipients)),
			logx.Int("queue_len", len(q)),
			logx.Int("queue_cap", cap(q)),
		)
		return id, nil
	default:
		s.log.Warn("broadcast queue full; dropping job",
			logx.String("job", id),
			logx.String("campaign", req.Campaign),
			logx.Int("queue_cap", cap(q)),
		)
		s.statusMu.Lock()
		st.State = JobDropped
		st.DoneAt = s.now()
		st.Error = ErrQueueFull.Error()
		s.statusMu.Unlock()
		return id, ErrQueueFull
	}
}

// Status returns a copy of the job's status.
func (s *Service) Status(jobID string) (JobStatus, bool) {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	st, ok := s.status[jobID]
	if !ok || st == nil {
		return JobStatus{}, false
	}
	cp := *st
	if len(st.Failures) > 0 {
		cp.Failures = append([]RecipientResult(nil), st.Failures...)
	}
	return cp, true
}
