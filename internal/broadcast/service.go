package broadcast

import (
	"context"
	"errors"
	"sync"
	"time"

	"wadispatch/internal/strategy"
	"wadispatch/pkg/logx"
)

var (
	ErrDisabled  = errors.New("broadcast jobs disabled")
	ErrQueueFull = errors.New("broadcast queue full")
	ErrStopped   = errors.New("broadcast service not running")
)

const (
	DefaultWorkers   = 2
	DefaultQueueSize = 64
)

type ServiceConfig struct {
	Enabled   bool
	Workers   int
	QueueSize int
	// StatusMax/StatusTTL bound in-memory status retention.
	StatusMax int
	StatusTTL time.Duration
}

// Runner executes one broadcast; *Orchestrator satisfies it.
type Runner interface {
	RunWithProgress(ctx context.Context, recipients []Recipient, mt strategy.MessageType, campaign string, progress ProgressFunc) (Result, error)
}

// Request is one queued broadcast.
type Request struct {
	Campaign   string
	Recipients []Recipient
	Message    strategy.MessageType
	// Source tags where the job came from ("api", "schedule:<name>").
	Source string
}

type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobDropped   JobState = "dropped"
)

const maxFailuresKept = 200

type JobStatus struct {
	ID         string            `json:"id"`
	Campaign   string            `json:"campaign"`
	Kind       string            `json:"kind"`
	Source     string            `json:"source,omitempty"`
	State      JobState          `json:"state"`
	Total      int               `json:"total"`
	Done       int               `json:"done"`
	Successful int               `json:"successful"`
	Failed     int               `json:"failed"`
	Failures   []RecipientResult `json:"failures,omitempty"`
	Error      string            `json:"error,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	StartedAt  time.Time         `json:"started_at,omitzero"`
	DoneAt     time.Time         `json:"done_at,omitzero"`
}

func (st *JobStatus) running() bool { return st.State == JobRunning }

type job struct {
	id  string
	req Request
}

// Service runs broadcasts asynchronously on a bounded worker pool.
type Service struct {
	mu sync.Mutex

	cfg    ServiceConfig
	runner Runner
	log    logx.Logger

	queue  chan job
	stopCh chan struct{}
	// stopDone is non-nil while a Stop() is in progress; it is closed when workers fully exit.
	stopDone chan struct{}

	statusMu  sync.RWMutex
	status    map[string]*JobStatus
	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup

	now func() time.Time
}

func NewService(cfg ServiceConfig, runner Runner, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Service{
		cfg:    cfg,
		runner: runner,
		log:    log,
		queue:  make(chan job, cfg.QueueSize),
		status: map[string]*JobStatus{},
		now:    time.Now,
	}
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.StatusMax <= 0 {
		c.StatusMax = defaultStatusMax
	}
	if c.StatusTTL <= 0 {
		c.StatusTTL = defaultStatusTTL
	}
	return c
}

// Enabled reports the current config flag. Apply may run concurrently.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Apply updates the config. Worker count and queue size take effect on the
// next Start.
func (s *Service) Apply(cfg ServiceConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg.withDefaults()
}

func (s *Service) Start(ctx context.Context) {
	for {
		s.mu.Lock()
		if s.stopCh == nil {
			break
		}
		done := s.stopDone
		if done == nil {
			// already running
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
	}
	defer s.mu.Unlock()

	if cap(s.queue) != s.cfg.QueueSize && len(s.queue) == 0 {
		s.queue = make(chan job, s.cfg.QueueSize)
	}
	s.stopCh = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(ctx)

	workers := s.cfg.Workers
	queue, stopCh, runCtx := s.queue, s.stopCh, s.runCtx

	s.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer s.workerWG.Done()
			s.log.Debug("worker started", logx.Int("worker", idx))
			s.worker(runCtx, stopCh, queue, idx)
			s.log.Debug("worker stopped", logx.Int("worker", idx))
		}()
	}
	s.log.Info("broadcast service started", logx.Int("workers", workers), logx.Int("queue", cap(queue)))
}

// Stop cancels running jobs and waits for workers until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	s.stopDone = done
	stopCh := s.stopCh
	queue := s.queue
	cancel := s.runCancel
	s.runCancel = nil
	s.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}

	go func() {
		s.workerWG.Wait()
		if n := s.failQueued(queue); n > 0 {
			s.log.Warn("queued broadcast jobs abandoned on stop", logx.Int("count", n))
		}
		s.mu.Lock()
		s.stopCh = nil
		s.runCtx = nil
		s.stopDone = nil
		s.mu.Unlock()
		close(done)
		s.log.Info("broadcast service stopped", logx.Duration("took", time.Since(start)))
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// stop continues in background
	}
}
