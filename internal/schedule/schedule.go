// Package schedule triggers configured campaigns on cron specs by enqueueing
// them on the broadcast job service.
package schedule

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"wadispatch/internal/broadcast"
	"wadispatch/internal/config"
	"wadispatch/internal/strategy"
	"wadispatch/pkg/logx"
)

// Enqueuer accepts broadcast jobs; *broadcast.Service satisfies it.
type Enqueuer interface {
	NewJob(req broadcast.Request) (string, error)
}

// Entry is one scheduled campaign.
type Entry struct {
	Name       string
	Spec       string
	Timezone   string
	Campaign   string
	Message    strategy.MessageType
	Recipients []broadcast.Recipient
}

// EntryInfo describes a registered entry.
type EntryInfo struct {
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
}

// FromConfig converts enabled schedule blocks into entries.
func FromConfig(cfgs []config.ScheduleConfig) ([]Entry, error) {
	out := make([]Entry, 0, len(cfgs))
	for _, c := range cfgs {
		if !c.IsEnabled() {
			continue
		}
		m := c.Message
		mt, err := strategy.Parse(m.Type, m.TemplateName, m.Language, m.Body, m.AgentID, m.Context)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", c.Name, err)
		}
		rs := make([]broadcast.Recipient, 0, len(c.Recipients))
		for _, r := range c.Recipients {
			rs = append(rs, broadcast.Recipient{Name: r.Name, Phone: r.Phone, Email: r.Email, Tags: r.Tags})
		}
		out = append(out, Entry{
			Name:       strings.TrimSpace(c.Name),
			Spec:       strings.TrimSpace(c.Spec),
			Timezone:   strings.TrimSpace(c.Timezone),
			Campaign:   strings.TrimSpace(c.Campaign),
			Message:    mt,
			Recipients: rs,
		})
	}
	return out, nil
}

type Service struct {
	log  logx.Logger
	jobs Enqueuer

	parser cron.Parser

	mu      sync.Mutex
	c       *cron.Cron
	entries map[string]Entry
	ids     map[string]cron.EntryID
	running bool
	now     func() time.Time
}

func New(jobs Enqueuer, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:     log,
		jobs:    jobs,
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		entries: map[string]Entry{},
		ids:     map[string]cron.EntryID{},
		now:     time.Now,
	}
}

func (s *Service) specFor(e Entry) string {
	if e.Timezone == "" || strings.HasPrefix(e.Spec, "CRON_TZ=") || strings.HasPrefix(e.Spec, "TZ=") {
		return e.Spec
	}
	return "CRON_TZ=" + e.Timezone + " " + e.Spec
}

// Apply replaces the registered entries. On error nothing changes.
func (s *Service) Apply(entries []Entry) error {
	c := cron.New(
		cron.WithParser(s.parser),
		cron.WithChain(cron.Recover(cronLogger{s.log})),
		cron.WithLogger(cronLogger{s.log}),
	)
	byName := make(map[string]Entry, len(entries))
	ids := make(map[string]cron.EntryID, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			return fmt.Errorf("schedule entry without a name")
		}
		if _, dup := byName[e.Name]; dup {
			return fmt.Errorf("duplicate schedule %q", e.Name)
		}
		name := e.Name
		id, err := c.AddFunc(s.specFor(e), func() { s.fire(name) })
		if err != nil {
			return fmt.Errorf("schedule %s: %w", e.Name, err)
		}
		byName[e.Name] = e
		ids[e.Name] = id
	}

	s.mu.Lock()
	old := s.c
	s.c = c
	s.entries = byName
	s.ids = ids
	running := s.running
	s.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	if running {
		c.Start()
	}
	s.log.Info("schedules applied", logx.Int("count", len(entries)))
	return nil
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	c := s.c
	s.mu.Unlock()
	if c != nil {
		c.Start()
	}
	s.log.Debug("scheduler started")
}

// Stop halts triggering and waits for in-flight triggers until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	s.running = false
	c := s.c
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Debug("scheduler stopped")
}

// Entries lists registered schedules with their next run time.
func (s *Service) Entries() []EntryInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EntryInfo, 0, len(s.entries))
	for name, e := range s.entries {
		info := EntryInfo{Name: name, Spec: e.Spec}
		if s.c != nil {
			if ce := s.c.Entry(s.ids[name]); ce.Valid() {
				info.Next = ce.Next
				if info.Next.IsZero() && ce.Schedule != nil {
					info.Next = ce.Schedule.Next(s.now())
				}
			}
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Fire enqueues the named schedule immediately.
func (s *Service) Fire(name string) (string, error) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("unknown schedule %q", name)
	}
	return s.enqueue(e)
}

func (s *Service) fire(name string) {
	if _, err := s.Fire(name); err != nil {
		s.log.Warn("scheduled broadcast not enqueued", logx.String("schedule", name), logx.Err(err))
	}
}

func (s *Service) enqueue(e Entry) (string, error) {
	base := e.Campaign
	if base == "" {
		base = e.Name
	}
	campaign := base + "@" + s.now().UTC().Format("2006-01-02T15:04Z")
	id, err := s.jobs.NewJob(broadcast.Request{
		Campaign:   campaign,
		Recipients: e.Recipients,
		Message:    e.Message,
		Source:     "schedule:" + e.Name,
	})
	if err != nil {
		return id, err
	}
	s.log.Info("scheduled broadcast enqueued", logx.String("schedule", e.Name), logx.String("campaign", campaign), logx.String("job", id))
	return id, nil
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Trace("cron "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
