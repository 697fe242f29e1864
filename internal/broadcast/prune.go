package broadcast

import (
	"sort"
	"time"
)

const (
	defaultStatusMax = 200
	defaultStatusTTL = 24 * time.Hour
)

// pruneStatus keeps job status memory bounded: finished jobs expire after the
// TTL, then the oldest non-running jobs go until the map fits StatusMax.
func (s *Service) pruneStatus(now time.Time) {
	s.mu.Lock()
	max, ttl := s.cfg.StatusMax, s.cfg.StatusTTL
	s.mu.Unlock()

	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	for id, st := range s.status {
		if st == nil {
			delete(s.status, id)
			continue
		}
		if st.running() {
			continue
		}
		ref := st.DoneAt
		if ref.IsZero() {
			ref = st.CreatedAt
		}
		if !ref.IsZero() && now.Sub(ref) > ttl {
			delete(s.status, id)
		}
	}

	// +1 leaves room for the job about to be added.
	over := len(s.status) - max + 1
	if over <= 0 {
		return
	}

	type cand struct {
		id string
		t  time.Time
	}
	cands := make([]cand, 0, len(s.status))
	for id, st := range s.status {
		if st.running() || st.State == JobQueued {
			continue
		}
		key := st.DoneAt
		if key.IsZero() {
			key = st.CreatedAt
		}
		cands = append(cands, cand{id: id, t: key})
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].t.Before(cands[j].t) })
	for i := 0; i < len(cands) && over > 0; i++ {
		delete(s.status, cands[i].id)
		over--
	}
}
