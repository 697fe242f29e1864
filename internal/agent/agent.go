// Package agent holds AI agent configurations and the text generator used by
// the AI-agent broadcast strategy.
package agent

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Config describes one AI agent: who it pretends to be and which model it uses.
type Config struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	Model        string `json:"model,omitempty"`
}

// Repository is an in-memory agent registry, replaced wholesale on config reload.
type Repository struct {
	mu     sync.RWMutex
	agents map[string]Config
}

func NewRepository(agents []Config) *Repository {
	r := &Repository{}
	r.Replace(agents)
	return r
}

// GetByID returns the agent and whether it exists.
func (r *Repository) GetByID(ctx context.Context, id string) (Config, bool, error) {
	if err := ctx.Err(); err != nil {
		return Config{}, false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[strings.TrimSpace(id)]
	return a, ok, nil
}

func (r *Repository) Replace(agents []Config) {
	m := make(map[string]Config, len(agents))
	for _, a := range agents {
		id := strings.TrimSpace(a.ID)
		if id == "" {
			continue
		}
		a.ID = id
		m[id] = a
	}
	r.mu.Lock()
	r.agents = m
	r.mu.Unlock()
}

// IDs returns the registered agent ids, sorted.
func (r *Repository) IDs() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.agents))
	for id := range r.agents {
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}
