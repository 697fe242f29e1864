package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

var ErrNoAPIKey = errors.New("ai generator: api key not configured")

const DefaultModel = "gpt-4o-mini"

type GeneratorConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Generator produces message text through an OpenAI-compatible chat API.
// Apply swaps the client when credentials change; in-flight calls keep the old one.
type Generator struct {
	mu     sync.RWMutex
	cfg    GeneratorConfig
	client *openai.Client
}

func NewGenerator(cfg GeneratorConfig) *Generator {
	g := &Generator{}
	g.Apply(cfg)
	return g
}

func (g *Generator) Apply(cfg GeneratorConfig) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	var client *openai.Client
	if cfg.APIKey != "" {
		opts := []option.RequestOption{
			option.WithAPIKey(cfg.APIKey),
			option.WithMaxRetries(1),
			option.WithRequestTimeout(cfg.Timeout),
		}
		if base := strings.TrimSpace(cfg.BaseURL); base != "" {
			opts = append(opts, option.WithBaseURL(base))
		}
		c := openai.NewClient(opts...)
		client = &c
	}

	g.mu.Lock()
	g.cfg = cfg
	g.client = client
	g.mu.Unlock()
}

// Generate returns the generated text for prompt, speaking as agent.
// An empty completion is an error: callers must not send blank messages.
func (g *Generator) Generate(ctx context.Context, prompt string, a Config) (string, error) {
	g.mu.RLock()
	client := g.client
	model := g.cfg.Model
	g.mu.RUnlock()

	if client == nil {
		return "", ErrNoAPIKey
	}
	if m := strings.TrimSpace(a.Model); m != "" {
		model = m
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if sp := strings.TrimSpace(a.SystemPrompt); sp != "" {
		msgs = append(msgs, openai.SystemMessage(sp))
	}
	msgs = append(msgs, openai.UserMessage(prompt))

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: msgs,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion (agent %s): %w", a.ID, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion (agent %s): no choices", a.ID)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("chat completion (agent %s): empty content", a.ID)
	}
	return text, nil
}
