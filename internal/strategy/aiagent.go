package strategy

import (
	"context"
	"fmt"
	"strings"
)

const defaultAgentInstruction = "Write a short, friendly welcome message for a customer named %s. " +
	"Keep it under 60 words, plain text, no placeholders."

type aiAgentStrategy struct {
	agents    AgentRepository
	generator AIGenerator
	text      *customTextStrategy
	agentID   string
	context   string
}

func (s *aiAgentStrategy) Kind() MessageKind { return MessageAIAgent }

func (s *aiAgentStrategy) Send(ctx context.Context, phone, name string) Attempt {
	a := Attempt{Message: MessageAIAgent}

	cfg, ok, err := s.agents.GetByID(ctx, s.agentID)
	if err != nil {
		a.Outcome = Failed(KindAgentResolution, fmt.Sprintf("agent %s lookup failed: %v", s.agentID, err))
		return a
	}
	if !ok {
		a.Outcome = Failed(KindAgentResolution, fmt.Sprintf("agent %s not found", s.agentID))
		return a
	}

	text, err := s.generator.Generate(ctx, s.prompt(name), cfg)
	if err != nil {
		a.Outcome = Failed(KindGeneration, fmt.Sprintf("generate message: %v", err))
		return a
	}
	text = strings.TrimSpace(text)
	if text == "" {
		a.Outcome = Failed(KindGeneration, "generate message: empty response")
		return a
	}

	a.Rendered = text
	a.Outcome = s.text.transport.SendText(ctx, phone, text)
	return a
}

func (s *aiAgentStrategy) prompt(name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		n = "there"
	}
	c := strings.TrimSpace(s.context)
	if c == "" {
		return fmt.Sprintf(defaultAgentInstruction, n)
	}
	return c + "\n\nRecipient name: " + n
}
