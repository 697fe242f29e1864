package strategy

import "context"

type fallbackState int

const (
	statePrimary fallbackState = iota
	stateFallbackTemplate
)

// WindowFallback retries a free-form send as a template when the platform
// rejects it for being outside the 24-hour customer service window.
//
// It falls back at most once, only for custom text and AI agent strategies,
// and only on KindWindowViolation. The template's outcome is final.
type WindowFallback struct {
	template Strategy
}

func NewWindowFallback(template Strategy) *WindowFallback {
	return &WindowFallback{template: template}
}

// Dispatch sends through s and returns every attempt made, in order.
func (p *WindowFallback) Dispatch(ctx context.Context, s Strategy, phone, name string) []Attempt {
	first := s.Send(ctx, phone, name)
	attempts := []Attempt{first}
	if p.next(s.Kind(), first.Outcome) != stateFallbackTemplate {
		return attempts
	}
	return append(attempts, p.template.Send(ctx, phone, name))
}

func (p *WindowFallback) next(kind MessageKind, o Outcome) fallbackState {
	if p == nil || p.template == nil || o.Success {
		return statePrimary
	}
	switch kind {
	case MessageCustomText, MessageAIAgent:
		if o.Kind == KindWindowViolation {
			return stateFallbackTemplate
		}
	}
	return statePrimary
}

// Final is the outcome that counts for the recipient.
func Final(attempts []Attempt) Outcome {
	if len(attempts) == 0 {
		return Failed(KindUpstream, "no attempt made")
	}
	return attempts[len(attempts)-1].Outcome
}
