package strategy

import (
	"context"

	"wadispatch/internal/agent"
)

// MessageKind names the strategy that produced an attempt. The values are
// stored in the delivery log, so keep them stable.
type MessageKind string

const (
	MessageTemplate   MessageKind = "template"
	MessageCustomText MessageKind = "custom_text"
	MessageAIAgent    MessageKind = "ai_agent"
)

// ErrorKind classifies a failed send.
type ErrorKind string

const (
	KindNone             ErrorKind = ""
	KindWindowViolation  ErrorKind = "window_violation"
	KindUpstream         ErrorKind = "upstream"
	KindAgentResolution  ErrorKind = "agent_resolution"
	KindGeneration       ErrorKind = "generation"
	KindInvalidRecipient ErrorKind = "invalid_recipient"
)

// Outcome is the uniform result of one send. It is a value; never mutate a
// shared one.
type Outcome struct {
	Success   bool      `json:"success"`
	MessageID string    `json:"message_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	Kind      ErrorKind `json:"kind,omitempty"`
}

func Sent(messageID string) Outcome { return Outcome{Success: true, MessageID: messageID} }

func Failed(kind ErrorKind, msg string) Outcome {
	if kind == KindNone {
		kind = KindUpstream
	}
	return Outcome{Kind: kind, Error: msg}
}

// Attempt is one strategy invocation against one recipient; the delivery log
// gets one row per Attempt.
type Attempt struct {
	Message  MessageKind
	Template string
	Rendered string
	Outcome  Outcome
}

// Strategy produces and transmits one kind of outbound message.
type Strategy interface {
	Kind() MessageKind
	Send(ctx context.Context, phone, name string) Attempt
}

// TemplateSender wraps the platform's template message endpoint.
type TemplateSender interface {
	SendTemplate(ctx context.Context, phone, templateName, languageCode string, bodyParams []string) Outcome
}

// MessagingTransport wraps the platform's free-form text endpoint. Window
// violations must come back with KindWindowViolation.
type MessagingTransport interface {
	SendText(ctx context.Context, phone, body string) Outcome
}

type AgentRepository interface {
	GetByID(ctx context.Context, id string) (agent.Config, bool, error)
}

type AIGenerator interface {
	Generate(ctx context.Context, prompt string, a agent.Config) (string, error)
}
