package strategy

import (
	"errors"
	"strings"
)

// MessageType is the closed set of broadcast message kinds. Only the types in
// this package implement it; Build switches over all of them.
type MessageType interface {
	Kind() MessageKind
	isMessageType()
}

// Template sends a pre-approved template. Language falls back to the
// configured default when empty.
type Template struct {
	Name     string `json:"template_name"`
	Language string `json:"language,omitempty"`
}

// CustomText sends free-form text; subject to the 24-hour window.
type CustomText struct {
	Body string `json:"body"`
}

// AIAgent generates the text per recipient with the given agent.
type AIAgent struct {
	AgentID string `json:"agent_id"`
	Context string `json:"context,omitempty"`
}

func (Template) Kind() MessageKind   { return MessageTemplate }
func (CustomText) Kind() MessageKind { return MessageCustomText }
func (AIAgent) Kind() MessageKind    { return MessageAIAgent }

func (Template) isMessageType()   {}
func (CustomText) isMessageType() {}
func (AIAgent) isMessageType()    {}

var ErrInvalidMessage = errors.New("invalid message type")

// Validate rejects message types that cannot produce a send.
func Validate(mt MessageType) error {
	switch m := mt.(type) {
	case Template:
		if strings.TrimSpace(m.Name) == "" {
			return errors.Join(ErrInvalidMessage, errors.New("template name is required"))
		}
	case CustomText:
		if strings.TrimSpace(m.Body) == "" {
			return errors.Join(ErrInvalidMessage, errors.New("message body is required"))
		}
	case AIAgent:
		if strings.TrimSpace(m.AgentID) == "" {
			return errors.Join(ErrInvalidMessage, errors.New("agent id is required"))
		}
	case nil:
		return errors.Join(ErrInvalidMessage, errors.New("message type is required"))
	default:
		return ErrInvalidMessage
	}
	return nil
}

// Parse builds a MessageType from its wire form (HTTP API, config schedules).
func Parse(kind, templateName, language, body, agentID, context string) (MessageType, error) {
	var mt MessageType
	switch MessageKind(strings.ToLower(strings.TrimSpace(kind))) {
	case MessageTemplate:
		mt = Template{Name: strings.TrimSpace(templateName), Language: strings.TrimSpace(language)}
	case MessageCustomText, "text":
		mt = CustomText{Body: body}
	case MessageAIAgent, "ai":
		mt = AIAgent{AgentID: strings.TrimSpace(agentID), Context: context}
	default:
		return nil, errors.Join(ErrInvalidMessage, errors.New("unknown message type "+kind))
	}
	if err := Validate(mt); err != nil {
		return nil, err
	}
	return mt, nil
}
