package strategy

import (
	"errors"
	"regexp"
	"strings"
)

// Deps are the collaborators the strategies talk to. Generator and Agents may
// be nil when no AI agent broadcasts are configured.
type Deps struct {
	Templates TemplateSender
	Transport MessagingTransport
	Agents    AgentRepository
	Generator AIGenerator

	DefaultLanguage string
	// Personalize selects templates that take the recipient name; nil disables.
	Personalize     *regexp.Regexp
	PlaceholderName string
}

const DefaultLanguage = "en_US"

// Build returns the strategy for mt.
func Build(mt MessageType, d Deps) (Strategy, error) {
	if err := Validate(mt); err != nil {
		return nil, err
	}
	switch m := mt.(type) {
	case Template:
		if d.Templates == nil {
			return nil, errors.New("template sender not configured")
		}
		return NewTemplate(d, m.Name, m.Language), nil
	case CustomText:
		if d.Transport == nil {
			return nil, errors.New("messaging transport not configured")
		}
		return &customTextStrategy{transport: d.Transport, body: m.Body}, nil
	case AIAgent:
		if d.Transport == nil {
			return nil, errors.New("messaging transport not configured")
		}
		if d.Agents == nil || d.Generator == nil {
			return nil, errors.New("ai agents not configured")
		}
		return &aiAgentStrategy{
			agents:    d.Agents,
			generator: d.Generator,
			text:      &customTextStrategy{transport: d.Transport},
			agentID:   strings.TrimSpace(m.AgentID),
			context:   m.Context,
		}, nil
	}
	return nil, ErrInvalidMessage
}

// NewTemplate builds a template strategy directly; the window fallback uses it
// for its fixed template.
func NewTemplate(d Deps, name, language string) Strategy {
	lang := strings.TrimSpace(language)
	if lang == "" {
		lang = strings.TrimSpace(d.DefaultLanguage)
	}
	if lang == "" {
		lang = DefaultLanguage
	}
	placeholder := strings.TrimSpace(d.PlaceholderName)
	if placeholder == "" {
		placeholder = DefaultPlaceholderName
	}
	return &templateStrategy{
		sender:      d.Templates,
		name:        strings.TrimSpace(name),
		language:    lang,
		personalize: d.Personalize,
		placeholder: placeholder,
	}
}
