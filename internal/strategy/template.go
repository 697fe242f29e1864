package strategy

import (
	"context"
	"regexp"
	"strings"
)

// DefaultPersonalizedPattern marks templates whose body takes the recipient name as {{1}}.
var DefaultPersonalizedPattern = regexp.MustCompile(`(?i)(welcome|greet|personal|name)`)

const DefaultPlaceholderName = "Customer"

type templateStrategy struct {
	sender      TemplateSender
	name        string
	language    string
	personalize *regexp.Regexp
	placeholder string
}

func (s *templateStrategy) Kind() MessageKind { return MessageTemplate }

func (s *templateStrategy) Send(ctx context.Context, phone, name string) Attempt {
	var params []string
	if s.personalize != nil && s.personalize.MatchString(s.name) {
		n := strings.TrimSpace(name)
		if n == "" {
			n = s.placeholder
		}
		params = []string{n}
	}
	a := Attempt{Message: MessageTemplate, Template: s.name}
	if len(params) > 0 {
		a.Rendered = s.name + "(" + strings.Join(params, ", ") + ")"
	}
	a.Outcome = s.sender.SendTemplate(ctx, phone, s.name, s.language, params)
	return a
}
