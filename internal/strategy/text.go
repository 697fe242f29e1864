package strategy

import "context"

type customTextStrategy struct {
	transport MessagingTransport
	body      string
}

func (s *customTextStrategy) Kind() MessageKind { return MessageCustomText }

func (s *customTextStrategy) Send(ctx context.Context, phone, name string) Attempt {
	return Attempt{
		Message:  MessageCustomText,
		Rendered: s.body,
		Outcome:  s.transport.SendText(ctx, phone, s.body),
	}
}
