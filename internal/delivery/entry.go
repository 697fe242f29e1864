package delivery

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusDelivered Status = "delivered"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case "", StatusPending, StatusSent, StatusFailed, StatusDelivered:
		return st, nil
	default:
		return "", fmt.Errorf("unknown delivery status %q", s)
	}
}

// Entry is one send attempt for one recipient. Entries are append-only; a
// window fallback produces two rows for the same recipient.
type Entry struct {
	ID              string    `json:"id"`
	CampaignName    string    `json:"campaign_name"`
	RecipientName   string    `json:"recipient_name,omitempty"`
	RecipientPhone  string    `json:"recipient_phone"`
	MessageType     string    `json:"message_type"`
	TemplateName    string    `json:"template_name,omitempty"`
	RenderedMessage string    `json:"rendered_message,omitempty"`
	Status          Status    `json:"status"`
	MessageID       string    `json:"message_id,omitempty"`
	Error           string    `json:"error,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Filter narrows a query. Empty fields match everything.
type Filter struct {
	CampaignName string
	Status       Status
	Phone        string
}

func (f Filter) Match(e Entry) bool {
	if f.CampaignName != "" && e.CampaignName != f.CampaignName {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.Phone != "" && e.RecipientPhone != f.Phone {
		return false
	}
	return true
}

// Store persists delivery entries. Implementations must be safe for
// concurrent use and return query results newest-first.
type Store interface {
	AppendDelivery(ctx context.Context, e Entry) error
	QueryDeliveries(ctx context.Context, f Filter, limit, offset int) ([]Entry, error)
	Close() error
}
