package broadcast

import (
	"errors"

	"wadispatch/internal/strategy"
)

var (
	// ErrConfiguration aborts a run before any recipient is processed.
	ErrConfiguration = errors.New("broadcast not configured")
	ErrInvalidInput  = errors.New("invalid broadcast request")
)

type Recipient struct {
	Name  string   `json:"name"`
	Phone string   `json:"phone"`
	Email string   `json:"email,omitempty"`
	Tags  []string `json:"tags,omitempty"`
}

type RecipientResult struct {
	Phone   string             `json:"phone"`
	Success bool               `json:"success"`
	Error   string             `json:"error,omitempty"`
	Kind    strategy.ErrorKind `json:"kind,omitempty"`
}

// Result aggregates one run. Total == Successful + Failed == len(PerRecipient).
type Result struct {
	Total        int               `json:"total"`
	Successful   int               `json:"successful"`
	Failed       int               `json:"failed"`
	PerRecipient []RecipientResult `json:"per_recipient"`
}

func (r *Result) add(rr RecipientResult) {
	r.PerRecipient = append(r.PerRecipient, rr)
	r.Total++
	if rr.Success {
		r.Successful++
	} else {
		r.Failed++
	}
}
