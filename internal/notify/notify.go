package notify

import (
	"context"
	"time"
)

const (
	EventNoShow      = "no_show"
	EventCorruptData = "corrupt_data"
)

type Event struct {
	Type        string    `json:"type"`
	ContextID   string    `json:"context_id"`
	Participant string    `json:"participant,omitempty"`
	Target      time.Time `json:"target,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type Sender interface {
	Send(ctx context.Context, event Event) error
}
