package events

import "context"

// StreamDeposits carries every deposit lifecycle event.
const StreamDeposits = "events:deposit"

// Event types
const (
	EventDepositResolved = "deposit_resolved"
	EventDepositFailed   = "deposit_failed"
	EventDepositIndexed  = "deposit_indexed"
	EventDepositClaimed  = "deposit_claimed"
)

// Event.Key is the deposit transaction hash; websocket clients subscribe by it.
type Event struct {
	Type    string         `json:"type"`
	Key     string         `json:"key,omitempty"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
