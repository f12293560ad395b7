// Package journal keeps an audit trail of inbound payment webhook deliveries.
package journal

import (
	"context"
	"time"
)

const (
	OutcomeApplied  = "applied"
	OutcomeIgnored  = "ignored"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

type Entry struct {
	Provider   string    `bson:"provider"`
	Payload    string    `bson:"payload"`
	Outcome    string    `bson:"outcome"`
	Error      string    `bson:"error,omitempty"`
	ReceivedAt time.Time `bson:"received_at"`
}

// Journal records deliveries. Implementations are best effort: callers log a
// failed Record and carry on.
type Journal interface {
	Record(ctx context.Context, entry Entry) error
}

type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }
