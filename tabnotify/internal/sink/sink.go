// Package sink defines output backends for notification events.
package sink

import (
	"context"

	"github.com/hazyhaar/tabnotify/notify"
)

// Sink delivers controller events to a backend (stdout, webhook,
// in-process callback).
type Sink interface {
	Send(ctx context.Context, ev notify.Event) error
	Close() error
}

type envelope struct {
	Type string       `json:"type"`
	Data notify.Event `json:"data"`
}
