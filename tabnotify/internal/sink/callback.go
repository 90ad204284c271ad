package sink

import (
	"context"

	"github.com/hazyhaar/tabnotify/notify"
)

// EventFunc handles one event in-process.
type EventFunc func(ctx context.Context, ev notify.Event) error

// Callback delivers events as plain function calls, for embedding the
// daemon in a larger binary.
type Callback struct {
	fn EventFunc
}

// NewCallback creates a Callback sink. fn may be nil.
func NewCallback(fn EventFunc) *Callback {
	return &Callback{fn: fn}
}

func (c *Callback) Send(ctx context.Context, ev notify.Event) error {
	if c.fn == nil {
		return nil
	}
	return c.fn(ctx, ev)
}

func (c *Callback) Close() error { return nil }
