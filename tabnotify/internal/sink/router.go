package sink

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hazyhaar/tabnotify/notify"
)

// Router fans each event out to every sink. A failing sink does not stop
// delivery to the others.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

// Len is the number of sinks.
func (r *Router) Len() int { return len(r.sinks) }

// Send delivers ev to all sinks and joins their errors.
func (r *Router) Send(ctx context.Context, ev notify.Event) error {
	var errs []error
	for _, s := range r.sinks {
		if err := s.Send(ctx, ev); err != nil {
			r.logger.Warn("sink: send failed", "event", ev.Type, "controller", ev.ControllerID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (r *Router) Close() error {
	var errs []error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
