package tabnotify

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/hazyhaar/tabnotify/tabnotify/internal/sink"
)

// Sink receives controller events.
type Sink = sink.Sink

// EventFunc handles one event in-process.
type EventFunc = sink.EventFunc

// NewStdoutSink writes JSON lines to w (os.Stdout when nil).
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// NewWebhookSink POSTs each event to url with retry.
func NewWebhookSink(url string, logger *slog.Logger) Sink {
	return sink.NewWebhook(url, sink.WithWebhookLogger(logger))
}

// NewCallbackSink delivers events as function calls.
func NewCallbackSink(fn EventFunc) Sink {
	return sink.NewCallback(fn)
}

// SinksFromConfig builds the sinks listed in cfg.
func SinksFromConfig(cfgs []SinkConfig, logger *slog.Logger) ([]Sink, error) {
	var out []Sink
	for _, c := range cfgs {
		switch c.Type {
		case "stdout":
			out = append(out, NewStdoutSink(nil))
		case "webhook":
			out = append(out, NewWebhookSink(c.URL, logger))
		default:
			return nil, fmt.Errorf("tabnotify: unknown sink type %q", c.Type)
		}
	}
	return out, nil
}
