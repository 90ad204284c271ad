package tabnotify

import (
	"context"

	"github.com/hazyhaar/tabnotify/kit"
	"github.com/hazyhaar/tabnotify/notify"
)

type tabReq struct {
	ID string `json:"id"`
}

type eventsReq struct {
	ID    string `json:"id"`
	Limit int    `json:"limit"`
}

const defaultEventLimit = 50

// endpoints are the actions shared by the HTTP API and the MCP tools.
type endpoints struct {
	list, status, start, stop, toggle, events kit.Endpoint
}

func (n *Notifier) endpoints() endpoints {
	wrap := func(name string, ep kit.Endpoint) kit.Endpoint {
		return kit.Chain(kit.Logging(n.logger, name))(ep)
	}
	byID := func(fn func(string) (TabStatus, error)) kit.Endpoint {
		return func(_ context.Context, req any) (any, error) {
			return fn(req.(*tabReq).ID)
		}
	}
	return endpoints{
		list: wrap("tabnotify_list", func(context.Context, any) (any, error) {
			return n.Statuses(), nil
		}),
		status: wrap("tabnotify_status", byID(n.Status)),
		start:  wrap("tabnotify_start", byID(n.Activate)),
		stop:   wrap("tabnotify_stop", byID(n.Deactivate)),
		toggle: wrap("tabnotify_toggle", byID(n.Toggle)),
		events: wrap("tabnotify_events", func(ctx context.Context, req any) (any, error) {
			r := req.(*eventsReq)
			limit := r.Limit
			if limit <= 0 {
				limit = defaultEventLimit
			}
			evs, err := n.Events(ctx, r.ID, limit)
			if err != nil {
				return nil, err
			}
			if evs == nil {
				evs = []notify.Event{}
			}
			return evs, nil
		}),
	}
}
