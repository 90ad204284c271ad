package tabnotify

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/tabnotify/kit"
	"github.com/hazyhaar/tabnotify/shield"
)

// Handler returns the HTTP control API:
//
//	GET    /health
//	GET    /api/tabs
//	GET    /api/tabs/{id}
//	GET    /api/tabs/{id}/events?limit=N
//	GET    /api/events?limit=N
//	POST   /api/tabs/{id}/start|stop|toggle
//	DELETE /api/tabs/{id}
func (n *Notifier) Handler() http.Handler {
	ep := n.endpoints()

	r := chi.NewRouter()
	for _, mw := range shield.APIStack(n.logger) {
		r.Use(mw)
	}

	r.Get("/health", n.handleHealth)
	r.Route("/api/tabs", func(r chi.Router) {
		r.Get("/", serve(ep.list, false))
		r.Get("/{id}", serve(ep.status, true))
		r.Post("/{id}/start", serve(ep.start, true))
		r.Post("/{id}/stop", serve(ep.stop, true))
		r.Post("/{id}/toggle", serve(ep.toggle, true))
		r.Get("/{id}/events", serveEvents(ep.events, true))
		r.Delete("/{id}", n.handleDelete)
	})
	r.Get("/api/events", serveEvents(ep.events, false))
	return r
}

func serve(ep kit.Endpoint, withID bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req any
		if withID {
			req = &tabReq{ID: chi.URLParam(r, "id")}
		}
		resp, err := ep(kit.WithTransport(r.Context(), "http"), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func serveEvents(ep kit.Endpoint, withID bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := &eventsReq{}
		if withID {
			req.ID = chi.URLParam(r, "id")
		}
		if s := r.URL.Query().Get("limit"); s != "" {
			limit, err := strconv.Atoi(s)
			if err != nil || limit < 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
				return
			}
			req.Limit = limit
		}
		resp, err := ep(kit.WithTransport(r.Context(), "http"), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (n *Notifier) handleHealth(w http.ResponseWriter, _ *http.Request) {
	tabs := n.Statuses()
	active := 0
	for _, t := range tabs {
		if t.Active {
			active++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"tabs":   len(tabs),
		"active": active,
		"uptime": time.Since(n.startedAt).Round(time.Second).String(),
	})
}

func (n *Notifier) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := n.RemoveTab(r.Context(), id); err != nil {
		shield.GetLogger(r.Context()).Warn("tabnotify: remove tab", "id", id, "error", err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrUnknownTab):
		status = http.StatusNotFound
	case errors.Is(err, ErrClosed):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
