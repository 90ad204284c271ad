package tabnotify

import "github.com/hazyhaar/tabnotify/notify"

// TabStatus is the externally visible state of one bound tab.
type TabStatus struct {
	ID            string           `json:"id"`
	URL           string           `json:"url"`
	Attach        bool             `json:"attach,omitempty"`
	Surface       string           `json:"surface"`
	Active        bool             `json:"active"`
	ManualTrigger bool             `json:"manual_trigger"`
	Title         string           `json:"title,omitempty"`
	Favicons      int              `json:"favicons"`
	Interval      string           `json:"interval"`
	Index         int              `json:"index"`
	Animating     bool             `json:"animating"`
	Snapshot      *notify.Snapshot `json:"snapshot,omitempty"`
}

func statusOf(bt *boundTab) TabStatus {
	st := bt.ctrl.State()
	s := TabStatus{
		ID:            bt.cfg.ID,
		URL:           bt.cfg.URL,
		Attach:        bt.cfg.Attach,
		Surface:       bt.cfg.Surface,
		Active:        st.Active,
		ManualTrigger: bt.cfg.ManualTrigger,
		Title:         bt.cfg.Title,
		Favicons:      len(bt.cfg.Favicons),
		Interval:      bt.cfg.Interval.String(),
		Index:         st.Index,
		Animating:     st.Timer != 0,
	}
	if snap, ok := bt.ctrl.Snapshot(); ok {
		s.Snapshot = &snap
	}
	return s
}
