package notify

import (
	"time"

	"github.com/hazyhaar/tabnotify/favicon"
)

// DefaultInterval is the favicon cycle period when none is configured.
const DefaultInterval = time.Second

// Config describes what a tab shows while a notification is active. A
// controller copies it at bind time; changing it requires a new bind.
type Config struct {
	// Title replaces the tab title while active. Empty leaves it alone.
	Title string `json:"title,omitempty" yaml:"title"`

	// Favicons cycle while active. Empty leaves the favicon alone.
	Favicons []favicon.Variant `json:"favicons,omitempty" yaml:"favicons"`

	// Interval between cycle advances. Default: 1s.
	Interval time.Duration `json:"interval,omitempty" yaml:"interval"`

	// ManualTrigger disables visibility-driven activation.
	ManualTrigger bool `json:"manual_trigger,omitempty" yaml:"manual_trigger"`
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
}

func (c Config) clone() Config {
	c.Favicons = append([]favicon.Variant(nil), c.Favicons...)
	return c
}

// Equal reports whether two configs would drive a tab identically.
func (c Config) Equal(o Config) bool {
	c.defaults()
	o.defaults()
	if c.Title != o.Title || c.Interval != o.Interval || c.ManualTrigger != o.ManualTrigger {
		return false
	}
	if len(c.Favicons) != len(o.Favicons) {
		return false
	}
	for i := range c.Favicons {
		if c.Favicons[i] != o.Favicons[i] {
			return false
		}
	}
	return true
}
