// Package config handles tabnotify configuration from YAML files or SQLite.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/tabnotify/notify"
)

// Surface names accepted in TabConfig.Surface.
const (
	SurfaceCanvas = "canvas"
	SurfaceImage  = "image"
)

// Config is the top-level tabnotify configuration.
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Tabs    []TabConfig   `yaml:"tabs"`
	Sinks   []SinkConfig  `yaml:"sinks"`
	HTTP    HTTPConfig    `yaml:"http"`
	Store   StoreConfig   `yaml:"store"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote         string        `yaml:"remote"`
	Mode           string        `yaml:"mode"` // headless | headful
	XvfbDisplay    string        `yaml:"xvfb_display"`
	HealthInterval time.Duration `yaml:"health_interval"`
}

// TabConfig binds one notification controller to one browser tab.
type TabConfig struct {
	ID  string `yaml:"id" json:"id"`
	URL string `yaml:"url" json:"url"`
	// Attach reuses an open tab whose URL starts with URL instead of
	// opening a new one.
	Attach bool `yaml:"attach" json:"attach,omitempty"`
	// Surface picks the emoji rasteriser: canvas (in-page) or image (Go).
	Surface string `yaml:"surface" json:"surface,omitempty"`

	notify.Config `yaml:",inline"`
}

// Equal reports whether two tab configs would produce the same binding.
func (t TabConfig) Equal(o TabConfig) bool {
	return t.ID == o.ID && t.URL == o.URL && t.Attach == o.Attach &&
		t.Surface == o.Surface && t.Config.Equal(o.Config)
}

// SinkConfig defines an event output.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | webhook
	URL  string `yaml:"url"`  // webhook only
}

// HTTPConfig enables the control API when Addr is set.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// StoreConfig points at an SQLite tab store merged with the file's tabs.
type StoreConfig struct {
	Path string `yaml:"path"`
	// Retention bounds the event history kept in the store. Default: 720h.
	Retention time.Duration `yaml:"retention"`
}

// LoadFile reads and validates a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Browser.Mode == "" {
		c.Browser.Mode = "headless"
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.HealthInterval <= 0 {
		c.Browser.HealthInterval = 30 * time.Second
	}
	if c.Store.Retention <= 0 {
		c.Store.Retention = 30 * 24 * time.Hour
	}
	for i := range c.Tabs {
		c.Tabs[i].ApplyDefaults()
	}
}

// ApplyDefaults fills the surface and interval of a tab.
func (t *TabConfig) ApplyDefaults() {
	if t.Surface == "" {
		t.Surface = SurfaceCanvas
	}
	if t.Interval <= 0 {
		t.Interval = notify.DefaultInterval
	}
}

// Validate checks a single tab.
func (t TabConfig) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("config: tab without id")
	}
	if t.URL == "" {
		return fmt.Errorf("config: tab %s: url required", t.ID)
	}
	switch t.Surface {
	case "", SurfaceCanvas, SurfaceImage:
	default:
		return fmt.Errorf("config: tab %s: unknown surface %q", t.ID, t.Surface)
	}
	return nil
}

func (c *Config) validate() error {
	seen := make(map[string]bool, len(c.Tabs))
	for _, t := range c.Tabs {
		if err := t.Validate(); err != nil {
			return err
		}
		if seen[t.ID] {
			return fmt.Errorf("config: duplicate tab id %q", t.ID)
		}
		seen[t.ID] = true
	}
	for _, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook":
			if s.URL == "" {
				return fmt.Errorf("config: webhook sink without url")
			}
		default:
			return fmt.Errorf("config: unknown sink type %q", s.Type)
		}
	}
	return nil
}
