package tabnotify

import (
	"github.com/hazyhaar/tabnotify/tabnotify/internal/config"
)

// Config is the top-level tabnotify configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// TabConfig binds one controller to one tab.
type TabConfig = config.TabConfig

// SinkConfig defines an event output.
type SinkConfig = config.SinkConfig

// Surface names for TabConfig.Surface.
const (
	SurfaceCanvas = config.SurfaceCanvas
	SurfaceImage  = config.SurfaceImage
)

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// ParseConfig decodes YAML configuration.
func ParseConfig(data []byte) (*Config, error) {
	return config.Parse(data)
}
