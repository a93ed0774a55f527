// Package config handles configuration loading.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Load to unset fields.
const (
	DefaultCRS        = "EPSG:26191"
	DefaultMaxSize    = 32 << 20
	DefaultWorkers    = 4
	DefaultTimeout    = 30 * time.Second
	DefaultListenPort = 8080
)

// Config represents the root configuration file structure.
type Config struct {
	Listen Listen `yaml:"listen"`

	// DefaultCRS is the source CRS assumed for DXF drawings.
	DefaultCRS string `yaml:"default_crs,omitempty"`
	// CRSDefinitions is an optional YAML file of extra projected CRS.
	CRSDefinitions string `yaml:"crs_definitions,omitempty"`

	Import Import `yaml:"import"`
	Export Export `yaml:"export"`
}

// Listen is the HTTP server address.
type Listen struct {
	Addr string `yaml:"addr,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

// Import limits.
type Import struct {
	// MaxSize is the largest accepted file, in bytes.
	MaxSize int64         `yaml:"max_size,omitempty"`
	Workers int           `yaml:"workers,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// Export options.
type Export struct {
	Minify bool `yaml:"minify,omitempty"`
	// DXFCRS pins the zone DXF drawings are written in.
	DXFCRS string `yaml:"dxf_crs,omitempty"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the YAML configuration file from the specified path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen.Addr == "" {
		c.Listen.Addr = "0.0.0.0"
	}
	if c.Listen.Port <= 0 {
		c.Listen.Port = DefaultListenPort
	}
	if c.DefaultCRS == "" {
		c.DefaultCRS = DefaultCRS
	}
	if c.Import.MaxSize <= 0 {
		c.Import.MaxSize = DefaultMaxSize
	}
	if c.Import.Workers <= 0 {
		c.Import.Workers = DefaultWorkers
	}
	if c.Import.Timeout <= 0 {
		c.Import.Timeout = DefaultTimeout
	}
}
