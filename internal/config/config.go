// Package config holds the YAML configuration of the demo binary: how the
// panel is wired and how patient the driver should be with it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AndreRenaud/epd1in54b/epd"
	"github.com/AndreRenaud/epd1in54b/internal/log"
)

// Transports understood by the demo.
const (
	TransportFTDI   = "ftdi"
	TransportSPIDev = "spidev"
)

// Pins names the GPIO lines. For FTDI they are header names (e.g.
// "FT232H.C0"), for spidev they are gpioreg names (e.g. "GPIO25").
type Pins struct {
	DC   string `yaml:"dc"`
	CS   string `yaml:"cs"` // empty when the SPI port drives chip select
	RST  string `yaml:"rst"`
	BUSY string `yaml:"busy"`
}

// Config is the top-level configuration.
type Config struct {
	// Panel is one of epd.SupportedTypes().
	Panel string `yaml:"panel"`

	Transport string `yaml:"transport"`
	// SPIBus is the spireg name for spidev ("" picks the first port).
	SPIBus string `yaml:"spi_bus"`
	// SPIHz caps the SPI clock. 0 uses the panel default.
	SPIHz int64 `yaml:"spi_hz"`

	Pins Pins `yaml:"pins"`

	// Background is the clear color: white, black or chromatic/red.
	Background string `yaml:"background"`

	// BusyTimeout bounds busy waits, e.g. "30s". Empty waits forever.
	BusyTimeout string `yaml:"busy_timeout"`
	// PollInterval between busy line reads, e.g. "10ms".
	PollInterval string `yaml:"poll_interval"`

	LogLevel string `yaml:"log_level"`
}

// DefaultConfig is an FT232H with DC/CS/RST/BUSY on C0..C3.
func DefaultConfig() *Config {
	return &Config{
		Panel:     "154b_v2",
		Transport: TransportFTDI,
		Pins: Pins{
			DC:   "FT232H.C0",
			CS:   "FT232H.C1",
			RST:  "FT232H.C2",
			BUSY: "FT232H.C3",
		},
		Background:   "white",
		PollInterval: "10ms",
		LogLevel:     "info",
	}
}

// Normalize fills zero values with defaults.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Panel == "" {
		c.Panel = def.Panel
	}
	if c.Transport == "" {
		c.Transport = def.Transport
	}
	if c.Pins == (Pins{}) && c.Transport == TransportFTDI {
		c.Pins = def.Pins
	}
	if c.Background == "" {
		c.Background = def.Background
	}
	if c.PollInterval == "" {
		c.PollInterval = def.PollInterval
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
}

// Validate reports the first field that cannot be used.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportFTDI, TransportSPIDev:
	default:
		return fmt.Errorf("config: unknown transport %q", c.Transport)
	}
	if c.Pins.DC == "" || c.Pins.RST == "" || c.Pins.BUSY == "" {
		return errors.New("config: pins dc, rst and busy are required")
	}
	if c.SPIHz < 0 {
		return fmt.Errorf("config: negative spi_hz %d", c.SPIHz)
	}
	if _, err := epd.ParseTriColor(c.Background); err != nil {
		return fmt.Errorf("config: background: %w", err)
	}
	if _, err := c.DriverOpts(); err != nil {
		return err
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// DriverOpts converts the timing fields.
func (c *Config) DriverOpts() (*epd.Opts, error) {
	opts := &epd.Opts{}
	var err error
	if c.PollInterval != "" {
		if opts.PollInterval, err = time.ParseDuration(c.PollInterval); err != nil {
			return nil, fmt.Errorf("config: poll_interval: %w", err)
		}
	}
	if c.BusyTimeout != "" {
		if opts.BusyTimeout, err = time.ParseDuration(c.BusyTimeout); err != nil {
			return nil, fmt.Errorf("config: busy_timeout: %w", err)
		}
	}
	return opts, nil
}

// BackgroundColor parses Background.
func (c *Config) BackgroundColor() (epd.TriColor, error) {
	return epd.ParseTriColor(c.Background)
}

// Load reads the YAML file at path. If it does not exist a default file is
// written there and the defaults are returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config: path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			return cfg, Save(path, cfg)
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes cfg to path atomically via a temp file and rename.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config: path is empty")
	}
	if cfg == nil {
		return errors.New("config: nil config")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".epd-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
