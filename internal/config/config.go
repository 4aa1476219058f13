package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/coreman2200/funtimes-ledwall/internal/bcm"
	"github.com/coreman2200/funtimes-ledwall/internal/panel"
	"github.com/coreman2200/funtimes-ledwall/internal/sequencer"
	"github.com/coreman2200/funtimes-ledwall/internal/source"
)

var ErrInvalid = errors.New("invalid config")

const (
	DriverSim      = "sim"      // software sequencer into the emulator
	DriverGPIO     = "gpio"     // periph host GPIO
	DriverGPIOCdev = "gpiocdev" // Linux GPIO character device
)

type Timing struct {
	NsPerCycle    uint32   `yaml:"ns_per_cycle"`
	PhaseDelaysNs []uint32 `yaml:"phase_delays_ns"`
}

type Pins struct {
	Chip string           `yaml:"chip,omitempty"` // gpiocdev only, e.g. gpiochip0
	Map  sequencer.PinMap `yaml:"map"`
}

type Server struct {
	Addr string `yaml:"addr"` // empty disables the server
}

type Source struct {
	Pattern  string          `yaml:"pattern"`       // solid | gradient | sweep | planes
	Level    int             `yaml:"level"`         // solid brightness
	SVG      string          `yaml:"svg,omitempty"` // replaces the pattern when set
	FPS      int             `yaml:"fps"`
	Playlist *source.Program `yaml:"playlist,omitempty"` // replaces both
}

type Preview struct {
	Enabled bool   `yaml:"enabled"`
	SPI     string `yaml:"spi,omitempty"` // WS2812 matrix port, console when none opens
	Width   int    `yaml:"width"`
	Height  int    `yaml:"height"`
	FPS     int    `yaml:"fps"`
}

type Config struct {
	Driver string         `yaml:"driver"`
	Panel  panel.Geometry `yaml:"panel"`
	Timing Timing         `yaml:"timing"`
	Pins   Pins           `yaml:"pins"`
	Server Server         `yaml:"server"`
	Source Source         `yaml:"source"`

	Preview Preview `yaml:"preview"`
}

func Default() *Config {
	return &Config{
		Driver: DriverSim,
		Panel:  panel.Default(),
		Timing: Timing{
			NsPerCycle:    bcm.DefaultNsPerCycle,
			PhaseDelaysNs: append([]uint32(nil), bcm.DefaultPhaseDelaysNs...),
		},
		Pins:    Pins{Chip: "gpiochip0", Map: sequencer.DefaultPins()},
		Server:  Server{Addr: ":8080"},
		Source:  Source{Pattern: "gradient", Level: 255, FPS: 30},
		Preview: Preview{Width: 40, Height: 20, FPS: 5},
	}
}

// Load reads path over Default, so a file only needs the keys it changes.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// Delays builds the delay table from the timing section.
func (c *Config) Delays() (bcm.DelayTable, error) {
	t, err := bcm.NewDelayTable(c.Timing.PhaseDelaysNs, c.Timing.NsPerCycle)
	if err != nil {
		return t, err
	}
	return t, t.Covers(c.Panel.ColorBits)
}

func (c *Config) Validate() error {
	if err := c.Panel.Validate(); err != nil {
		return fmt.Errorf("%w: panel: %w", ErrInvalid, err)
	}
	if _, err := c.Delays(); err != nil {
		return fmt.Errorf("%w: timing: %w", ErrInvalid, err)
	}
	switch c.Driver {
	case DriverSim:
	case DriverGPIO, DriverGPIOCdev:
		if err := c.Pins.Map.Validate(); err != nil {
			return fmt.Errorf("%w: pins: %w", ErrInvalid, err)
		}
		if c.Driver == DriverGPIOCdev && c.Pins.Chip == "" {
			return fmt.Errorf("%w: pins: chip is required for %s", ErrInvalid, c.Driver)
		}
	default:
		return fmt.Errorf("%w: unknown driver %q", ErrInvalid, c.Driver)
	}
	if c.Source.FPS < 0 || c.Preview.FPS < 0 {
		return fmt.Errorf("%w: fps must not be negative", ErrInvalid)
	}
	if c.Preview.Enabled && (c.Preview.Width <= 0 || c.Preview.Height <= 0) {
		return fmt.Errorf("%w: preview size %dx%d", ErrInvalid, c.Preview.Width, c.Preview.Height)
	}
	if c.Source.Level < 0 || c.Source.Level > 255 {
		return fmt.Errorf("%w: source level %d not in 0..255", ErrInvalid, c.Source.Level)
	}
	if pl := c.Source.Playlist; pl != nil {
		if err := pl.Validate(); err != nil {
			return fmt.Errorf("%w: playlist: %w", ErrInvalid, err)
		}
		if c.Source.FPS == 0 {
			return fmt.Errorf("%w: playlist needs a positive fps", ErrInvalid)
		}
	}
	return nil
}
