package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/funtimes-ledwall/internal/bcm"
	"github.com/coreman2200/funtimes-ledwall/internal/panel"
	"github.com/coreman2200/funtimes-ledwall/internal/sequencer"
	"github.com/coreman2200/funtimes-ledwall/internal/source"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())

	d, err := c.Delays()
	require.NoError(t, err)
	assert.Equal(t, uint32(6), d.Cycles(0))
	assert.Equal(t, uint32(5625), d.Cycles(7))
}

func TestLoadMergesOverDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wall.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
driver: gpiocdev
panel:
  row_modules: 3
pins:
  map:
    row_oe: 21
server:
  addr: 127.0.0.1:9000
`), 0644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverGPIOCdev, c.Driver)
	assert.Equal(t, panel.Geometry{RowModules: 3, ColModules: 2, ColorBits: 8}, c.Panel)
	assert.Equal(t, 21, c.Pins.Map[sequencer.RowOE])
	assert.Equal(t, 2, c.Pins.Map[sequencer.ColSER], "unlisted roles keep their default")
	assert.Equal(t, "gpiochip0", c.Pins.Chip)
	assert.Equal(t, "127.0.0.1:9000", c.Server.Addr)
	assert.Equal(t, bcm.DefaultPhaseDelaysNs, c.Timing.PhaseDelaysNs)
	assert.NoError(t, c.Validate())
}

func TestSaveLoadKeepsTiming(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wall.yaml")
	c := Default()
	c.Timing.NsPerCycle = 16
	c.Panel.ColorBits = 4
	require.NoError(t, Save(path, c))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestLoadPlaylist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wall.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
source:
  playlist:
    loop: true
    clips:
      - {name: warmup, pattern: gradient, duration_s: 5, xfade_s: 1}
      - {name: logo, svg: logo.svg, duration_s: 10}
`), 0644))

	c, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, c.Source.Playlist)
	pl := c.Source.Playlist
	assert.True(t, pl.Loop)
	require.Len(t, pl.Clips, 2)
	assert.Equal(t, source.Clip{Name: "warmup", Pattern: source.Gradient, DurationS: 5, XFadeS: 1}, pl.Clips[0])
	assert.Equal(t, "logo.svg", pl.Clips[1].SVG)
	assert.Equal(t, 30, c.Source.FPS)
	assert.NoError(t, c.Validate())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("panel: [1, 2"), 0644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		cause  error
	}{
		{"bad geometry", func(c *Config) { c.Panel.ColorBits = 9 }, panel.ErrGeometry},
		{"short ladder", func(c *Config) { c.Timing.PhaseDelaysNs = c.Timing.PhaseDelaysNs[:4] }, bcm.ErrDelayTable},
		{"zero clock", func(c *Config) { c.Timing.NsPerCycle = 0 }, bcm.ErrDelayTable},
		{"unknown driver", func(c *Config) { c.Driver = "spi" }, nil},
		{"missing pin", func(c *Config) {
			c.Driver = DriverGPIO
			delete(c.Pins.Map, sequencer.RCLK)
		}, sequencer.ErrInvalidPin},
		{"chardev without chip", func(c *Config) {
			c.Driver = DriverGPIOCdev
			c.Pins.Chip = ""
		}, nil},
		{"negative fps", func(c *Config) { c.Source.FPS = -1 }, nil},
		{"level too high", func(c *Config) { c.Source.Level = 256 }, nil},
		{"empty playlist", func(c *Config) { c.Source.Playlist = &source.Program{} }, source.ErrEmptyProgram},
		{"playlist without fps", func(c *Config) {
			c.Source.FPS = 0
			c.Source.Playlist = &source.Program{Clips: []source.Clip{{Pattern: source.Solid, DurationS: 1}}}
		}, nil},
		{"empty preview", func(c *Config) {
			c.Preview.Enabled = true
			c.Preview.Height = 0
		}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
			if tc.cause != nil {
				assert.True(t, errors.Is(err, tc.cause), "got %v", err)
			}
		})
	}

	// a broken pin map does not matter for the simulator
	c := Default()
	c.Pins.Map = nil
	assert.NoError(t, c.Validate())
}
