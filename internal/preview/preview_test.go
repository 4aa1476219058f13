package preview

import (
	"bytes"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/display"
	"periph.io/x/extra/devices/screen"
)

var _ display.Drawer = (*screen.Dev)(nil)

// fakeDrawer keeps every image it was asked to draw.
type fakeDrawer struct {
	w      int
	frames []*image.NRGBA
	halted bool
}

func (d *fakeDrawer) String() string          { return "fake" }
func (d *fakeDrawer) Halt() error             { d.halted = true; return nil }
func (d *fakeDrawer) ColorModel() color.Model { return color.NRGBAModel }
func (d *fakeDrawer) Bounds() image.Rectangle { return image.Rect(0, 0, d.w, 1) }
func (d *fakeDrawer) Draw(_ image.Rectangle, src image.Image, _ image.Point) error {
	d.frames = append(d.frames, src.(*image.NRGBA))
	return nil
}

func ramp(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(y*w + x)})
		}
	}
	return img
}

func TestLinesDownsample(t *testing.T) {
	r := New(&fakeDrawer{w: 2}, Layout{Width: 2, Height: 2}, nil)
	lines := r.Lines(ramp(4, 4))
	require.Len(t, lines, 2)
	assert.Equal(t, uint8(0), lines[0].NRGBAAt(0, 0).R)
	assert.Equal(t, uint8(2), lines[0].NRGBAAt(1, 0).R)
	assert.Equal(t, uint8(8), lines[1].NRGBAAt(0, 0).R)
	assert.Equal(t, uint8(10), lines[1].NRGBAAt(1, 0).G)
	assert.Equal(t, uint8(255), lines[1].NRGBAAt(1, 0).A)
}

func TestConsoleRendersOneLinePerRow(t *testing.T) {
	d := &fakeDrawer{w: 3}
	var out bytes.Buffer
	r := New(d, Layout{Width: 3, Height: 3}, &out)
	assert.False(t, r.Spi)

	require.NoError(t, r.Render(ramp(3, 3)))
	require.NoError(t, r.Render(ramp(3, 3)))

	assert.Len(t, d.frames, 6)
	assert.Equal(t, 6, strings.Count(out.String(), "\n"))
	assert.Equal(t, 1, strings.Count(out.String(), "\x1b[3A"), "second render redraws in place")
}

func TestMatrixRendersSerpentine(t *testing.T) {
	d := &fakeDrawer{w: 6}
	r := New(d, Layout{Width: 3, Height: 2}, nil)
	assert.True(t, r.Spi)

	require.NoError(t, r.Render(ramp(3, 2)))
	require.Len(t, d.frames, 1)
	strip := d.frames[0]
	var got []uint8
	for x := 0; x < 6; x++ {
		got = append(got, strip.NRGBAAt(x, 0).R)
	}
	assert.Equal(t, []uint8{0, 1, 2, 5, 4, 3}, got)

	require.NoError(t, r.Clear())
	assert.True(t, d.halted)
}
