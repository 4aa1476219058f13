// Package preview mirrors the emulated wall onto a periph display: a WS2812
// matrix on SPI when one is present, the console otherwise.
package preview

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"os"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/extra/devices/screen"
	"periph.io/x/host/v3"
)

// Layout is the preview resolution. On the console each row is one line;
// on a matrix the rows are chained in a serpentine like most WS2812 panels.
type Layout struct {
	Width, Height int
}

type Renderer struct {
	drawer display.Drawer
	layout Layout
	Spi    bool

	port  spi.PortCloser
	out   io.Writer
	drawn bool
}

// New wraps an existing drawer. console is where line breaks go for drawers
// that print one line per Draw; nil means a matrix.
func New(d display.Drawer, l Layout, console io.Writer) *Renderer {
	return &Renderer{drawer: d, layout: l, Spi: console == nil, out: console}
}

// Open tries the named SPI port (empty picks the first) for a WS2812
// matrix and falls back to the console.
func Open(port string, l Layout, log zerolog.Logger) (*Renderer, error) {
	if l.Width <= 0 || l.Height <= 0 {
		return nil, fmt.Errorf("preview layout %dx%d", l.Width, l.Height)
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	p, err := spireg.Open(port)
	if err != nil {
		log.Info().Err(err).Msg("no SPI port, previewing on the console")
		return New(screen.New(l.Width), l, os.Stdout), nil
	}
	d, err := nrzled.NewSPI(p, &nrzled.Opts{
		NumPixels: l.Width * l.Height,
		Channels:  3,
		Freq:      2500 * physic.KiloHertz,
	})
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("open WS2812 preview: %w", err)
	}
	if err := d.Halt(); err != nil {
		log.Warn().Err(err).Msg("clear preview")
	}
	r := New(d, l, nil)
	r.port = p
	return r, nil
}

// Lines scales a snapshot down to the layout, one NRGBA strip per row.
func (r *Renderer) Lines(img *image.Gray) []*image.NRGBA {
	w, h := r.layout.Width, r.layout.Height
	b := img.Bounds()
	lines := make([]*image.NRGBA, h)
	for y := 0; y < h; y++ {
		line := image.NewNRGBA(image.Rect(0, 0, w, 1))
		sy := b.Min.Y + y*b.Dy()/h
		for x := 0; x < w; x++ {
			v := img.GrayAt(b.Min.X+x*b.Dx()/w, sy).Y
			line.SetNRGBA(x, 0, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
		lines[y] = line
	}
	return lines
}

// Render draws img, either line by line to the console or as one chained
// strip to the matrix.
func (r *Renderer) Render(img *image.Gray) error {
	lines := r.Lines(img)
	if r.out == nil {
		return r.drawer.Draw(r.drawer.Bounds(), serpentine(lines), image.Point{})
	}
	if r.drawn {
		// back to the top of the previous picture
		fmt.Fprintf(r.out, "\x1b[%dA", len(lines))
	}
	for _, line := range lines {
		if err := r.drawer.Draw(r.drawer.Bounds(), line, image.Point{}); err != nil {
			return err
		}
		fmt.Fprint(r.out, "\n")
	}
	r.drawn = true
	return nil
}

// serpentine chains rows into one strip, reversing every other row.
func serpentine(lines []*image.NRGBA) *image.NRGBA {
	if len(lines) == 0 {
		return image.NewNRGBA(image.Rect(0, 0, 0, 1))
	}
	w := lines[0].Rect.Dx()
	strip := image.NewNRGBA(image.Rect(0, 0, w*len(lines), 1))
	for y, line := range lines {
		for x := 0; x < w; x++ {
			sx := x
			if y%2 == 1 {
				sx = w - 1 - x
			}
			strip.SetNRGBA(y*w+x, 0, line.NRGBAAt(sx, 0))
		}
	}
	return strip
}

func (r *Renderer) Clear() error {
	err := r.drawer.Halt()
	if r.port != nil {
		if cerr := r.port.Close(); err == nil {
			err = cerr
		}
		r.port = nil
	}
	return err
}
