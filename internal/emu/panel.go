// Package emu integrates the row stream a sequencer would put on the wire
// into the brightness each pixel would show.
package emu

import (
	"image"
	"sync"

	"github.com/coreman2200/funtimes-ledwall/internal/bcm"
	"github.com/coreman2200/funtimes-ledwall/internal/panel"
	"github.com/coreman2200/funtimes-ledwall/internal/sequencer/softseq"
)

// Panel is a softseq.Sink. It follows the row pointer the same way the row
// shift register does: one row per control word, back to the top after the
// row carrying the first-row flag.
type Panel struct {
	mu       sync.Mutex
	geom     panel.Geometry
	row      int
	onTime   []uint64 // cycles lit, raw frame layout
	exposure []uint64 // cycles offered, per raw frame row
	passes   uint64
	rows     uint64
	blanked  bool
}

func New(g panel.Geometry) *Panel {
	return &Panel{
		geom:     g,
		onTime:   make([]uint64, g.FrameSize()),
		exposure: make([]uint64, g.Rows()),
	}
}

var _ softseq.Sink = (*Panel)(nil)

func (p *Panel) Row(r softseq.Row) {
	p.mu.Lock()
	defer p.mu.Unlock()

	g := p.geom
	src := bcm.SourceRow(g, p.row)
	if !p.blanked {
		d := uint64(r.Delay)
		p.exposure[src] += d
		lit := p.onTime[src*g.Cols():][:g.Cols()]
		for xm, w := range r.Pixels {
			if xm >= g.ColModules {
				break
			}
			for x := 0; x < panel.StagesPerModule; x++ {
				if bcm.PixelBit(w, x) {
					lit[xm*panel.StagesPerModule+x] += d
				}
			}
		}
	}
	p.rows++

	if first, _ := bcm.SplitControl(r.Control); first {
		p.row = 0
		p.passes++
		return
	}
	p.row = (p.row + 1) % g.Rows()
}

// Blank turns the wall dark; rows keep being consumed.
func (p *Panel) Blank() {
	p.mu.Lock()
	p.blanked = true
	p.mu.Unlock()
}

func (p *Panel) Blanked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.blanked
}

// Passes counts completed frame passes (one bit-plane each).
func (p *Panel) Passes() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.passes
}

// RowsSeen counts every row consumed since New or Reset.
func (p *Panel) RowsSeen() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rows
}

// Level returns the integrated brightness of pixel (row, col) as a fraction
// of the time its row was driven.
func (p *Panel) Level(row, col int) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level(row, col)
}

func (p *Panel) level(row, col int) float64 {
	e := p.exposure[row]
	if e == 0 {
		return 0
	}
	return float64(p.onTime[row*p.geom.Cols()+col]) / float64(e)
}

// Snapshot renders the integrated brightness into a grayscale image laid
// out like the raw frame.
func (p *Panel) Snapshot() *image.Gray {
	p.mu.Lock()
	defer p.mu.Unlock()

	g := p.geom
	img := image.NewGray(image.Rect(0, 0, g.Cols(), g.Rows()))
	for y := 0; y < g.Rows(); y++ {
		for x := 0; x < g.Cols(); x++ {
			img.Pix[y*img.Stride+x] = uint8(p.level(y, x)*255 + 0.5)
		}
	}
	return img
}

// Reset clears the accumulators so the next Snapshot covers only new rows.
func (p *Panel) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.onTime {
		p.onTime[i] = 0
	}
	for i := range p.exposure {
		p.exposure[i] = 0
	}
	p.rows = 0
}
