// Package bcm re-encodes raw brightness frames into bit-plane word streams
// for the three sequencer channels, and holds the per-phase delay ladder.
//
// Each plane is Rows() groups of ColModules pixel words followed by one
// row-control word. Rows are emitted bottom to top.
package bcm

import (
	"errors"
	"fmt"

	"github.com/coreman2200/funtimes-ledwall/internal/panel"
)

const (
	// EndOfRow marks the last column module word of a row.
	EndOfRow uint32 = 1 << 31
	// DataMask covers the 24 shift register stages of one column module.
	DataMask uint32 = 0x00FF_FFFF

	// FirstRowFlag is bit 0 of the row-control word.
	FirstRowFlag uint32 = 1
)

var ErrFrameSize = errors.New("frame size does not match panel geometry")

// placeholderBefore reports whether a non-data stage sits in front of
// logical pixel x of a module. Positions come from the module wiring.
func placeholderBefore(x int) bool {
	return x == 0 || x == 6 || x == 13
}

// Planes is one complete encoded generation: ColorBits planes of
// WordsPerPlane words each.
type Planes struct {
	geom  panel.Geometry
	words []uint32
}

// NewPlanes allocates an empty generation for g.
func NewPlanes(g panel.Geometry) *Planes {
	return &Planes{geom: g, words: make([]uint32, g.ColorBits*g.WordsPerPlane())}
}

func (p *Planes) Geometry() panel.Geometry { return p.geom }

// Plane returns the word stream of bit-plane b.
func (p *Planes) Plane(b int) []uint32 {
	n := p.geom.WordsPerPlane()
	return p.words[b*n : (b+1)*n : (b+1)*n]
}

// Row returns the group for output row y of plane b: pixel words then the
// row-control word.
func (p *Planes) Row(b, y int) []uint32 {
	n := p.geom.WordsPerRow()
	plane := p.Plane(b)
	return plane[y*n : (y+1)*n : (y+1)*n]
}

// Encoder converts raw frames for a fixed geometry.
type Encoder struct {
	geom    panel.Geometry
	control []uint32 // row-control words depend only on geometry
}

func NewEncoder(g panel.Geometry) (*Encoder, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	e := &Encoder{geom: g, control: make([]uint32, g.Rows())}
	for y := range e.control {
		e.control[y] = RowControl(g, y)
	}
	return e, nil
}

func (e *Encoder) Geometry() panel.Geometry { return e.geom }

// Encode writes every plane of frame into dst. frame is row-major,
// Rows()*Cols() bytes long; any other length is rejected untouched.
func (e *Encoder) Encode(dst *Planes, frame []byte) error {
	g := e.geom
	if len(frame) != g.FrameSize() {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(frame), g.FrameSize())
	}
	if dst.geom != g {
		return fmt.Errorf("encode into %v planes with %v encoder: %w", dst.geom, g, panel.ErrGeometry)
	}

	cols := g.Cols()
	for b := 0; b < g.ColorBits; b++ {
		mask := byte(1) << b
		plane := dst.Plane(b)
		out := 0
		for y := 0; y < g.Rows(); y++ {
			src := frame[(g.Rows()-1-y)*cols:][:cols]
			for xm := 0; xm < g.ColModules; xm++ {
				w := packModule(src[xm*panel.StagesPerModule:][:panel.StagesPerModule], mask)
				if xm == g.ColModules-1 {
					w |= EndOfRow
				}
				plane[out] = w
				out++
			}
			plane[out] = e.control[y]
			out++
		}
	}
	return nil
}

// packModule shifts one module's pixels in from the top of the word,
// skipping placeholder stages, then right-aligns the 24 stages.
func packModule(px []byte, mask byte) uint32 {
	var w uint32
	for x, v := range px {
		if placeholderBefore(x) {
			w >>= 1
		}
		w >>= 1
		if v&mask != 0 {
			w |= 1 << 31
		}
	}
	// trailing placeholder after pixel 19
	w >>= 1
	return w >> 8
}

// RowControl is the row-channel word for output row y: the first-row flag
// in bit 0 and the number of row clock pulses above it.
func RowControl(g panel.Geometry, y int) uint32 {
	module, row := y/panel.StagesPerModule, y%panel.StagesPerModule
	pulses := uint32(1)
	if row == 0 {
		pulses++
	}
	if row == 7 || row == 14 || (row == 0 && module != 0) {
		pulses++
	}
	var first uint32
	if y == g.Rows()-1 {
		first = FirstRowFlag
	}
	return first | pulses<<1
}
