// Package source produces raw frames: test patterns for bring-up and
// rasterised SVG artwork.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreman2200/funtimes-ledwall/internal/panel"
)

var ErrUnknownPattern = errors.New("unknown pattern")

// Source fills dst, a FrameSize() byte frame. It returns false once it has
// nothing more to show; dst is left untouched then.
type Source interface {
	Next(dst []byte) bool
}

type Kind string

const (
	Solid    Kind = "solid"
	Gradient Kind = "gradient"
	Sweep    Kind = "sweep"  // one lit pixel walks the frame
	Planes   Kind = "planes" // one column band per bit-plane
)

var Kinds = []Kind{Solid, Gradient, Sweep, Planes}

type Pattern struct {
	kind  Kind
	geom  panel.Geometry
	level byte
	step  int
}

func NewPattern(kind Kind, g panel.Geometry, level byte) (*Pattern, error) {
	for _, k := range Kinds {
		if k == kind {
			return &Pattern{kind: kind, geom: g, level: level}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPattern, kind)
}

func (p *Pattern) Kind() Kind { return p.kind }

func (p *Pattern) Next(dst []byte) bool {
	g := p.geom
	rows, cols := g.Rows(), g.Cols()

	switch p.kind {
	case Sweep:
		if p.step >= len(dst) {
			return false
		}
		clear(dst)
		dst[p.step] = p.level
	case Solid:
		for i := range dst {
			dst[i] = p.level
		}
	case Gradient:
		// diagonal ramp that scrolls one pixel per frame
		span := rows + cols - 1
		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				dst[y*cols+x] = byte((x + y + p.step) % span * 255 / (span - 1))
			}
		}
	case Planes:
		band := cols / g.ColorBits
		if band == 0 {
			band = 1
		}
		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				b := x / band
				v := byte(0)
				if b < g.ColorBits {
					v = 1 << b
				}
				dst[y*cols+x] = v
			}
		}
	}
	p.step++
	return true
}

// Play feeds frames from s to set at fps until s runs dry, set fails or
// ctx is done. fps <= 0 sends a single frame.
func Play(ctx context.Context, s Source, g panel.Geometry, fps int, set func([]byte) error) error {
	frame := make([]byte, g.FrameSize())
	if !s.Next(frame) {
		return nil
	}
	if err := set(frame); err != nil {
		return err
	}
	if fps <= 0 {
		return nil
	}

	tick := time.NewTicker(time.Second / time.Duration(fps))
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
		if !s.Next(frame) {
			return nil
		}
		if err := set(frame); err != nil {
			return err
		}
	}
}
