package panel

import (
	"errors"
	"fmt"
)

// StagesPerModule is the number of usable pixels along one edge of a module.
// A module's shift register chain has 24 stages; the other 4 are placeholders.
const StagesPerModule = 20

// MaxColorBits is the bit depth of one pixel sample.
const MaxColorBits = 8

var ErrGeometry = errors.New("invalid panel geometry")

// Geometry describes how many modules make up the wall and how many
// brightness bits are rendered. It is passed by value and never mutated.
type Geometry struct {
	RowModules int `yaml:"row_modules"`
	ColModules int `yaml:"col_modules"`
	ColorBits  int `yaml:"color_bits"`
}

// Default is a 2x2 module wall (40x40 pixels) at full 8-bit depth.
func Default() Geometry {
	return Geometry{RowModules: 2, ColModules: 2, ColorBits: MaxColorBits}
}

func (g Geometry) Rows() int { return g.RowModules * StagesPerModule }
func (g Geometry) Cols() int { return g.ColModules * StagesPerModule }

// FrameSize is the length of a raw row-major frame.
func (g Geometry) FrameSize() int { return g.Rows() * g.Cols() }

// WordsPerRow is the encoded group length: one word per column module plus
// the row-control word.
func (g Geometry) WordsPerRow() int { return g.ColModules + 1 }

func (g Geometry) WordsPerPlane() int { return g.Rows() * g.WordsPerRow() }

func (g Geometry) Validate() error {
	switch {
	case g.RowModules < 1:
		return fmt.Errorf("%w: row_modules %d < 1", ErrGeometry, g.RowModules)
	case g.ColModules < 1:
		return fmt.Errorf("%w: col_modules %d < 1", ErrGeometry, g.ColModules)
	case g.ColorBits < 1 || g.ColorBits > MaxColorBits:
		return fmt.Errorf("%w: color_bits %d not in 1..%d", ErrGeometry, g.ColorBits, MaxColorBits)
	case g.Rows() > 255:
		// row indices travel through byte-wide counters on the sequencer side
		return fmt.Errorf("%w: %d rows exceeds 255", ErrGeometry, g.Rows())
	}
	return nil
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d px (%dx%d modules, %d bits)", g.Cols(), g.Rows(), g.ColModules, g.RowModules, g.ColorBits)
}
