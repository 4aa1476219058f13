package bcm

import "github.com/coreman2200/funtimes-ledwall/internal/panel"

// stageOf maps logical module pixel x to its bit in a pixel word.
var stageOf = func() [panel.StagesPerModule]uint {
	var s [panel.StagesPerModule]uint
	stage := uint(0)
	for x := range s {
		if placeholderBefore(x) {
			stage++
		}
		s[x] = stage
		stage++
	}
	return s
}()

// PixelBit reports whether logical pixel x (0..19) is lit in pixel word w.
func PixelBit(w uint32, x int) bool {
	return w&(1<<stageOf[x]) != 0
}

// UnpackModule expands a pixel word into per-pixel bits.
func UnpackModule(w uint32) [panel.StagesPerModule]bool {
	var px [panel.StagesPerModule]bool
	for x := range px {
		px[x] = PixelBit(w, x)
	}
	return px
}

// PlaceholderMask has a bit set for every non-data stage of a pixel word.
func PlaceholderMask() uint32 {
	m := DataMask
	for _, s := range stageOf {
		m &^= 1 << s
	}
	return m
}

// SplitControl unpacks a row-control word.
func SplitControl(w uint32) (first bool, pulses uint32) {
	return w&FirstRowFlag != 0, w >> 1
}

// SourceRow maps an output row index to the raw frame row it came from.
func SourceRow(g panel.Geometry, y int) int {
	return g.Rows() - 1 - y
}
