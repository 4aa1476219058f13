package bcm

import (
	"errors"
	"fmt"
)

// DefaultNsPerCycle is one sequencer clock at 125 MHz with a divider of 1.
const DefaultNsPerCycle = 8

// DefaultPhaseDelaysNs is the on-time ladder per bit-plane, LSB first.
// Each step is two to three and a half times the previous one so the
// integrated on-time tracks the bit weight as the eye perceives it.
var DefaultPhaseDelaysNs = []uint32{50, 100, 200, 500, 1500, 4500, 15000, 45000}

var ErrDelayTable = errors.New("invalid phase delay table")

// DelayTable holds the delay-channel value for each brightness phase, in
// sequencer cycles.
type DelayTable struct {
	cycles []uint32
}

// NewDelayTable converts a nanosecond ladder into cycle counts. The ladder
// must be strictly increasing and every entry must be at least one cycle.
func NewDelayTable(ns []uint32, nsPerCycle uint32) (DelayTable, error) {
	if nsPerCycle == 0 {
		return DelayTable{}, fmt.Errorf("%w: ns_per_cycle is zero", ErrDelayTable)
	}
	if len(ns) == 0 {
		return DelayTable{}, fmt.Errorf("%w: empty", ErrDelayTable)
	}
	cycles := make([]uint32, len(ns))
	for i, v := range ns {
		c := v / nsPerCycle
		if c == 0 {
			return DelayTable{}, fmt.Errorf("%w: phase %d (%dns) is shorter than one cycle", ErrDelayTable, i, v)
		}
		if i > 0 && c <= cycles[i-1] {
			return DelayTable{}, fmt.Errorf("%w: phase %d (%d cycles) does not exceed phase %d (%d cycles)",
				ErrDelayTable, i, c, i-1, cycles[i-1])
		}
		cycles[i] = c
	}
	return DelayTable{cycles: cycles}, nil
}

// DefaultDelayTable is the ladder used when nothing is configured.
func DefaultDelayTable() DelayTable {
	t, err := NewDelayTable(DefaultPhaseDelaysNs, DefaultNsPerCycle)
	if err != nil {
		panic(err)
	}
	return t
}

// Len is the number of phases the table covers.
func (t DelayTable) Len() int { return len(t.cycles) }

// Cycles returns the delay value for phase p.
func (t DelayTable) Cycles(p int) uint32 { return t.cycles[p] }

// Covers reports an error if the table has fewer entries than colorBits.
func (t DelayTable) Covers(colorBits int) error {
	if len(t.cycles) < colorBits {
		return fmt.Errorf("%w: %d entries for %d color bits", ErrDelayTable, len(t.cycles), colorBits)
	}
	return nil
}
