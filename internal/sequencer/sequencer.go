// Package sequencer binds the three hardware sequencer roles (pixel pusher,
// row selector, blanking delay) to channels that accept 32-bit words.
package sequencer

import (
	"errors"
	"fmt"
	"sort"

	"github.com/coreman2200/funtimes-ledwall/internal/panel"
)

var (
	ErrNoFreeChannel = errors.New("no free sequencer channel")
	ErrInvalidPin    = errors.New("invalid pin role")
)

// Role is the job a channel does on the wall.
type Role int

const (
	RolePixel Role = iota
	RoleRow
	RoleDelay
)

var Roles = []Role{RolePixel, RoleRow, RoleDelay}

func (r Role) String() string {
	switch r {
	case RolePixel:
		return "pixel"
	case RoleRow:
		return "row"
	case RoleDelay:
		return "delay"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// FIFO depths of the hardware channels. The pixel channel joins its RX FIFO
// into TX because it carries the most words per row.
const (
	PixelFIFODepth = 8
	RowFIFODepth   = 4
	DelayFIFODepth = 4
)

func FIFODepth(r Role) int {
	switch r {
	case RolePixel:
		return PixelFIFODepth
	case RoleRow:
		return RowFIFODepth
	}
	return DelayFIFODepth
}

// Channel is one sequencer lane. Enqueue blocks until the lane has room.
type Channel interface {
	Enqueue(word uint32)
}

// Backend claims and configures the three channels for a wall.
type Backend interface {
	Bind(g panel.Geometry) (*Binding, error)
}

// Binding is the result of a successful Backend.Bind.
type Binding struct {
	pixel, row, delay Channel
	blank             func()
}

func NewBinding(pixel, row, delay Channel, blank func()) *Binding {
	return &Binding{pixel: pixel, row: row, delay: delay, blank: blank}
}

func (b *Binding) Pixel() Channel { return b.pixel }
func (b *Binding) Row() Channel   { return b.row }
func (b *Binding) Delay() Channel { return b.delay }

func (b *Binding) Channel(r Role) Channel {
	switch r {
	case RolePixel:
		return b.pixel
	case RoleRow:
		return b.row
	default:
		return b.delay
	}
}

// Blank forces the row output-enable inactive. Channels keep draining.
func (b *Binding) Blank() {
	if b.blank != nil {
		b.blank()
	}
}

// ClaimError wraps ErrNoFreeChannel with the role that could not be claimed.
func ClaimError(r Role, cause error) error {
	if cause == nil {
		return fmt.Errorf("claim %s channel: %w", r, ErrNoFreeChannel)
	}
	return fmt.Errorf("claim %s channel: %w: %v", r, ErrNoFreeChannel, cause)
}

// PinRole names a physical signal of the shift register chains.
type PinRole string

const (
	ColSER   PinRole = "col_ser"
	ColSRCLK PinRole = "col_srclk"
	ColSRCLR PinRole = "col_srclr"
	ColOE    PinRole = "col_oe"
	RCLK     PinRole = "rclk"
	RowSER   PinRole = "row_ser"
	RowSRCLK PinRole = "row_srclk"
	RowSRCLR PinRole = "row_srclr"
	RowOE    PinRole = "row_oe"
)

var PinRoles = []PinRole{ColSER, ColSRCLK, ColSRCLR, ColOE, RCLK, RowSER, RowSRCLK, RowSRCLR, RowOE}

// PinMap assigns a GPIO number to every pin role.
type PinMap map[PinRole]int

// DefaultPins is the breadboard wiring the firmware shipped with.
func DefaultPins() PinMap {
	return PinMap{
		ColSER:   2,
		ColOE:    3,
		RCLK:     4,
		ColSRCLK: 5,
		ColSRCLR: 6,
		RowSER:   7,
		RowOE:    8,
		RowSRCLK: 9,
		RowSRCLR: 10,
	}
}

// Validate checks that every role is present, known, non-negative and
// assigned to a distinct GPIO.
func (m PinMap) Validate() error {
	known := map[PinRole]bool{}
	for _, r := range PinRoles {
		known[r] = true
	}
	for r := range m {
		if !known[r] {
			return fmt.Errorf("%w: unknown role %q", ErrInvalidPin, r)
		}
	}
	used := map[int]PinRole{}
	for _, r := range PinRoles {
		n, ok := m[r]
		if !ok {
			return fmt.Errorf("%w: %s not assigned", ErrInvalidPin, r)
		}
		if n < 0 {
			return fmt.Errorf("%w: %s has negative gpio %d", ErrInvalidPin, r, n)
		}
		if other, dup := used[n]; dup {
			return fmt.Errorf("%w: gpio %d used by both %s and %s", ErrInvalidPin, n, other, r)
		}
		used[n] = r
	}
	return nil
}

// Roles returns the assigned roles in a stable order.
func (m PinMap) Roles() []PinRole {
	out := make([]PinRole, 0, len(m))
	for r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
