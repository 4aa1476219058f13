//go:build rp2040

// Package piobind binds the sequencer roles to rp2040 PIO state machines.
package piobind

import (
	"machine"
	"runtime"

	pio "github.com/tinygo-org/pio/rp2-pio"

	"github.com/coreman2200/funtimes-ledwall/internal/panel"
	"github.com/coreman2200/funtimes-ledwall/internal/sequencer"
)

// colDataInvert flips the 24 data stages; the column drivers sink current.
const colDataInvert = 0x00FF_FFFF

type channel struct {
	sm     pio.StateMachine
	invert uint32
}

// Enqueue yields while the FIFO is full so other goroutines still get the
// core on the cooperative scheduler.
func (c channel) Enqueue(w uint32) {
	for c.sm.IsTxFIFOFull() {
		runtime.Gosched()
	}
	c.sm.TxPut(w ^ c.invert)
}

// Backend claims state machines on one PIO block.
type Backend struct {
	block *pio.PIO
	pins  sequencer.PinMap
}

func New(pins sequencer.PinMap) *Backend {
	return &Backend{block: pio.PIO0, pins: pins}
}

func (b *Backend) pin(r sequencer.PinRole) machine.Pin {
	return machine.Pin(b.pins[r])
}

func (b *Backend) Bind(g panel.Geometry) (*sequencer.Binding, error) {
	if err := b.pins.Validate(); err != nil {
		return nil, err
	}

	var claimed []claim
	fail := func(err error) (*sequencer.Binding, error) {
		for _, c := range claimed {
			c.release(b.block)
		}
		return nil, err
	}

	px, err := b.start(&claimed, sequencer.RolePixel, pixelProgram, func(cfg *pio.StateMachineConfig, sm pio.StateMachine) {
		cfg.SetFIFOJoin(pio.FifoJoinTx)
		b.out(cfg, sm, sequencer.ColSER, true, false)
		b.sideset(cfg, sm, sequencer.ColSRCLK)
		b.set(cfg, sm, sequencer.RCLK)
	})
	if err != nil {
		return fail(err)
	}
	row, err := b.start(&claimed, sequencer.RoleRow, rowProgram, func(cfg *pio.StateMachineConfig, sm pio.StateMachine) {
		b.out(cfg, sm, sequencer.RowSER, true, true)
		b.sideset(cfg, sm, sequencer.RowSRCLK)
	})
	if err != nil {
		return fail(err)
	}
	delay, err := b.start(&claimed, sequencer.RoleDelay, delayProgram, func(cfg *pio.StateMachineConfig, sm pio.StateMachine) {
		b.sideset(cfg, sm, sequencer.RowOE)
	})
	if err != nil {
		return fail(err)
	}

	oe := b.pin(sequencer.RowOE)
	blank := func() {
		oe.Configure(machine.PinConfig{Mode: machine.PinOutput})
		oe.High()
	}
	return sequencer.NewBinding(
		channel{sm: px, invert: colDataInvert},
		channel{sm: row},
		channel{sm: delay},
		blank,
	), nil
}

// claim is what one role took from the PIO block.
type claim struct {
	sm     pio.StateMachine
	offset uint8
	length uint8 // zero until the program is loaded
}

func (c claim) release(block *pio.PIO) {
	c.sm.SetEnabled(false)
	c.sm.Unclaim()
	if c.length > 0 {
		block.ClearProgramSection(c.offset, c.length)
	}
}

// start claims a state machine and program space for r. Whatever it claims
// is appended to claimed, so a failed Bind can hand it back.
func (b *Backend) start(claimed *[]claim, r sequencer.Role, prog []uint16, configure func(*pio.StateMachineConfig, pio.StateMachine)) (pio.StateMachine, error) {
	sm, err := b.block.ClaimStateMachine()
	if err != nil {
		return sm, sequencer.ClaimError(r, err)
	}
	offset, err := b.block.AddProgram(prog, -1)
	if err != nil {
		*claimed = append(*claimed, claim{sm: sm})
		return sm, sequencer.ClaimError(r, err)
	}
	*claimed = append(*claimed, claim{sm: sm, offset: offset, length: uint8(len(prog))})

	cfg := pio.DefaultStateMachineConfig()
	cfg.SetWrap(offset, offset+uint8(len(prog))-1)
	cfg.SetSidesetParams(1, false, false)
	cfg.SetClkDivIntFrac(1, 0)
	cfg.SetOutShift(true, true, 32)
	configure(&cfg, sm)

	sm.Init(offset, cfg)
	sm.SetEnabled(true)
	return sm, nil
}

func (b *Backend) claimPin(sm pio.StateMachine, r sequencer.PinRole) machine.Pin {
	p := b.pin(r)
	p.Configure(machine.PinConfig{Mode: b.block.PinMode()})
	sm.SetPindirsConsecutive(p, 1, true)
	return p
}

func (b *Backend) out(cfg *pio.StateMachineConfig, sm pio.StateMachine, r sequencer.PinRole, out, set bool) {
	p := b.claimPin(sm, r)
	if out {
		cfg.SetOutPins(p, 1)
	}
	if set {
		cfg.SetSetPins(p, 1)
	}
}

func (b *Backend) sideset(cfg *pio.StateMachineConfig, sm pio.StateMachine, r sequencer.PinRole) {
	cfg.SetSidesetPins(b.claimPin(sm, r))
}

func (b *Backend) set(cfg *pio.StateMachineConfig, sm pio.StateMachine, r sequencer.PinRole) {
	cfg.SetSetPins(b.claimPin(sm, r), 1)
}
