// Package bitbang drives the wall's shift register chains directly from
// host GPIO lines. It receives complete rows from the software sequencer
// and replays the three channel waveforms one edge at a time.
package bitbang

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"

	"github.com/coreman2200/funtimes-ledwall/internal/bcm"
	"github.com/coreman2200/funtimes-ledwall/internal/sequencer"
	"github.com/coreman2200/funtimes-ledwall/internal/sequencer/softseq"
)

// stagesPerWord is the number of shift register stages one pixel word
// covers, placeholders included.
const stagesPerWord = 24

// Pins maps every pin role to an output line.
type Pins map[sequencer.PinRole]gpio.PinOut

// Sink is a softseq.Sink that bit-bangs each row.
type Sink struct {
	colSER, colSRCLK, colSRCLR, colOE gpio.PinOut
	rclk                              gpio.PinOut
	rowSER, rowSRCLK, rowSRCLR, rowOE gpio.PinOut

	nsPerCycle uint32
	wait       func(time.Duration)
	log        zerolog.Logger

	mu      sync.Mutex // row OE
	blanked bool

	errMu sync.Mutex
	err   error
}

var _ softseq.Sink = (*Sink)(nil)

type Option func(*Sink)

func WithLogger(l zerolog.Logger) Option { return func(s *Sink) { s.log = l } }

// WithNsPerCycle sets the length of one delay-channel cycle.
func WithNsPerCycle(ns uint32) Option { return func(s *Sink) { s.nsPerCycle = ns } }

// WithWait replaces the busy wait used to hold output enable.
func WithWait(fn func(time.Duration)) Option { return func(s *Sink) { s.wait = fn } }

func New(p Pins, opts ...Option) (*Sink, error) {
	for _, r := range sequencer.PinRoles {
		if p[r] == nil {
			return nil, fmt.Errorf("%w: %s has no line", sequencer.ErrInvalidPin, r)
		}
	}
	s := &Sink{
		colSER:     p[sequencer.ColSER],
		colSRCLK:   p[sequencer.ColSRCLK],
		colSRCLR:   p[sequencer.ColSRCLR],
		colOE:      p[sequencer.ColOE],
		rclk:       p[sequencer.RCLK],
		rowSER:     p[sequencer.RowSER],
		rowSRCLK:   p[sequencer.RowSRCLK],
		rowSRCLR:   p[sequencer.RowSRCLR],
		rowOE:      p[sequencer.RowOE],
		nsPerCycle: bcm.DefaultNsPerCycle,
		wait:       spin,
		log:        zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func spin(d time.Duration) {
	for start := time.Now(); time.Since(start) < d; {
	}
}

func (s *Sink) out(p gpio.PinOut, l gpio.Level) {
	err := p.Out(l)
	if err == nil {
		return
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = fmt.Errorf("drive %s: %w", p, err)
		s.log.Error().Err(err).Str("pin", p.String()).Msg("gpio write failed")
	}
}

// pulse raises then lowers p; both registers capture on the rising edge.
func (s *Sink) pulse(p gpio.PinOut) {
	s.out(p, gpio.High)
	s.out(p, gpio.Low)
}

func (s *Sink) clear(srclk, srclr gpio.PinOut) {
	s.out(srclr, gpio.Low)
	s.pulse(srclk)
	s.out(srclr, gpio.High)
}

// Init puts the chains in a known state: outputs off, registers cleared,
// then column output enabled for good since rows gate the light.
func (s *Sink) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.out(s.colOE, gpio.High)
	s.out(s.rowOE, gpio.High)
	for _, p := range []gpio.PinOut{s.colSER, s.rclk, s.colSRCLK, s.rowSER, s.rowSRCLK} {
		s.out(p, gpio.Low)
	}

	s.clear(s.colSRCLK, s.colSRCLR)
	s.pulse(s.rclk)
	s.out(s.colOE, gpio.Low)

	s.clear(s.rowSRCLK, s.rowSRCLR)
	s.pulse(s.rclk)

	s.log.Debug().Msg("shift registers initialised")
	return s.Err()
}

// Row shifts the pixel words LSB first with the data line inverted, shifts
// the row chain, latches both, then lights the row for the delay.
func (s *Sink) Row(r softseq.Row) {
	for _, w := range r.Pixels {
		for i := 0; i < stagesPerWord; i++ {
			s.out(s.colSER, gpio.Level(w&(1<<i) == 0))
			s.pulse(s.colSRCLK)
		}
	}

	first, pulses := bcm.SplitControl(r.Control)
	for i := uint32(0); i < pulses; i++ {
		s.out(s.rowSER, gpio.Level(i == 0 && first))
		s.pulse(s.rowSRCLK)
	}
	s.out(s.rowSER, gpio.Low)
	s.pulse(s.rclk)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blanked {
		return
	}
	s.out(s.rowOE, gpio.Low)
	s.wait(time.Duration(r.Delay) * time.Duration(s.nsPerCycle))
	s.out(s.rowOE, gpio.High)
}

// Blank holds row output enable inactive from now on.
func (s *Sink) Blank() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blanked = true
	s.out(s.rowOE, gpio.High)
}

// Err returns the first GPIO write failure, if any.
func (s *Sink) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}
