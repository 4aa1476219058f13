// Package render runs the phase scheduler: it streams one bit-plane per pass
// into the sequencer channels and rotates through the planes forever.
package render

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/coreman2200/funtimes-ledwall/internal/bcm"
	"github.com/coreman2200/funtimes-ledwall/internal/panel"
	"github.com/coreman2200/funtimes-ledwall/internal/sequencer"
)

var ErrAlreadyStarted = errors.New("render loop already started")

// generation slots; state holds the index of the published slot and the
// fresh bit
const (
	slotMask  = 0x3
	freshFlag = 0x4
)

// Loop owns the encoded generations and the render state.
//
// SetFrame may be called from any goroutine. Pass and Run must only ever be
// driven by one goroutine at a time.
type Loop struct {
	geom   panel.Geometry
	enc    *bcm.Encoder
	delays bcm.DelayTable
	log    zerolog.Logger

	gens  [3]*bcm.Planes
	state atomic.Uint32
	front int // reader's slot

	mu    sync.Mutex // writers
	back  int        // writer's slot
	frame []byte

	ready   atomic.Bool
	phase   atomic.Int32
	passes  atomic.Uint64
	frames  atomic.Uint64
	started atomic.Bool
	blanked atomic.Bool
	out     atomic.Pointer[sequencer.Binding]
}

type Option func(*Loop)

func WithLogger(l zerolog.Logger) Option {
	return func(lp *Loop) { lp.log = l }
}

// New prepares a loop for g. The delay table must have an entry for every
// rendered colour bit.
func New(g panel.Geometry, delays bcm.DelayTable, opts ...Option) (*Loop, error) {
	enc, err := bcm.NewEncoder(g)
	if err != nil {
		return nil, err
	}
	if err := delays.Covers(g.ColorBits); err != nil {
		return nil, err
	}
	l := &Loop{
		geom:   g,
		enc:    enc,
		delays: delays,
		log:    zerolog.Nop(),
		front:  0,
		back:   2,
	}
	for i := range l.gens {
		l.gens[i] = bcm.NewPlanes(g)
	}
	l.state.Store(1)
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

func (l *Loop) Geometry() panel.Geometry { return l.geom }

// SetFrame encodes frame into an idle generation and publishes it. The loop
// switches to it at the start of its next pass. A frame of the wrong size
// is rejected and the current generation keeps rendering.
func (l *Loop) SetFrame(frame []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.enc.Encode(l.gens[l.back], frame); err != nil {
		return fmt.Errorf("set frame: %w", err)
	}
	if l.frame == nil {
		l.frame = make([]byte, len(frame))
	}
	copy(l.frame, frame)

	prev := l.state.Swap(uint32(l.back) | freshFlag)
	l.back = int(prev & slotMask)
	l.frames.Add(1)
	l.ready.Store(true)
	return nil
}

// Frame returns a copy of the last accepted raw frame, or nil before the
// first SetFrame.
func (l *Loop) Frame() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.frame == nil {
		return nil
	}
	return append([]byte(nil), l.frame...)
}

// acquire moves the reader onto the newest published generation.
func (l *Loop) acquire() {
	if l.state.Load()&freshFlag == 0 {
		return
	}
	prev := l.state.Swap(uint32(l.front))
	l.front = int(prev & slotMask)
}

// Pass streams the current phase's plane, row by row, then advances the
// phase. It does nothing until a frame has been set. Each Enqueue blocks
// while its channel is full.
func (l *Loop) Pass(out *sequencer.Binding) {
	if !l.ready.Load() {
		return
	}
	l.acquire()

	g := l.geom
	p := int(l.phase.Load())
	planes := l.gens[l.front]
	delay := l.delays.Cycles(p)
	px, row, dl := out.Pixel(), out.Row(), out.Delay()

	for y := 0; y < g.Rows(); y++ {
		words := planes.Row(p, y)
		for _, w := range words[:g.ColModules] {
			px.Enqueue(w)
		}
		row.Enqueue(words[g.ColModules])
		dl.Enqueue(delay)
	}

	l.phase.Store(int32((p + 1) % g.ColorBits))
	l.passes.Add(1)
}

// Run calls Pass forever.
func (l *Loop) Run(out *sequencer.Binding) {
	for {
		if !l.ready.Load() {
			runtime.Gosched()
			continue
		}
		l.Pass(out)
	}
}

// Start binds the sequencer channels and runs the loop on a dedicated OS
// thread. A bind failure is returned and is final: channel exhaustion does
// not clear up, so later calls report ErrAlreadyStarted.
func (l *Loop) Start(be sequencer.Backend) error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	b, err := be.Bind(l.geom)
	if err != nil {
		return fmt.Errorf("start render loop: %w", err)
	}
	l.out.Store(b)

	l.log.Info().
		Str("geometry", l.geom.String()).
		Int("phases", l.geom.ColorBits).
		Uint32("longest_delay_cycles", l.delays.Cycles(l.geom.ColorBits-1)).
		Msg("render loop starting")

	go func() {
		runtime.LockOSThread()
		l.Run(b)
	}()
	return nil
}

// StopOutput blanks the wall. Rendering carries on behind the blanked
// output enable.
func (l *Loop) StopOutput() {
	b := l.out.Load()
	if b == nil {
		return
	}
	b.Blank()
	if !l.blanked.Swap(true) {
		l.log.Info().Msg("output stopped")
	}
}

// Phase is the bit-plane the next pass will emit.
func (l *Loop) Phase() int { return int(l.phase.Load()) }

func (l *Loop) Ready() bool { return l.ready.Load() }

// Stats is a point-in-time view for status reporting.
type Stats struct {
	Ready   bool   `json:"ready"`
	Started bool   `json:"started"`
	Blanked bool   `json:"blanked"`
	Phase   int    `json:"phase"`
	Passes  uint64 `json:"passes"`
	Frames  uint64 `json:"frames"`
}

func (l *Loop) Stats() Stats {
	return Stats{
		Ready:   l.ready.Load(),
		Started: l.out.Load() != nil,
		Blanked: l.blanked.Load(),
		Phase:   int(l.phase.Load()),
		Passes:  l.passes.Load(),
		Frames:  l.frames.Load(),
	}
}
