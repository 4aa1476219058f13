// Package softseq is a software stand-in for the hardware sequencer: three
// bounded FIFOs drained in lock-step by one goroutine that hands complete
// rows to a Sink.
package softseq

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/coreman2200/funtimes-ledwall/internal/bcm"
	"github.com/coreman2200/funtimes-ledwall/internal/panel"
	"github.com/coreman2200/funtimes-ledwall/internal/sequencer"
)

// Row is everything the three channels consume for one physical row.
// Pixels is reused by the drainer; sinks must copy what they keep.
type Row struct {
	Pixels  []uint32
	Control uint32
	Delay   uint32
}

// Sink receives rows on the drainer goroutine, in order.
type Sink interface {
	Row(r Row)
	Blank()
}

type fifo chan uint32

func (f fifo) Enqueue(w uint32) { f <- w }

// Backend hands out channels from a fixed pool of lanes, like a PIO block.
type Backend struct {
	mu    sync.Mutex
	sink  Sink
	log   zerolog.Logger
	lanes int
}

type Option func(*Backend)

// WithLanes sets how many channels the backend can hand out. Three are
// needed per binding.
func WithLanes(n int) Option {
	return func(b *Backend) { b.lanes = n }
}

func WithLogger(l zerolog.Logger) Option {
	return func(b *Backend) { b.log = l }
}

func New(sink Sink, opts ...Option) *Backend {
	b := &Backend{sink: sink, lanes: 4, log: zerolog.Nop()}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Bind claims three lanes and starts the drainer.
func (b *Backend) Bind(g panel.Geometry) (*sequencer.Binding, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var ch [3]fifo
	for i, r := range sequencer.Roles {
		if b.lanes-i <= 0 {
			return nil, sequencer.ClaimError(r, nil)
		}
		ch[i] = make(fifo, sequencer.FIFODepth(r))
	}
	b.lanes -= len(sequencer.Roles)

	d := &drainer{
		pixel: ch[0],
		row:   ch[1],
		delay: ch[2],
		cols:  g.ColModules,
		sink:  b.sink,
		log:   b.log,
	}
	go d.run()

	b.log.Debug().Int("col_modules", g.ColModules).Int("lanes_left", b.lanes).Msg("software sequencer bound")
	return sequencer.NewBinding(ch[0], ch[1], ch[2], b.sink.Blank), nil
}

type drainer struct {
	pixel, row, delay fifo
	cols              int
	sink              Sink
	log               zerolog.Logger
}

func (d *drainer) run() {
	pixels := make([]uint32, 0, d.cols)
	for {
		pixels = pixels[:0]
		for len(pixels) < d.cols {
			w := <-d.pixel
			pixels = append(pixels, w)
			if w&bcm.EndOfRow != 0 {
				break
			}
		}
		if len(pixels) != d.cols || pixels[len(pixels)-1]&bcm.EndOfRow == 0 {
			d.log.Warn().Int("words", len(pixels)).Int("want", d.cols).Msg("pixel stream lost row framing")
		}
		ctl := <-d.row
		delay := <-d.delay
		d.sink.Row(Row{Pixels: pixels, Control: ctl, Delay: delay})
	}
}
