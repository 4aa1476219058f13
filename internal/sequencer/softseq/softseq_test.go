package softseq

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/funtimes-ledwall/internal/bcm"
	"github.com/coreman2200/funtimes-ledwall/internal/panel"
	"github.com/coreman2200/funtimes-ledwall/internal/sequencer"
)

// recordSink copies every row and can hold the drainer until released.
type recordSink struct {
	mu     sync.Mutex
	rows   []Row
	blanks int
	gate   chan struct{}
	got    chan struct{}
}

func newRecordSink(gated bool) *recordSink {
	s := &recordSink{got: make(chan struct{}, 64)}
	if gated {
		s.gate = make(chan struct{})
	}
	return s
}

func (s *recordSink) Row(r Row) {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	s.rows = append(s.rows, Row{Pixels: append([]uint32(nil), r.Pixels...), Control: r.Control, Delay: r.Delay})
	s.mu.Unlock()
	s.got <- struct{}{}
}

func (s *recordSink) Blank() {
	s.mu.Lock()
	s.blanks++
	s.mu.Unlock()
}

func TestBindDeliversRowsInLockStep(t *testing.T) {
	g := panel.Geometry{RowModules: 1, ColModules: 2, ColorBits: 8}
	sink := newRecordSink(false)
	b, err := New(sink).Bind(g)
	require.NoError(t, err)

	b.Pixel().Enqueue(0x11)
	b.Pixel().Enqueue(0x22 | bcm.EndOfRow)
	b.Row().Enqueue(5)
	b.Delay().Enqueue(100)

	b.Pixel().Enqueue(0x33)
	b.Pixel().Enqueue(0x44 | bcm.EndOfRow)
	b.Row().Enqueue(2)
	b.Delay().Enqueue(200)

	for i := 0; i < 2; i++ {
		select {
		case <-sink.got:
		case <-time.After(time.Second):
			t.Fatal("row not delivered")
		}
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.rows, 2)
	assert.Equal(t, []uint32{0x11, 0x22 | bcm.EndOfRow}, sink.rows[0].Pixels)
	assert.Equal(t, uint32(5), sink.rows[0].Control)
	assert.Equal(t, uint32(100), sink.rows[0].Delay)
	assert.Equal(t, []uint32{0x33, 0x44 | bcm.EndOfRow}, sink.rows[1].Pixels)
	assert.Equal(t, uint32(200), sink.rows[1].Delay)
}

func TestEnqueueBlocksWhenFIFOFull(t *testing.T) {
	g := panel.Geometry{RowModules: 1, ColModules: 1, ColorBits: 8}
	sink := newRecordSink(true)
	b, err := New(sink).Bind(g)
	require.NoError(t, err)

	// The drainer takes one full row and parks in the sink. After that the
	// row FIFO holds RowFIFODepth words and the next Enqueue must block.
	b.Pixel().Enqueue(bcm.EndOfRow)
	b.Delay().Enqueue(1)
	b.Row().Enqueue(2)

	done := make(chan struct{})
	go func() {
		for i := 0; i < sequencer.RowFIFODepth+1; i++ {
			b.Row().Enqueue(2)
		}
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("enqueue did not apply backpressure")
	case <-time.After(50 * time.Millisecond):
	}

	// Let the drainer finish the held row, then feed it one more row so it
	// pulls one row word off the FIFO.
	close(sink.gate)
	b.Pixel().Enqueue(bcm.EndOfRow)
	b.Delay().Enqueue(1)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue stayed blocked after the FIFO drained")
	}
}

func TestBindExhaustsLanes(t *testing.T) {
	g := panel.Default()
	be := New(newRecordSink(false))
	_, err := be.Bind(g)
	require.NoError(t, err)

	_, err = be.Bind(g)
	assert.True(t, errors.Is(err, sequencer.ErrNoFreeChannel), "got %v", err)

	_, err = New(newRecordSink(false), WithLanes(2)).Bind(g)
	assert.True(t, errors.Is(err, sequencer.ErrNoFreeChannel))
	assert.Contains(t, err.Error(), "delay")
}

func TestBlankReachesSink(t *testing.T) {
	sink := newRecordSink(false)
	b, err := New(sink).Bind(panel.Default())
	require.NoError(t, err)
	b.Blank()
	sink.mu.Lock()
	assert.Equal(t, 1, sink.blanks)
	sink.mu.Unlock()
}
