package source

import (
	"errors"
	"fmt"

	"github.com/coreman2200/funtimes-ledwall/internal/panel"
)

var ErrEmptyProgram = errors.New("program has no clips")

// Clip shows one source for DurationS seconds. The last XFadeS seconds of a
// clip blend into the next one.
type Clip struct {
	Name      string  `yaml:"name,omitempty"`
	Pattern   Kind    `yaml:"pattern,omitempty"`
	SVG       string  `yaml:"svg,omitempty"` // wins over Pattern
	Level     int     `yaml:"level,omitempty"`
	DurationS float64 `yaml:"duration_s"`
	XFadeS    float64 `yaml:"xfade_s,omitempty"`
}

// Open builds the clip's source.
func (c Clip) Open(g panel.Geometry) (Source, error) {
	if c.SVG != "" {
		return OpenSVG(c.SVG, g)
	}
	return NewPattern(c.Pattern, g, byte(c.Level))
}

type Program struct {
	Loop  bool   `yaml:"loop"`
	Clips []Clip `yaml:"clips"`
}

func (p Program) Validate() error {
	if len(p.Clips) == 0 {
		return ErrEmptyProgram
	}
	for i, c := range p.Clips {
		if c.DurationS <= 0 {
			return fmt.Errorf("clip %d: duration %.3gs must be positive", i, c.DurationS)
		}
		if c.XFadeS < 0 || c.XFadeS > c.DurationS {
			return fmt.Errorf("clip %d: crossfade %.3gs not in 0..%.3gs", i, c.XFadeS, c.DurationS)
		}
		if c.Level < 0 || c.Level > 255 {
			return fmt.Errorf("clip %d: level %d not in 0..255", i, c.Level)
		}
	}
	return nil
}

// Player steps a Program one frame at a time. It is a Source, so Play paces
// it like any other.
type Player struct {
	prog Program
	geom panel.Geometry
	open func(Clip) (Source, error)
	dt   float64

	idx  int
	nowS float64 // local time in the current clip
	cur  Source
	next Source // armed during the crossfade
	a, b []byte
	err  error
}

// NewPlayer opens the first clip. fps sets how much clip time one frame
// takes.
func NewPlayer(prog Program, g panel.Geometry, fps int) (*Player, error) {
	return newPlayer(prog, g, fps, func(c Clip) (Source, error) { return c.Open(g) })
}

func newPlayer(prog Program, g panel.Geometry, fps int, open func(Clip) (Source, error)) (*Player, error) {
	if err := prog.Validate(); err != nil {
		return nil, err
	}
	if fps <= 0 {
		return nil, fmt.Errorf("player needs a positive fps, got %d", fps)
	}
	p := &Player{
		prog: prog,
		geom: g,
		open: open,
		dt:   1 / float64(fps),
		a:    make([]byte, g.FrameSize()),
		b:    make([]byte, g.FrameSize()),
	}
	cur, err := open(prog.Clips[0])
	if err != nil {
		return nil, fmt.Errorf("clip 0: %w", err)
	}
	p.cur = cur
	return p, nil
}

// Clip returns the index of the clip now playing.
func (p *Player) Clip() int { return p.idx }

// Err reports why playback stopped early, if it did.
func (p *Player) Err() error { return p.err }

func (p *Player) nextIndex() int {
	ni := p.idx + 1
	if ni >= len(p.prog.Clips) {
		if p.prog.Loop {
			return 0
		}
		return -1
	}
	return ni
}

func (p *Player) Next(dst []byte) bool {
	// a source that runs dry ends its clip early; give up after a whole
	// program of dry clips
	for tries := 0; ; tries++ {
		if p.cur == nil || tries > len(p.prog.Clips) {
			return false
		}
		if p.cur.Next(p.a) {
			break
		}
		if !p.advance(p.nextIndex()) {
			return false
		}
	}
	clip := p.prog.Clips[p.idx]
	ni := p.nextIndex()

	remain := clip.DurationS - p.nowS
	if clip.XFadeS > 0 && remain <= clip.XFadeS && ni != -1 {
		if p.next == nil {
			nx, err := p.open(p.prog.Clips[ni])
			if err != nil {
				p.err = fmt.Errorf("clip %d: %w", ni, err)
				p.cur = nil
				return false
			}
			p.next = nx
		}
		if p.next.Next(p.b) {
			Mix(dst, p.a, p.b, 1-remain/clip.XFadeS)
		} else {
			copy(dst, p.a)
		}
	} else {
		copy(dst, p.a)
	}

	p.nowS += p.dt
	if p.nowS >= clip.DurationS-p.dt/2 {
		p.advance(ni)
	}
	return true
}

// advance moves to clip ni, reusing the source armed by the crossfade so it
// keeps its state.
func (p *Player) advance(ni int) bool {
	if ni == -1 {
		p.cur = nil
		return false
	}
	nx := p.next
	p.next = nil
	if nx == nil {
		var err error
		if nx, err = p.open(p.prog.Clips[ni]); err != nil {
			p.err = fmt.Errorf("clip %d: %w", ni, err)
			p.cur = nil
			return false
		}
	}
	p.idx = ni
	p.nowS = 0
	p.cur = nx
	return true
}

// Mix blends a and b into dst with alpha in 0..1.
func Mix(dst, a, b []byte, alpha float64) {
	if alpha <= 0 {
		copy(dst, a)
		return
	}
	if alpha >= 1 {
		copy(dst, b)
		return
	}
	for i := range dst {
		dst[i] = byte(float64(a[i])*(1-alpha) + float64(b[i])*alpha + 0.5)
	}
}
