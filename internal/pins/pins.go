// Package pins turns a role to GPIO number map into output lines, either
// through periph's host drivers or the Linux GPIO character device.
package pins

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/coreman2200/funtimes-ledwall/internal/bitbang"
	"github.com/coreman2200/funtimes-ledwall/internal/sequencer"
)

const consumer = "ledwall"

// Idle is the level a line is driven to when it is claimed: output enables
// inactive (high), everything else low.
func Idle(r sequencer.PinRole) gpio.Level {
	return r == sequencer.ColOE || r == sequencer.RowOE
}

// Name is the periph name of GPIO n.
func Name(n int) string { return fmt.Sprintf("GPIO%d", n) }

// Periph initialises the host drivers and resolves every role by name.
func Periph(m sequencer.PinMap) (bitbang.Pins, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	return Resolve(m, gpioreg.ByName)
}

// Resolve looks up each role with byName and drives it to its idle level.
func Resolve(m sequencer.PinMap, byName func(string) gpio.PinIO) (bitbang.Pins, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	out := bitbang.Pins{}
	for _, r := range m.Roles() {
		name := Name(m[r])
		p := byName(name)
		if p == nil {
			return nil, fmt.Errorf("%w: %s: no gpio named %s", sequencer.ErrInvalidPin, r, name)
		}
		if err := p.Out(Idle(r)); err != nil {
			return nil, fmt.Errorf("%s (%s): %w", r, name, err)
		}
		out[r] = p
	}
	return out, nil
}

// line is the part of *gpiocdev.Line a Line drives.
type line interface {
	Offset() int
	SetValue(value int) error
	Close() error
}

// Line adapts a character device line to gpio.PinOut.
type Line struct {
	role sequencer.PinRole
	l    line
}

func (l *Line) String() string   { return fmt.Sprintf("%s(%d)", l.role, l.l.Offset()) }
func (l *Line) Name() string     { return string(l.role) }
func (l *Line) Number() int      { return l.l.Offset() }
func (l *Line) Function() string { return "Out" }
func (l *Line) Halt() error      { return nil }

func (l *Line) Out(v gpio.Level) error {
	if v {
		return l.l.SetValue(1)
	}
	return l.l.SetValue(0)
}

func (l *Line) PWM(gpio.Duty, physic.Frequency) error {
	return errors.New("pwm not supported on chardev lines")
}

func (l *Line) Close() error { return l.l.Close() }

// Lines is a set of requested character device lines.
type Lines struct {
	Pins  bitbang.Pins
	lines []*Line
}

func (s *Lines) Close() error {
	var errs []error
	for _, l := range s.lines {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.lines = nil
	return errors.Join(errs...)
}

// Chardev requests one output line per role on chip, treating each GPIO
// number as a line offset.
func Chardev(chip string, m sequencer.PinMap) (*Lines, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	set := &Lines{Pins: bitbang.Pins{}}
	for _, r := range m.Roles() {
		v := 0
		if Idle(r) {
			v = 1
		}
		l, err := gpiocdev.RequestLine(chip, m[r], gpiocdev.AsOutput(v), gpiocdev.WithConsumer(consumer))
		if err != nil {
			set.Close()
			return nil, fmt.Errorf("request %s on %s line %d: %w", r, chip, m[r], err)
		}
		line := &Line{role: r, l: l}
		set.lines = append(set.lines, line)
		set.Pins[r] = line
	}
	return set, nil
}
