//go:build rp2040

package main

import (
	"context"
	"machine"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/funtimes-ledwall/internal/bcm"
	"github.com/coreman2200/funtimes-ledwall/internal/panel"
	"github.com/coreman2200/funtimes-ledwall/internal/render"
	"github.com/coreman2200/funtimes-ledwall/internal/sequencer"
	"github.com/coreman2200/funtimes-ledwall/internal/sequencer/piobind"
	"github.com/coreman2200/funtimes-ledwall/internal/source"
)

const fps = 30

func main() {
	log := zerolog.New(machine.Serial).With().Timestamp().Logger()

	geom := panel.Default()
	loop, err := render.New(geom, bcm.DefaultDelayTable(), render.WithLogger(log))
	if err != nil {
		halt(log, err, "render loop")
	}
	if err := loop.Start(piobind.New(sequencer.DefaultPins())); err != nil {
		halt(log, err, "bind PIO channels")
	}

	// cycle through the bring-up patterns forever
	prog := source.Program{Loop: true}
	for _, k := range source.Kinds {
		prog.Clips = append(prog.Clips, source.Clip{Name: string(k), Pattern: k, Level: 255, DurationS: 10, XFadeS: 1})
	}
	player, err := source.NewPlayer(prog, geom, fps)
	if err != nil {
		halt(log, err, "playlist")
	}
	if err := source.Play(context.Background(), player, geom, fps, loop.SetFrame); err != nil {
		halt(log, err, "playlist stopped")
	}
	halt(log, player.Err(), "playlist finished")
}

func halt(log zerolog.Logger, err error, what string) {
	log.Error().Err(err).Msg(what)
	for {
		time.Sleep(time.Hour)
	}
}
