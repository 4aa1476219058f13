package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-ledwall/internal/bitbang"
	"github.com/coreman2200/funtimes-ledwall/internal/config"
	diag "github.com/coreman2200/funtimes-ledwall/internal/diagnostics"
	"github.com/coreman2200/funtimes-ledwall/internal/emu"
	"github.com/coreman2200/funtimes-ledwall/internal/pins"
	"github.com/coreman2200/funtimes-ledwall/internal/preview"
	"github.com/coreman2200/funtimes-ledwall/internal/render"
	"github.com/coreman2200/funtimes-ledwall/internal/sequencer/softseq"
	"github.com/coreman2200/funtimes-ledwall/internal/source"
	"github.com/coreman2200/funtimes-ledwall/internal/ws"
)

func main() {
	// ---- Flags (override config.yaml when given) ----
	var (
		configPath  = flag.String("config", "config.yaml", "path to config.yaml")
		driver      = flag.String("driver", "", "driver: sim | gpio | gpiocdev")
		addr        = flag.String("addr", "", "HTTP listen address")
		pattern     = flag.String("pattern", "", "test pattern: solid | gradient | sweep | planes")
		svg         = flag.String("svg", "", "SVG file to show instead of a pattern")
		fps         = flag.Int("fps", -1, "source frames per second (0 = send once)")
		showPreview = flag.Bool("preview", false, "mirror the emulated wall on the console or a WS2812 matrix")
		simOnly     = flag.Bool("sim-only", false, "force simulation (no hardware output)")
		writeConfig = flag.Bool("write-config", false, "write the effective config to -config and exit")
		debug       = flag.Bool("debug", false, "debug logging")
	)
	flag.Parse()

	// ---- Logging ----
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})

	// ---- Config ----
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("config load failed; proceeding with defaults and flags")
		cfg = config.Default()
	}
	if *driver != "" {
		cfg.Driver = *driver
	}
	if *simOnly {
		cfg.Driver = config.DriverSim
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *pattern != "" {
		cfg.Source.Pattern = *pattern
		cfg.Source.Playlist = nil
	}
	if *svg != "" {
		cfg.Source.SVG = *svg
		cfg.Source.Playlist = nil
	}
	if *fps >= 0 {
		cfg.Source.FPS = *fps
	}
	if *showPreview {
		cfg.Preview.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("bad configuration")
	}
	if *writeConfig {
		if err := config.Save(*configPath, cfg); err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("write config")
		}
		log.Info().Str("path", *configPath).Msg("config written")
		return
	}

	delays, err := cfg.Delays()
	if err != nil {
		log.Fatal().Err(err).Msg("bad timing")
	}
	geom := cfg.Panel

	// ---- Sink selection; pin failures fall back to the simulator ----
	var (
		sink  softseq.Sink
		wall  *emu.Panel
		bang  *bitbang.Sink
		lines *pins.Lines
	)
	selected := cfg.Driver
	switch selected {
	case config.DriverGPIO, config.DriverGPIOCdev:
		var p bitbang.Pins
		if selected == config.DriverGPIO {
			p, err = pins.Periph(cfg.Pins.Map)
		} else {
			lines, err = pins.Chardev(cfg.Pins.Chip, cfg.Pins.Map)
			if err == nil {
				p = lines.Pins
			}
		}
		if err == nil {
			bang, err = bitbang.New(p,
				bitbang.WithNsPerCycle(cfg.Timing.NsPerCycle),
				bitbang.WithLogger(log.With().Str("component", "bitbang").Logger()))
		}
		if err == nil {
			err = bang.Init()
		}
		if err != nil {
			log.Warn().Err(err).Str("driver", selected).Msg("GPIO init failed; falling back to SIM")
			if lines != nil {
				_ = lines.Close()
				lines = nil
			}
			bang = nil
			selected = config.DriverSim
		} else {
			sink = bang
		}
	}
	if selected == config.DriverSim {
		wall = emu.New(geom)
		sink = wall
	}

	// ---- Render loop ----
	loop, err := render.New(geom, delays, render.WithLogger(log.With().Str("component", "render").Logger()))
	if err != nil {
		log.Fatal().Err(err).Msg("render loop")
	}
	backend := softseq.New(sink, softseq.WithLogger(log.With().Str("component", "softseq").Logger()))
	if err := loop.Start(backend); err != nil {
		log.Fatal().Err(err).Msg("bind sequencer channels")
	}

	state := ws.NewState(loop, selected)
	state.Log = log.With().Str("component", "ws").Logger()
	if wall != nil {
		state.Emu = wall
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- Frame source ----
	var src source.Source
	if cfg.Source.Playlist != nil {
		src, err = source.NewPlayer(*cfg.Source.Playlist, geom, cfg.Source.FPS)
	} else if cfg.Source.SVG != "" {
		src, err = source.OpenSVG(cfg.Source.SVG, geom)
	} else {
		src, err = source.NewPattern(source.Kind(cfg.Source.Pattern), geom, byte(cfg.Source.Level))
	}
	if err != nil {
		log.Fatal().Err(err).Msg("frame source")
	}
	go func() {
		err := source.Play(ctx, src, geom, cfg.Source.FPS, loop.SetFrame)
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("frame source stopped")
			return
		}
		state.PushDiag(diag.New(diag.Info, diag.SourceDone, "Frame source finished"))
	}()

	// ---- Preview ----
	var pv *preview.Renderer
	if cfg.Preview.Enabled && wall != nil {
		pv, err = preview.Open(cfg.Preview.SPI, preview.Layout{Width: cfg.Preview.Width, Height: cfg.Preview.Height}, log.Logger)
		if err != nil {
			log.Warn().Err(err).Msg("preview disabled")
		} else {
			go func() {
				ticker := time.NewTicker(time.Second / time.Duration(max(1, cfg.Preview.FPS)))
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						if err := pv.Render(wall.Snapshot()); err != nil {
							log.Warn().Err(err).Msg("preview render")
						}
					}
				}
			}()
		}
	}

	// ---- Sink fault watch ----
	if bang != nil {
		go func() {
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := bang.Err(); err != nil {
						log.Error().Err(err).Msg("output driver fault")
						state.PushDiag(diag.Fault(err, selected))
						return
					}
				}
			}
		}()
	}

	// ---- HTTP ----
	var srv *http.Server
	if cfg.Server.Addr != "" {
		srv = &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      withCORS(state.Mux()),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go state.RunSnapshotLoop(max(1, cfg.Preview.FPS), ctx.Done())
		go func() {
			log.Info().Str("addr", cfg.Server.Addr).Str("driver", selected).Msg("HTTP server starting")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal().Err(err).Msg("http server crashed")
			}
		}()
	}

	// ---- Graceful shutdown ----
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	s := <-ch
	log.Info().Str("signal", s.String()).Msg("shutting down")

	loop.StopOutput()
	cancel()
	if srv != nil {
		_ = srv.Close()
	}
	if pv != nil {
		_ = pv.Clear()
	}
	if lines != nil {
		_ = lines.Close()
	}
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(200)
			return
		}
		h.ServeHTTP(w, r)
	})
}
