package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"fractal-sequence/audio"
	"fractal-sequence/clock"
	"fractal-sequence/config"
	"fractal-sequence/debug"
	"fractal-sequence/midi"
	"fractal-sequence/sequencer"
	"fractal-sequence/store"
	"fractal-sequence/synth"
	"fractal-sequence/theme"
	"fractal-sequence/tui"
)

// output is the sound destination: a clock plus the sink notes go to.
type output struct {
	name  string
	clock clock.Clock
	sink  sequencer.NoteSink
	ports *midi.PortWatcher
	close func()
}

func main() {
	configPath := flag.String("config", "", "config file (default ~/.config/fractal-sequence/config.json)")
	logLevel := flag.String("log-level", "info", "debug log level: debug, info, warn, error")
	debugLog := flag.Bool("debug", false, "write a debug log to ~/.config/fractal-sequence/debug.log")
	dest := flag.String("output", "", "\"synth\" or a MIDI output port name (overrides config)")
	soundFont := flag.String("soundfont", "", "SF2 file for the built-in synth (overrides config)")
	noSave := flag.Bool("no-save", false, "do not write tempo and parameters back on exit")
	flag.Parse()

	path := *configPath
	if path == "" {
		p, err := config.ConfigPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		path = p
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config %q: %v\n", path, err)
		os.Exit(1)
	}
	switch *dest {
	case "":
	case config.OutputSynth:
		cfg.Output.Mode = config.OutputSynth
	default:
		cfg.Output.Mode = config.OutputMIDI
		cfg.Output.PortName = *dest
	}
	if *soundFont != "" {
		cfg.Synth.SoundFont = *soundFont
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults for those fields)\n", err)
	}
	cfg.Clamp()

	debug.SetLevel(*logLevel)
	if *debugLog {
		if err := debug.Enable(""); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: debug log: %v\n", err)
		}
		defer debug.Disable()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	out, err := openOutput(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer out.close()

	manager, err := sequencer.NewManager(sequencer.ManagerOptions{
		Clock:      out.clock,
		Sink:       out.sink,
		Transport:  store.Transport{BPM: cfg.Tempo},
		Parameters: cfg.Parameters,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer manager.Close()

	palette, err := theme.LoadOrDefault(cfg.UI.Palette)
	if err != nil {
		debug.Warn("main", "palette %q: %v, using plasma", cfg.UI.Palette, err)
	}
	th := theme.New(palette)

	m := tui.NewModel(ctx, manager, out.ports, th, out.name)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if !*noSave {
		cfg.Tempo = manager.Transport().Get().BPM
		cfg.Parameters = manager.Parameters().Get()
		if err := cfg.SaveTo(path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: saving config: %v\n", err)
		}
	}
}

func openOutput(ctx context.Context, cfg *config.Config) (*output, error) {
	if cfg.Output.Mode == config.OutputMIDI {
		return openMIDI(ctx, cfg)
	}
	return openSynth(cfg)
}

// openSynth renders through the built-in engine; the engine's sample counter
// is the clock, so note timing is sample accurate.
func openSynth(cfg *config.Config) (*output, error) {
	sr := cfg.Synth.SampleRate
	var voices synth.Voices
	var name string
	if cfg.Synth.SoundFont != "" {
		sf, err := synth.LoadSoundFont(cfg.Synth.SoundFont)
		if err != nil {
			return nil, err
		}
		sfv, err := synth.NewSoundFontVoices(sf, sr, cfg.Synth.Program)
		if err != nil {
			return nil, err
		}
		voices = sfv
		name = "synth:sf2"
	} else {
		params := cfg.Synth.OscillatorParams()
		voices = synth.NewOscillatorVoices(sr, params)
		name = "synth:" + params.Waveform.String()
	}

	engine := synth.NewEngine(sr, voices)
	engine.SetGain(cfg.Synth.Gain)
	latency := time.Duration(cfg.Synth.LatencyMs) * time.Millisecond
	player, err := audio.NewPlayer(sr, engine, latency)
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("open audio: %w", err)
	}
	player.Play()
	debug.Log("main", "synth output sr=%d voices=%s latency=%s", sr, name, latency)

	return &output{
		name:  name,
		clock: engine,
		sink:  engine,
		close: func() {
			engine.Close()
			if err := player.Stop(); err != nil {
				debug.Warn("main", "stop audio: %v", err)
			}
		},
	}, nil
}

func openMIDI(ctx context.Context, cfg *config.Config) (*output, error) {
	send, err := midi.OpenOut(cfg.Output.PortName)
	if err != nil {
		return nil, err
	}
	clk := clock.NewWall()
	sink := midi.NewPortSink(clk, send, midi.SinkOptions{
		Channels:  cfg.MIDIChannels(),
		BendRange: cfg.Output.BendRange,
	})
	ports := midi.NewPortWatcher(cfg.Output.PortName)
	go ports.Run(ctx)
	debug.Log("main", "midi output port=%q", cfg.Output.PortName)

	return &output{
		name:  "midi:" + cfg.Output.PortName,
		clock: clk,
		sink:  sink,
		ports: ports,
		close: func() {
			sink.Close()
			clk.Close()
		},
	}, nil
}
