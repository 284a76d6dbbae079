// Command render plays the instrument offline into a WAV file. The synth
// engine's sample counter drives the scheduler, so the output is identical
// for identical flags.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"time"

	"fractal-sequence/audio"
	"fractal-sequence/clock"
	"fractal-sequence/config"
	"fractal-sequence/debug"
	"fractal-sequence/pitch"
	"fractal-sequence/sequencer"
	"fractal-sequence/store"
	"fractal-sequence/synth"
)

const blockFrames = 256

// driven fires the manual tickers before each block so scheduling keeps
// pace with rendering.
type driven struct {
	engine   *synth.Engine
	sched    *clock.ManualTicker
	sampler  *clock.ManualTicker
	resample float64
}

func (d *driven) Process(dst []float32) {
	now := d.engine.CurrentTime()
	if d.sampler.Running() && now >= d.resample {
		d.sampler.Fire()
		d.resample = now + d.sampler.Period().Seconds()
	}
	d.sched.Fire()
	d.engine.Process(dst)
}

func main() {
	seconds := flag.Float64("seconds", 8, "length of the render in seconds")
	bpm := flag.Float64("bpm", 120, "tempo")
	depth := flag.Int("depth", 2, "sponge recursion depth (0-4)")
	notes := flag.Int("notes", 4, "number of simultaneous notes (grid rows)")
	rate := flag.Float64("rate", 120, "resampling rate of the active set")
	swing := flag.Float64("swing", 0, "swing amount 0-1")
	scale := flag.String("scale", pitch.DefaultScale, "scale name")
	microtonal := flag.Bool("microtonal", false, "keep the cents offset of each point")
	pattern := flag.String("pattern", "x...x...x...x...,..x...x...x...x.", "comma separated 16-step rows: x on, . off, < early, > late")
	sampleRate := flag.Int("sample-rate", audio.DefaultSampleRate, "render sample rate in Hz")
	soundFont := flag.String("soundfont", "", "SF2 file (oscillator voices when empty)")
	program := flag.Int("program", 0, "General MIDI program for -soundfont")
	defaults := config.DefaultConfig().Synth
	waveform := flag.String("waveform", defaults.Waveform, "oscillator waveform: triangle, sine, saw, square")
	attack := flag.Float64("attack", defaults.Attack, "oscillator attack in seconds")
	decay := flag.Float64("decay", defaults.Decay, "oscillator decay in seconds")
	sustain := flag.Float64("sustain", defaults.Sustain, "oscillator sustain level 0-1")
	release := flag.Float64("release", defaults.Release, "oscillator release in seconds")
	seed := flag.Uint64("seed", 1, "random seed for the sampler")
	out := flag.String("out", "fractal.wav", "output WAV file path")
	verbose := flag.Bool("v", false, "log to stderr")
	flag.Parse()

	if *verbose {
		debug.EnableWriter(os.Stderr)
	}

	cfg := config.DefaultConfig()
	cfg.Synth.SampleRate = *sampleRate
	cfg.Synth.SoundFont = *soundFont
	cfg.Synth.Program = *program
	cfg.Synth.Waveform = *waveform
	cfg.Synth.Attack, cfg.Synth.Decay = *attack, *decay
	cfg.Synth.Sustain, cfg.Synth.Release = *sustain, *release
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		cfg.Clamp()
	}

	voices, err := buildVoices(cfg.Synth)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	engine := synth.NewEngine(cfg.Synth.SampleRate, voices)
	defer engine.Close()

	params := store.DefaultParameters()
	params.Depth = *depth
	params.NumberOfNotes = *notes
	params.SamplingRate = *rate
	params.Swing = *swing
	params.Mapping.ScaleType = *scale
	params.Mapping.EnableMicrotonal = *microtonal
	if _, ok := pitch.LookupScale(*scale); !ok {
		fmt.Fprintf(os.Stderr, "Warning: unknown scale %q, using %s\n", *scale, pitch.DefaultScale)
	}

	d := &driven{
		engine:  engine,
		sched:   clock.NewManualTicker(),
		sampler: clock.NewManualTicker(),
	}
	mgr, err := sequencer.NewManager(sequencer.ManagerOptions{
		Clock:           engine,
		Sink:            engine,
		SchedulerTicker: d.sched,
		SamplerTicker:   d.sampler,
		Rand:            rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15)),
		Transport:       store.Transport{BPM: *bpm},
		Parameters:      params,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer mgr.Close()

	if err := applyPattern(mgr.Grid(), *pattern); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := mgr.Play(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	frames := int(float64(cfg.Synth.SampleRate) * *seconds)
	p := mgr.Parameters().Get()
	fmt.Printf("Rendering %.2fs at %d Hz, %.0f bpm, depth %d, %d notes, scale %s...\n",
		*seconds, cfg.Synth.SampleRate, mgr.Transport().Get().BPM, p.Depth, p.NumberOfNotes, p.Mapping.ScaleType)

	samples := audio.Render(d, frames, blockFrames)
	mgr.Stop()

	if err := audio.WriteWAV(*out, samples, cfg.Synth.SampleRate); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing WAV: %v\n", err)
		os.Exit(1)
	}
	snap := mgr.Snapshot()
	fmt.Printf("Wrote %s (%d frames, %d cubes, %d late notes, %d failures)\n",
		*out, frames, snap.Cubes, engine.Late(), snap.Failures)
}

func buildVoices(sc config.SynthConfig) (synth.Voices, error) {
	if sc.SoundFont != "" {
		sf, err := synth.LoadSoundFont(sc.SoundFont)
		if err != nil {
			return nil, err
		}
		return synth.NewSoundFontVoices(sf, sc.SampleRate, sc.Program)
	}
	return synth.NewOscillatorVoices(sc.SampleRate, sc.OscillatorParams()), nil
}

// applyPattern writes one pattern per row, cycling the list when there are
// more rows than patterns.
func applyPattern(g *sequencer.Grid, pattern string) error {
	rows := strings.Split(pattern, ",")
	for r := 0; r < g.RowCount(); r++ {
		row := strings.TrimSpace(rows[r%len(rows)])
		for i, c := range row {
			if i >= sequencer.NumSteps {
				break
			}
			st := sequencer.DefaultStep()
			switch c {
			case 'x', 'X':
				st.Active = true
			case '<':
				st.Active, st.Subdivision = true, -6
			case '>':
				st.Active, st.Subdivision = true, 6
			case '.', '-':
			default:
				return fmt.Errorf("pattern %q: unexpected %q", row, c)
			}
			if err := g.SetStep(r, i, st); err != nil {
				return err
			}
		}
	}
	return nil
}
