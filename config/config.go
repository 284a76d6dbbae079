package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"fractal-sequence/geometry"
	"fractal-sequence/pitch"
	"fractal-sequence/store"
	"fractal-sequence/synth"
)

var ErrInvalid = errors.New("config: invalid value")

// Output modes
const (
	OutputSynth = "synth"
	OutputMIDI  = "midi"
)

// OutputConfig selects where notes go
type OutputConfig struct {
	Mode      string  `json:"mode"`
	PortName  string  `json:"portName,omitempty"`
	Channels  []int   `json:"channels,omitempty"`
	BendRange float64 `json:"bendRange,omitempty"`
}

// Envelope stage bounds in seconds
const (
	MinEnvelope = 0.001
	MaxEnvelope = 2.0
)

// SynthConfig configures the built-in engine. Attack, Decay and Release are
// seconds; Sustain is a level.
type SynthConfig struct {
	SampleRate int     `json:"sampleRate"`
	SoundFont  string  `json:"soundFont,omitempty"`
	Program    int     `json:"program,omitempty"`
	Waveform   string  `json:"waveform,omitempty"`
	Gain       float64 `json:"gain"`
	LatencyMs  int     `json:"latencyMs,omitempty"`
	Attack     float64 `json:"attack"`
	Decay      float64 `json:"decay"`
	Sustain    float64 `json:"sustain"`
	Release    float64 `json:"release"`
}

// OscillatorParams converts the waveform and envelope for the oscillator
// voices. Unknown waveforms fall back to the default.
func (s SynthConfig) OscillatorParams() synth.OscillatorParams {
	p := synth.DefaultOscillatorParams()
	if w, ok := synth.ParseWaveform(s.Waveform); ok {
		p.Waveform = w
	}
	p.AttackSec = s.Attack
	p.DecaySec = s.Decay
	p.Sustain = s.Sustain
	p.ReleaseSec = s.Release
	return p
}

func clampEnvelope(v, def float64) float64 {
	if math.IsNaN(v) {
		return def
	}
	return math.Min(math.Max(v, MinEnvelope), MaxEnvelope)
}

func envelopeInRange(v float64) bool {
	return v >= MinEnvelope && v <= MaxEnvelope
}

// UIConfig stores UI preferences
type UIConfig struct {
	Palette string `json:"palette,omitempty"` // GIMP .gpl file
}

// Config is the main configuration structure
type Config struct {
	Tempo      float64          `json:"tempo"`
	Parameters store.Parameters `json:"parameters"`
	Output     OutputConfig     `json:"output"`
	Synth      SynthConfig      `json:"synth"`
	UI         UIConfig         `json:"ui,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	osc := synth.DefaultOscillatorParams()
	return &Config{
		Tempo:      store.DefaultTransport().BPM,
		Parameters: store.DefaultParameters(),
		Output:     OutputConfig{Mode: OutputSynth},
		Synth: SynthConfig{
			SampleRate: 44100,
			Waveform:   synth.Triangle.String(),
			Gain:       0.75,
			LatencyMs:  50,
			Attack:     osc.AttackSec,
			Decay:      osc.DecaySec,
			Sustain:    osc.Sustain,
			Release:    osc.ReleaseSec,
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "fractal-sequence"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads path. Fields missing from the file keep their defaults.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

func (c *Config) SaveTo(path string) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func invalid(field string, v any) error {
	return fmt.Errorf("%w: %s = %v", ErrInvalid, field, v)
}

// Validate reports every out-of-range field.
func (c *Config) Validate() error {
	var errs []error
	p := c.Parameters
	if math.IsNaN(c.Tempo) || c.Tempo < store.MinBPM || c.Tempo > store.MaxBPM {
		errs = append(errs, invalid("tempo", c.Tempo))
	}
	if math.IsNaN(p.SamplingRate) || p.SamplingRate < store.MinSamplingRate || p.SamplingRate > store.MaxSamplingRate {
		errs = append(errs, invalid("parameters.samplingRate", p.SamplingRate))
	}
	if p.NumberOfNotes < store.MinNumberOfNotes || p.NumberOfNotes > store.MaxNumberOfNotes {
		errs = append(errs, invalid("parameters.numberOfNotes", p.NumberOfNotes))
	}
	if math.IsNaN(p.Swing) || p.Swing < 0 || p.Swing > 1 {
		errs = append(errs, invalid("parameters.swing", p.Swing))
	}
	if p.Depth < 0 || p.Depth > geometry.MaxDepth {
		errs = append(errs, invalid("parameters.depth", p.Depth))
	}
	if !(p.Size > 0) || math.IsInf(p.Size, 0) {
		errs = append(errs, invalid("parameters.size", p.Size))
	}
	if p.Mapping != p.Mapping.Clamp() {
		errs = append(errs, invalid("parameters.mapping", fmt.Sprintf("%+v", p.Mapping)))
	}
	if _, ok := pitch.LookupScale(p.Mapping.ScaleType); !ok {
		errs = append(errs, invalid("parameters.mapping.scaleType", p.Mapping.ScaleType))
	}

	switch c.Output.Mode {
	case OutputSynth:
	case OutputMIDI:
		if c.Output.PortName == "" {
			errs = append(errs, invalid("output.portName", `""`))
		}
		for _, ch := range c.Output.Channels {
			if ch < 0 || ch > 15 {
				errs = append(errs, invalid("output.channels", ch))
			}
		}
	default:
		errs = append(errs, invalid("output.mode", c.Output.Mode))
	}

	if c.Synth.SampleRate < 8000 || c.Synth.SampleRate > 192000 {
		errs = append(errs, invalid("synth.sampleRate", c.Synth.SampleRate))
	}
	if _, ok := synth.ParseWaveform(c.Synth.Waveform); !ok && c.Synth.Waveform != "" {
		errs = append(errs, invalid("synth.waveform", c.Synth.Waveform))
	}
	if c.Synth.Program < 0 || c.Synth.Program > 127 {
		errs = append(errs, invalid("synth.program", c.Synth.Program))
	}
	if math.IsNaN(c.Synth.Gain) || c.Synth.Gain < 0 || c.Synth.Gain > 1 {
		errs = append(errs, invalid("synth.gain", c.Synth.Gain))
	}
	for _, f := range []struct {
		name string
		v    float64
	}{{"synth.attack", c.Synth.Attack}, {"synth.decay", c.Synth.Decay}, {"synth.release", c.Synth.Release}} {
		if !envelopeInRange(f.v) {
			errs = append(errs, invalid(f.name, f.v))
		}
	}
	if math.IsNaN(c.Synth.Sustain) || c.Synth.Sustain < 0 || c.Synth.Sustain > 1 {
		errs = append(errs, invalid("synth.sustain", c.Synth.Sustain))
	}
	return errors.Join(errs...)
}

// Clamp forces every field into range, replacing unknown names with
// defaults.
func (c *Config) Clamp() {
	def := DefaultConfig()
	c.Tempo = store.Transport{BPM: c.Tempo}.Clamp().BPM
	c.Parameters = c.Parameters.Clamp()

	if c.Output.Mode != OutputMIDI || c.Output.PortName == "" {
		c.Output.Mode = OutputSynth
	}
	chans := c.Output.Channels[:0]
	for _, ch := range c.Output.Channels {
		if ch >= 0 && ch <= 15 {
			chans = append(chans, ch)
		}
	}
	c.Output.Channels = chans

	if c.Synth.SampleRate < 8000 || c.Synth.SampleRate > 192000 {
		c.Synth.SampleRate = def.Synth.SampleRate
	}
	if _, ok := synth.ParseWaveform(c.Synth.Waveform); !ok {
		c.Synth.Waveform = def.Synth.Waveform
	}
	c.Synth.Program = min(max(c.Synth.Program, 0), 127)
	if math.IsNaN(c.Synth.Gain) {
		c.Synth.Gain = def.Synth.Gain
	}
	c.Synth.Gain = math.Min(math.Max(c.Synth.Gain, 0), 1)

	c.Synth.Attack = clampEnvelope(c.Synth.Attack, def.Synth.Attack)
	c.Synth.Decay = clampEnvelope(c.Synth.Decay, def.Synth.Decay)
	c.Synth.Release = clampEnvelope(c.Synth.Release, def.Synth.Release)
	if math.IsNaN(c.Synth.Sustain) {
		c.Synth.Sustain = def.Synth.Sustain
	}
	c.Synth.Sustain = math.Min(math.Max(c.Synth.Sustain, 0), 1)
}

// MIDIChannels converts the configured channels for the MIDI sink.
func (c *Config) MIDIChannels() []uint8 {
	out := make([]uint8, 0, len(c.Output.Channels))
	for _, ch := range c.Output.Channels {
		if ch >= 0 && ch <= 15 {
			out = append(out, uint8(ch))
		}
	}
	return out
}
