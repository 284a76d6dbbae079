package synth

import (
	"math"

	approx "github.com/cwbudde/algo-approx"

	"fractal-sequence/pitch"
)

// Voices is a polyphonic sound generator driven by the Engine. It is not
// safe for concurrent use; the Engine serialises every call.
type Voices interface {
	// NoteOn starts a note and returns an id for NoteOff.
	NoteOn(note int, velocity, cents float64) int
	NoteOff(id int)
	// Render writes the next len(left) frames of output.
	Render(left, right []float32)
	// Active reports how many voices are still sounding.
	Active() int
}

type Waveform int

const (
	Triangle Waveform = iota
	Sine
	Saw
	Square
)

var waveformNames = []string{"triangle", "sine", "saw", "square"}

func (w Waveform) String() string {
	if w < 0 || int(w) >= len(waveformNames) {
		return "unknown"
	}
	return waveformNames[w]
}

// ParseWaveform accepts the names returned by String.
func ParseWaveform(s string) (Waveform, bool) {
	for i, n := range waveformNames {
		if n == s {
			return Waveform(i), true
		}
	}
	return Triangle, false
}

// OscillatorParams shape the built-in voices.
type OscillatorParams struct {
	Polyphony  int
	Waveform   Waveform
	AttackSec  float64
	DecaySec   float64
	Sustain    float64
	ReleaseSec float64
	Gain       float64
}

// DefaultOscillatorParams is a short plucked triangle.
func DefaultOscillatorParams() OscillatorParams {
	return OscillatorParams{
		Polyphony:  32,
		Waveform:   Triangle,
		AttackSec:  0.005,
		DecaySec:   0.1,
		Sustain:    0.3,
		ReleaseSec: 0.1,
		Gain:       0.3,
	}
}

type envStage int

const (
	stageAttack envStage = iota
	stageDecay
	stageSustain
	stageRelease
	stageOff
)

type oscVoice struct {
	id       int
	active   bool
	velocity float64
	phase    float64 // cycles, [0,1)
	inc      float64 // cycles per frame
	env      float64
	stage    envStage
	age      int // frames in the current stage
	from     float64
}

// OscillatorVoices runs one oscillator per voice through an ADSR envelope
// with exponential decay and release.
type OscillatorVoices struct {
	sampleRate float64
	params     OscillatorParams
	voices     []oscVoice
	nextID     int
}

func NewOscillatorVoices(sampleRate int, params OscillatorParams) *OscillatorVoices {
	def := DefaultOscillatorParams()
	if params.Polyphony <= 0 {
		params.Polyphony = def.Polyphony
	}
	if params.AttackSec <= 0 {
		params.AttackSec = def.AttackSec
	}
	if params.DecaySec <= 0 {
		params.DecaySec = def.DecaySec
	}
	if params.ReleaseSec <= 0 {
		params.ReleaseSec = def.ReleaseSec
	}
	if params.Gain <= 0 {
		params.Gain = def.Gain
	}
	params.Sustain = math.Min(math.Max(params.Sustain, 0), 1)
	return &OscillatorVoices{
		sampleRate: float64(sampleRate),
		params:     params,
		voices:     make([]oscVoice, params.Polyphony),
	}
}

func (o *OscillatorVoices) NoteOn(note int, velocity, cents float64) int {
	slot := o.steal()
	id := o.nextID
	o.nextID++
	o.voices[slot] = oscVoice{
		id:       id,
		active:   true,
		velocity: math.Min(math.Max(velocity, 0), 1),
		inc:      pitch.Frequency(note, cents) / o.sampleRate,
		stage:    stageAttack,
	}
	return id
}

func (o *OscillatorVoices) NoteOff(id int) {
	for i := range o.voices {
		v := &o.voices[i]
		if v.active && v.id == id && v.stage < stageRelease {
			v.stage = stageRelease
			v.age = 0
			v.from = v.env
		}
	}
}

// steal returns a free slot, or the quietest voice.
func (o *OscillatorVoices) steal() int {
	quiet := 0
	for i := range o.voices {
		if !o.voices[i].active {
			return i
		}
		if o.voices[i].env < o.voices[quiet].env {
			quiet = i
		}
	}
	return quiet
}

func (o *OscillatorVoices) Active() int {
	n := 0
	for i := range o.voices {
		if o.voices[i].active {
			n++
		}
	}
	return n
}

// decay returns exp(-t/tau) with t and tau in frames.
func decay(age int, tauSec, sampleRate float64) float64 {
	return float64(approx.FastExp(float32(-float64(age) / (tauSec * sampleRate))))
}

func (o *OscillatorVoices) advance(v *oscVoice) float64 {
	p := o.params
	switch v.stage {
	case stageAttack:
		v.env += 1 / (p.AttackSec * o.sampleRate)
		if v.env >= 1 {
			v.env = 1
			v.stage = stageDecay
			v.age = 0
		}
	case stageDecay:
		v.age++
		// within 2% of sustain by DecaySec
		v.env = p.Sustain + (1-p.Sustain)*decay(v.age, p.DecaySec/4, o.sampleRate)
		if v.age >= int(p.DecaySec*o.sampleRate) {
			v.env = p.Sustain
			v.stage = stageSustain
		}
	case stageRelease:
		v.age++
		v.env = v.from * decay(v.age, p.ReleaseSec/4, o.sampleRate)
		if v.age >= int(p.ReleaseSec*o.sampleRate) || v.env < 1e-4 {
			v.env = 0
			v.stage = stageOff
			v.active = false
		}
	case stageOff:
		v.active = false
		v.env = 0
	}
	return v.env
}

func (o *OscillatorVoices) wave(phase float64) float64 {
	switch o.params.Waveform {
	case Sine:
		return math.Sin(2 * math.Pi * phase)
	case Saw:
		return 2*phase - 1
	case Square:
		if phase < 0.5 {
			return 1
		}
		return -1
	default:
		return 1 - 4*math.Abs(phase-0.5)
	}
}

func (o *OscillatorVoices) Render(left, right []float32) {
	for f := range left {
		var sum float64
		for i := range o.voices {
			v := &o.voices[i]
			if !v.active {
				continue
			}
			env := o.advance(v)
			sum += o.wave(v.phase) * env * v.velocity
			v.phase += v.inc
			v.phase -= math.Floor(v.phase)
		}
		s := float32(sum * o.params.Gain)
		left[f] = s
		right[f] = s
	}
}
