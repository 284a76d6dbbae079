package store

import (
	"math"

	"fractal-sequence/geometry"
	"fractal-sequence/pitch"
)

// Parameter ranges.
const (
	MinBPM           = 30.0
	MaxBPM           = 300.0
	MinSamplingRate  = 30.0
	MaxSamplingRate  = 600.0
	MinNumberOfNotes = 1
	MaxNumberOfNotes = 16
)

// Transport is the play state shared by the sampler, scheduler and UI.
type Transport struct {
	Playing bool    `json:"playing"`
	BPM     float64 `json:"bpm"`
}

func DefaultTransport() Transport {
	return Transport{BPM: 120}
}

func (t Transport) Clamp() Transport {
	t.BPM = clampFloat(t.BPM, MinBPM, MaxBPM, 120)
	return t
}

// Parameters are the instrument settings the sampler and mapper read.
type Parameters struct {
	SamplingRate  float64      `json:"samplingRate"`
	NumberOfNotes int          `json:"numberOfNotes"`
	Swing         float64      `json:"swing"`
	Depth         int          `json:"depth"`
	Size          float64      `json:"size"`
	Mapping       pitch.Params `json:"mapping"`
}

func DefaultParameters() Parameters {
	return Parameters{
		SamplingRate:  120,
		NumberOfNotes: 4,
		Depth:         2,
		Size:          3,
		Mapping:       pitch.DefaultParams(),
	}
}

func (p Parameters) Clamp() Parameters {
	p.SamplingRate = clampFloat(p.SamplingRate, MinSamplingRate, MaxSamplingRate, 120)
	p.NumberOfNotes = min(max(p.NumberOfNotes, MinNumberOfNotes), MaxNumberOfNotes)
	p.Swing = clampFloat(p.Swing, 0, 1, 0)
	p.Depth = min(max(p.Depth, 0), geometry.MaxDepth)
	if !(p.Size > 0) || math.IsInf(p.Size, 0) {
		p.Size = 3
	}
	p.Mapping = p.Mapping.Clamp()
	return p
}

func clampFloat(v, lo, hi, fallback float64) float64 {
	if math.IsNaN(v) {
		return fallback
	}
	return math.Min(math.Max(v, lo), hi)
}
