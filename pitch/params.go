package pitch

import "math"

// CoordinateSystem selects how a position is reduced to a scalar.
type CoordinateSystem string

const (
	Cartesian   CoordinateSystem = "cartesian"
	Spherical   CoordinateSystem = "spherical"
	Cylindrical CoordinateSystem = "cylindrical"
)

var coordinateSystems = []CoordinateSystem{Cartesian, Spherical, Cylindrical}

func (c CoordinateSystem) Valid() bool {
	for _, v := range coordinateSystems {
		if v == c {
			return true
		}
	}
	return false
}

// Next cycles through the coordinate systems.
func (c CoordinateSystem) Next() CoordinateSystem {
	for i, v := range coordinateSystems {
		if v == c {
			return coordinateSystems[(i+1)%len(coordinateSystems)]
		}
	}
	return Cartesian
}

// Distribution remaps a normalized position in [0,1).
type Distribution string

const (
	Linear      Distribution = "linear"
	Exponential Distribution = "exponential"
	Logarithmic Distribution = "logarithmic"
	Sinusoidal  Distribution = "sinusoidal"
)

var distributions = []Distribution{Linear, Exponential, Logarithmic, Sinusoidal}

func (d Distribution) Valid() bool {
	for _, v := range distributions {
		if v == d {
			return true
		}
	}
	return false
}

func (d Distribution) Next() Distribution {
	for i, v := range distributions {
		if v == d {
			return distributions[(i+1)%len(distributions)]
		}
	}
	return Linear
}

// Apply evaluates the distribution curve at x.
func (d Distribution) Apply(x float64) float64 {
	switch d {
	case Exponential:
		return x * x
	case Logarithmic:
		return math.Log2(1 + x)
	case Sinusoidal:
		return (math.Sin(x*2*math.Pi-math.Pi/2) + 1) / 2
	default:
		return x
	}
}

// Parameter ranges accepted by Clamp.
const (
	MinBaseFrequency = 20.0
	MaxBaseFrequency = 20000.0
	MinOctaveRange   = 1
	MaxOctaveRange   = 8
)

// Params configures MapPosition.
type Params struct {
	ScaleType             string           `json:"scaleType"`
	BaseFrequency         float64          `json:"baseFrequency"`
	OctaveRange           int              `json:"octaveRange"`
	Curvature             float64          `json:"curvature"`
	CoordinateSystem      CoordinateSystem `json:"coordinateSystem"`
	Distribution          Distribution     `json:"distribution"`
	EnableMicrotonal      bool             `json:"enableMicrotonal"`
	EnableDepthModulation bool             `json:"enableDepthModulation"`
}

// DefaultParams maps around C4 over four octaves on a pentatonic scale.
func DefaultParams() Params {
	return Params{
		ScaleType:        DefaultScale,
		BaseFrequency:    261.63,
		OctaveRange:      4,
		Curvature:        0.5,
		CoordinateSystem: Cartesian,
		Distribution:     Linear,
	}
}

// Clamp returns p with every field forced into its accepted range.
func (p Params) Clamp() Params {
	def := DefaultParams()
	if _, ok := LookupScale(p.ScaleType); !ok {
		p.ScaleType = def.ScaleType
	}
	if math.IsNaN(p.BaseFrequency) {
		p.BaseFrequency = def.BaseFrequency
	}
	p.BaseFrequency = math.Min(math.Max(p.BaseFrequency, MinBaseFrequency), MaxBaseFrequency)
	p.OctaveRange = min(max(p.OctaveRange, MinOctaveRange), MaxOctaveRange)
	if math.IsNaN(p.Curvature) {
		p.Curvature = def.Curvature
	}
	p.Curvature = math.Min(math.Max(p.Curvature, 0), 1)
	if !p.CoordinateSystem.Valid() {
		p.CoordinateSystem = def.CoordinateSystem
	}
	if !p.Distribution.Valid() {
		p.Distribution = def.Distribution
	}
	return p
}
