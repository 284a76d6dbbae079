// Package pitch maps sponge positions onto scale-quantized MIDI notes.
package pitch

import (
	"math"

	approx "github.com/cwbudde/algo-approx"

	"fractal-sequence/geometry"
)

// MaxCents bounds the microtonal offset in either direction.
const MaxCents = 50.0

// Note is a MIDI note number plus a microtonal offset.
type Note struct {
	Number int     `json:"noteNumber"`
	Cents  float64 `json:"cents"`
}

// Mapping is a cube tagged with its note.
type Mapping struct {
	geometry.Cube
	Note
}

// BaseNote converts a base frequency to the MIDI note two octaves below it.
func BaseNote(baseFrequency float64) int {
	return int(math.Floor(12*math.Log2((baseFrequency/4)/440) + 69 + 0.5))
}

// project reduces pos to a normalized scalar and an elevation angle.
func project(pos geometry.Vec3, cs CoordinateSystem, curvature float64) (norm, elevation float64) {
	x, y, z := pos[0], pos[1], pos[2]
	switch cs {
	case Spherical:
		r := math.Sqrt(x*x + y*y + z*z)
		if r == 0 {
			return 0.5, 0
		}
		theta := math.Atan2(y, x)
		phi := math.Acos(math.Max(-1, math.Min(1, z/r)))
		return math.Mod((theta+math.Pi)/(2*math.Pi), 1), phi
	case Cylindrical:
		theta := 0.0
		if x != 0 || y != 0 {
			theta = math.Atan2(y, x)
		}
		return math.Mod((theta+math.Pi)/(2*math.Pi), 1), 0
	default:
		sum := math.Abs(x) + math.Abs(y) + math.Abs(z)
		return math.Mod(math.Pow(sum, 1+curvature*2), 1), 0
	}
}

// MapPosition maps a point at the given depth to a note. It is pure.
func MapPosition(pos geometry.Vec3, depth float64, p Params) Note {
	base := BaseNote(p.BaseFrequency)

	norm, elevation := project(pos, p.CoordinateSystem, p.Curvature)
	mapped := p.Distribution.Apply(norm)
	if math.IsNaN(mapped) || mapped < 0 {
		mapped = 0
	}

	var scale Scale
	if p.EnableDepthModulation {
		idx := int(math.Floor(depth)) % len(scales)
		if idx < 0 {
			idx += len(scales)
		}
		scale = scales[idx]
	} else {
		scale = scaleOrDefault(p.ScaleType)
	}
	n := len(scale.Intervals)

	idx := int(math.Floor(mapped * float64(n)))
	idx = min(max(idx, 0), n-1)
	interval := scale.Intervals[idx]

	octaves := max(p.OctaveRange, 1)
	var shift int
	if p.EnableDepthModulation {
		r := float64(octaves)
		shift = int(math.Floor(math.Sin(math.Mod(depth, r)*2*math.Pi)*r/2)) * 12
	} else {
		shift = int(math.Floor(depth*float64(octaves)/4)) * 12
	}

	number := min(max(base+shift+interval, 0), 127)

	var cents float64
	if p.EnableMicrotonal {
		frac := math.Mod(mapped*float64(n), 1)
		cents = (frac*100 - 50) * ((elevation/math.Pi)*2 - 1)
		if math.IsNaN(cents) || math.IsInf(cents, 0) {
			cents = 0
		}
		cents = math.Max(-MaxCents, math.Min(MaxCents, cents))
	}
	return Note{Number: number, Cents: cents}
}

// MapCubes tags every cube with its note.
func MapCubes(cubes []geometry.Cube, depth float64, p Params) []Mapping {
	out := make([]Mapping, len(cubes))
	for i, c := range cubes {
		out[i] = Mapping{Cube: c, Note: MapPosition(c.Position, depth, p)}
	}
	return out
}

// Frequency returns the pitch of a MIDI note number offset by cents.
func Frequency(number int, cents float64) float64 {
	const ln2 = 0.69314718055994530942
	semis := float32(float64(number-69)+cents/100) / 12
	return 440 * float64(approx.FastExp(semis*ln2))
}

// Bend converts a cents offset into a 14-bit pitch bend value (-8192..8191)
// for a receiver whose bend range is rangeSemitones.
func Bend(cents, rangeSemitones float64) int16 {
	v := math.Floor(cents/(rangeSemitones*100)*8191 + 0.5)
	return int16(math.Min(math.Max(v, -8192), 8191))
}
