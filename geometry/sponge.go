// Package geometry generates the Menger sponge point set that drives pitch
// mapping and activation sampling.
package geometry

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// MaxDepth is the deepest sponge Generate accepts (20^4 = 160000 cubes).
const MaxDepth = 4

var (
	// ErrValidation is the class of all parameter errors returned by Generate.
	ErrValidation = errors.New("geometry: invalid parameter")

	ErrInvalidDepth = fmt.Errorf("%w: depth must be an integer between 0 and %d", ErrValidation, MaxDepth)
	ErrInvalidSize  = fmt.Errorf("%w: size must be a positive finite number", ErrValidation)
)

// Vec3 is a point in 3D space.
type Vec3 [3]float64

// Cube is one solid cell of the sponge.
type Cube struct {
	Position Vec3    `json:"position"`
	Scale    float64 `json:"scale"`
}

type cacheKey struct {
	depth int
	size  float64
}

var (
	cacheMu sync.Mutex
	cache   = make(map[cacheKey][]Cube)
)

// offsets are the 20 sub-cube positions kept at each level, in x, y, z order.
var offsets = func() []Vec3 {
	var out []Vec3
	coords := []float64{-1, 0, 1}
	for _, x := range coords {
		for _, y := range coords {
			for _, z := range coords {
				if math.Abs(x)+math.Abs(y)+math.Abs(z) > 1 {
					out = append(out, Vec3{x, y, z})
				}
			}
		}
	}
	return out
}()

// Generate returns the cubes of a depth-level sponge of the given size.
// Results are memoized per (depth, size); the returned slice is shared and
// must not be modified.
func Generate(depth int, size float64) ([]Cube, error) {
	if depth < 0 || depth > MaxDepth {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidDepth, depth)
	}
	if size <= 0 || math.IsNaN(size) || math.IsInf(size, 0) {
		return nil, fmt.Errorf("%w (got %v)", ErrInvalidSize, size)
	}

	cacheMu.Lock()
	defer cacheMu.Unlock()
	return generate(depth, size), nil
}

// generate must be called with cacheMu held.
func generate(depth int, size float64) []Cube {
	key := cacheKey{depth, size}
	if cubes, ok := cache[key]; ok {
		return cubes
	}

	var cubes []Cube
	if depth == 0 {
		cubes = []Cube{{Position: Vec3{0, 0, 0}, Scale: size}}
	} else {
		sub := size / 3
		inner := generate(depth-1, sub)
		cubes = make([]Cube, 0, len(offsets)*len(inner))
		for _, off := range offsets {
			for _, c := range inner {
				cubes = append(cubes, Cube{
					Position: Vec3{
						off[0]*sub*2 + c.Position[0],
						off[1]*sub*2 + c.Position[1],
						off[2]*sub*2 + c.Position[2],
					},
					Scale: c.Scale,
				})
			}
		}
	}
	cache[key] = cubes
	return cubes
}

// ClearCache drops all memoized sponges.
func ClearCache() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cache = make(map[cacheKey][]Cube)
}

// Count returns the number of cubes a sponge of the given depth contains.
func Count(depth int) int {
	n := 1
	for i := 0; i < depth; i++ {
		n *= len(offsets)
	}
	return n
}

// DistSq returns the squared euclidean distance between a and b.
func DistSq(a, b Vec3) float64 {
	dx := a[0] - b[0]
	dy := a[1] - b[1]
	dz := a[2] - b[2]
	return dx*dx + dy*dy + dz*dz
}
