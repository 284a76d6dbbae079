package activation

import (
	"cmp"
	"math/rand/v2"
	"slices"

	"fractal-sequence/geometry"
	"fractal-sequence/pitch"
)

// Policy picks the next active subset. Implementations may keep state
// between calls; the Sampler serializes access.
type Policy interface {
	Next(points []pitch.Mapping, n int, rng *rand.Rand) []int
	Reset()
}

// RandomSubset shuffles every index and keeps the first n.
type RandomSubset struct{}

func (RandomSubset) Next(points []pitch.Mapping, n int, rng *rand.Rand) []int {
	if len(points) == 0 || n <= 0 {
		return nil
	}
	perm := rng.Perm(len(points))
	return perm[:min(n, len(perm))]
}

func (RandomSubset) Reset() {}

const (
	// DefaultNeighbors is how many points join each anchor.
	DefaultNeighbors = 3
	groupSize        = 8
	radiusScale      = 3
)

// Traversal walks every point once per cycle in a loosely shuffled order
// and activates each anchor together with its nearest neighbors.
type Traversal struct {
	MaxNeighbors int
	queue        []int
}

func NewTraversal() *Traversal {
	return &Traversal{MaxNeighbors: DefaultNeighbors}
}

func (t *Traversal) Reset() {
	t.queue = nil
}

// refill queues every index in order, then shuffles each run of 8 in place.
func (t *Traversal) refill(count int, rng *rand.Rand) {
	t.queue = make([]int, count)
	for i := range t.queue {
		t.queue[i] = i
	}
	for i := 0; i < count; i += groupSize {
		group := t.queue[i:min(i+groupSize, count)]
		for j := len(group) - 1; j > 0; j-- {
			k := rng.IntN(j + 1)
			group[j], group[k] = group[k], group[j]
		}
	}
}

// Next ignores n; the set size is the anchor plus MaxNeighbors.
func (t *Traversal) Next(points []pitch.Mapping, n int, rng *rand.Rand) []int {
	if len(points) == 0 {
		return nil
	}
	for len(t.queue) > 0 && t.queue[0] >= len(points) {
		t.queue = t.queue[1:]
	}
	if len(t.queue) == 0 {
		t.refill(len(points), rng)
	}
	anchor := t.queue[0]
	t.queue = t.queue[1:]

	maxN := t.MaxNeighbors
	if maxN <= 0 {
		maxN = DefaultNeighbors
	}
	return append([]int{anchor}, Neighbors(points, anchor, maxN)...)
}

// Neighbors returns up to maxN indices near points[anchor]: first those
// within three times the anchor's scale in index order, then the closest of
// the rest.
func Neighbors(points []pitch.Mapping, anchor, maxN int) []int {
	center := points[anchor].Position
	radius := points[anchor].Scale * radiusScale
	radiusSq := radius * radius

	taken := make([]bool, len(points))
	taken[anchor] = true
	var out []int
	for i := 0; i < len(points) && len(out) < maxN; i++ {
		if taken[i] {
			continue
		}
		if geometry.DistSq(points[i].Position, center) <= radiusSq {
			out = append(out, i)
			taken[i] = true
		}
	}
	if len(out) >= maxN {
		return out
	}

	type candidate struct {
		index int
		dist  float64
	}
	rest := make([]candidate, 0, len(points))
	for i, p := range points {
		if !taken[i] {
			rest = append(rest, candidate{i, geometry.DistSq(p.Position, center)})
		}
	}
	slices.SortStableFunc(rest, func(a, b candidate) int {
		return cmp.Compare(a.dist, b.dist)
	})
	for _, c := range rest[:min(maxN-len(out), len(rest))] {
		out = append(out, c.index)
	}
	return out
}
