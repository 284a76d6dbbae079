package scheduler

import "math"

// Stats describes scheduled-minus-actual deltas over recent ticks.
type Stats struct {
	AverageDelta float64
	MinDelta     float64
	MaxDelta     float64
	Jitter       float64
	Samples      int   // deltas in the window
	Total        int64 // ticks since the last Dispose
}

type ring struct {
	buf   []float64
	pos   int
	full  bool
	total int64
}

func newRing(n int) *ring {
	return &ring{buf: make([]float64, n)}
}

func (r *ring) add(v float64) {
	r.buf[r.pos] = v
	r.pos++
	if r.pos == len(r.buf) {
		r.pos = 0
		r.full = true
	}
	r.total++
}

func (r *ring) summary() Stats {
	n := r.pos
	if r.full {
		n = len(r.buf)
	}
	if n == 0 {
		return Stats{Total: r.total}
	}
	st := Stats{MinDelta: math.Inf(1), MaxDelta: math.Inf(-1), Samples: n, Total: r.total}
	var sum float64
	for _, v := range r.buf[:n] {
		sum += v
		st.MinDelta = math.Min(st.MinDelta, v)
		st.MaxDelta = math.Max(st.MaxDelta, v)
	}
	st.AverageDelta = sum / float64(n)
	st.Jitter = st.MaxDelta - st.MinDelta
	return st
}
