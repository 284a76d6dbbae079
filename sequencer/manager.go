package sequencer

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"fractal-sequence/activation"
	"fractal-sequence/clock"
	"fractal-sequence/debug"
	"fractal-sequence/geometry"
	"fractal-sequence/pitch"
	"fractal-sequence/scheduler"
	"fractal-sequence/store"
)

const subscriberKey = "manager"

// ManagerOptions wire a Manager. Clock and Sink are required.
type ManagerOptions struct {
	Clock           clock.Clock
	Sink            NoteSink
	Scheduler       scheduler.Options
	SchedulerTicker clock.Ticker
	SamplerTicker   clock.Ticker
	Policy          activation.Policy
	Rand            *rand.Rand
	Transport       store.Transport
	Parameters      store.Parameters
	Velocity        float64
}

// Manager owns one instrument: geometry, sampler, scheduler, sequencer and
// the output sink.
type Manager struct {
	clk       clock.Clock
	sink      NoteSink
	transport *store.Store[store.Transport]
	params    *store.Store[store.Parameters]
	sampler   *activation.Sampler
	sched     *scheduler.Scheduler
	seq       *Sequencer
	grid      *Grid
	editor    *Editor

	mu      sync.Mutex
	applied store.Parameters
	points  []pitch.Mapping
	unsubs  []func()
	closed  bool

	// Notify TUI of updates
	UpdateChan chan struct{}
}

// NewManager builds a stopped instrument.
func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.Clock == nil {
		return nil, scheduler.ErrClockUnavailable
	}
	if opts.Sink == nil {
		return nil, ErrNoSink
	}
	if opts.Transport.BPM == 0 {
		opts.Transport = store.DefaultTransport()
	}
	opts.Transport.Playing = false
	opts.Transport = opts.Transport.Clamp()
	if opts.Parameters == (store.Parameters{}) {
		opts.Parameters = store.DefaultParameters()
	}
	opts.Parameters = opts.Parameters.Clamp()

	if opts.Scheduler.MinBPM == 0 {
		opts.Scheduler.MinBPM = store.MinBPM
	}
	if opts.Scheduler.MaxBPM == 0 {
		opts.Scheduler.MaxBPM = store.MaxBPM
	}

	m := &Manager{
		clk:        opts.Clock,
		sink:       opts.Sink,
		transport:  store.New(opts.Transport),
		params:     store.New(opts.Parameters),
		grid:       NewGrid(opts.Parameters.NumberOfNotes),
		UpdateChan: make(chan struct{}, 1),
	}
	m.editor = NewEditor(m.grid)

	points, err := buildPoints(opts.Parameters)
	if err != nil {
		return nil, err
	}
	m.points = points
	m.applied = opts.Parameters

	m.sampler = activation.New(points, activation.Options{
		Key:           "sampler",
		Policy:        opts.Policy,
		Rand:          opts.Rand,
		Ticker:        opts.SamplerTicker,
		Rate:          opts.Parameters.SamplingRate,
		NumberOfNotes: opts.Parameters.NumberOfNotes,
	})
	m.sched = scheduler.New(opts.Clock, opts.SchedulerTicker, opts.Scheduler)
	m.sched.SetBPM(opts.Transport.BPM)

	m.seq, err = New(m.grid, m.sampler, opts.Sink, m.sched.BPM, Options{Velocity: opts.Velocity})
	if err != nil {
		return nil, err
	}
	m.seq.SetSwing(opts.Parameters.Swing)

	m.sampler.Attach(m.transport, m.params)
	m.unsubs = append(m.unsubs,
		m.params.Subscribe(subscriberKey, m.applyParameters),
		m.transport.Subscribe(subscriberKey, func(t store.Transport) { m.sched.SetBPM(t.BPM) }),
		m.seq.OnStepChange(subscriberKey, func(int) { m.notifyUpdate() }),
	)
	return m, nil
}

func buildPoints(p store.Parameters) ([]pitch.Mapping, error) {
	cubes, err := geometry.Generate(p.Depth, p.Size)
	if err != nil {
		return nil, fmt.Errorf("build geometry: %w", err)
	}
	return pitch.MapCubes(cubes, float64(p.Depth), p.Mapping), nil
}

// applyParameters reacts to parameter changes: rebuild the mapping when the
// geometry or mapping changed, resize the grid, update swing.
func (m *Manager) applyParameters(p store.Parameters) {
	m.mu.Lock()
	prev := m.applied
	m.applied = p
	m.mu.Unlock()

	if p.Depth != prev.Depth || p.Size != prev.Size || p.Mapping != prev.Mapping {
		points, err := buildPoints(p)
		if err != nil {
			debug.Warn("manager", "rebuild failed: %v", err)
		} else {
			m.mu.Lock()
			m.points = points
			m.mu.Unlock()
			m.sampler.SetPoints(points)
			debug.Log("manager", "mapped %d cubes depth=%d scale=%s", len(points), p.Depth, p.Mapping.ScaleType)
		}
	}
	if p.NumberOfNotes != prev.NumberOfNotes {
		m.grid.SetRowCount(p.NumberOfNotes)
		m.editor.clampCursor()
	}
	m.seq.SetSwing(p.Swing)
	m.notifyUpdate()
}

// Play resumes the clock and starts the sampler and scheduler.
func (m *Manager) Play(ctx context.Context) error {
	if m.isClosed() {
		return fmt.Errorf("manager closed")
	}
	if m.transport.Get().Playing {
		return nil
	}
	if err := m.clk.Resume(ctx); err != nil {
		return fmt.Errorf("resume clock: %w", err)
	}
	m.seq.Reset()
	m.transport.Update(func(t *store.Transport) { t.Playing = true })
	m.sampler.Sample()

	if err := m.sched.Start(m.onTick); err != nil {
		m.transport.Update(func(t *store.Transport) { t.Playing = false })
		return fmt.Errorf("start scheduler: %w", err)
	}
	debug.Log("manager", "play bpm=%.1f", m.sched.BPM())
	m.notifyUpdate()
	return nil
}

func (m *Manager) onTick(t float64) {
	m.seq.Tick(t)
}

// Stop halts playback and rewinds the cursor.
func (m *Manager) Stop() {
	m.sched.Stop()
	if m.transport.Get().Playing {
		m.transport.Update(func(t *store.Transport) { t.Playing = false })
	}
	m.seq.Reset()
	m.notifyUpdate()
}

// TogglePlay starts or stops playback.
func (m *Manager) TogglePlay(ctx context.Context) error {
	if m.transport.Get().Playing {
		m.Stop()
		return nil
	}
	return m.Play(ctx)
}

// SetTempo sets the BPM
func (m *Manager) SetTempo(bpm float64) {
	m.transport.Update(func(t *store.Transport) {
		t.BPM = bpm
		*t = t.Clamp()
	})
	m.notifyUpdate()
}

// UpdateParameters edits the parameters; the result is clamped.
func (m *Manager) UpdateParameters(fn func(*store.Parameters)) {
	m.params.Update(func(p *store.Parameters) {
		fn(p)
		*p = p.Clamp()
	})
}

func (m *Manager) SetSwing(v float64) {
	m.UpdateParameters(func(p *store.Parameters) { p.Swing = v })
}

func (m *Manager) SetNumberOfNotes(n int) {
	m.UpdateParameters(func(p *store.Parameters) { p.NumberOfNotes = n })
}

func (m *Manager) SetSamplingRate(r float64) {
	m.UpdateParameters(func(p *store.Parameters) { p.SamplingRate = r })
}

func (m *Manager) SetMapping(mp pitch.Params) {
	m.UpdateParameters(func(p *store.Parameters) { p.Mapping = mp })
}

// SetDepth validates before storing so callers see geometry errors.
func (m *Manager) SetDepth(depth int) error {
	if _, err := geometry.Generate(depth, m.params.Get().Size); err != nil {
		return err
	}
	m.UpdateParameters(func(p *store.Parameters) { p.Depth = depth })
	return nil
}

// GetState returns the current sequencer state
func (m *Manager) GetState() (step int, playing bool, tempo float64) {
	return m.seq.CurrentStep(), m.transport.Get().Playing, m.sched.BPM()
}

// Snapshot is everything the UI draws.
type Snapshot struct {
	Step       int
	Playing    bool
	BPM        float64
	Params     store.Parameters
	Rows       []Row
	Active     []pitch.Note
	CursorRow  int
	CursorStep int
	Stats      scheduler.Stats
	Failures   int64
	Cubes      int
}

func (m *Manager) Snapshot() Snapshot {
	row, step := m.editor.Cursor()
	m.mu.Lock()
	cubes := len(m.points)
	m.mu.Unlock()
	return Snapshot{
		Step:       m.seq.CurrentStep(),
		Playing:    m.transport.Get().Playing,
		BPM:        m.sched.BPM(),
		Params:     m.params.Get(),
		Rows:       m.grid.Rows(),
		Active:     m.sampler.ActiveNotes(),
		CursorRow:  row,
		CursorStep: step,
		Stats:      m.sched.Stats(),
		Failures:   m.seq.Failures() + m.sched.Failures() + m.sampler.Failures(),
		Cubes:      cubes,
	}
}

// HandleKey routes grid-editing keys to the editor.
func (m *Manager) HandleKey(key string) bool {
	handled := m.editor.HandleKey(key)
	if handled {
		m.notifyUpdate()
	}
	return handled
}

func (m *Manager) Grid() *Grid                                { return m.grid }
func (m *Manager) Sequencer() *Sequencer                      { return m.seq }
func (m *Manager) Scheduler() *scheduler.Scheduler            { return m.sched }
func (m *Manager) Sampler() *activation.Sampler               { return m.sampler }
func (m *Manager) Transport() *store.Store[store.Transport]   { return m.transport }
func (m *Manager) Parameters() *store.Store[store.Parameters] { return m.params }

// ScheduleEvent runs fn once on the scheduler at clock time at.
func (m *Manager) ScheduleEvent(fn func(float64), at float64) (scheduler.EventID, error) {
	return m.sched.ScheduleEvent(fn, at)
}

// notifyUpdate tells the TUI to redraw without blocking
func (m *Manager) notifyUpdate() {
	select {
	case m.UpdateChan <- struct{}{}:
	default:
	}
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close stops playback and releases timers and subscriptions. Safe to call
// repeatedly.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	unsubs := m.unsubs
	m.unsubs = nil
	m.mu.Unlock()

	m.Stop()
	for _, u := range unsubs {
		u()
	}
	m.sampler.Cleanup()
	m.sched.Dispose()
}
