package midi

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver

	"fractal-sequence/debug"
)

// ScanTimeout bounds a port scan; CoreMIDI can hang.
const ScanTimeout = 3 * time.Second

var (
	ErrScanTimeout  = errors.New("midi: port scan timed out")
	ErrPortNotFound = errors.New("midi: output port not found")
)

func scanOutPorts(timeout time.Duration) ([]drivers.Out, error) {
	ch := make(chan []drivers.Out, 1)
	go func() {
		ch <- gomidi.GetOutPorts()
	}()

	select {
	case outs := <-ch:
		return outs, nil
	case <-time.After(timeout):
		// User needs to run: sudo killall coreaudiod midiserver
		return nil, ErrScanTimeout
	}
}

// OutPorts lists output port names.
func OutPorts(timeout time.Duration) ([]string, error) {
	outs, err := scanOutPorts(timeout)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(outs))
	for i, p := range outs {
		names[i] = p.String()
	}
	return names, nil
}

// matchPort picks the exact name, else the first case-insensitive
// substring match.
func matchPort(names []string, want string) int {
	if i := slices.Index(names, want); i >= 0 {
		return i
	}
	want = strings.ToLower(want)
	for i, n := range names {
		if strings.Contains(strings.ToLower(n), want) {
			return i
		}
	}
	return -1
}

// OpenOut opens the named output port and returns its send function.
func OpenOut(name string) (SendFunc, error) {
	outs, err := scanOutPorts(ScanTimeout)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(outs))
	for i, p := range outs {
		names[i] = p.String()
	}
	i := matchPort(names, name)
	if i < 0 {
		return nil, fmt.Errorf("%w: %q", ErrPortNotFound, name)
	}
	send, err := gomidi.SendTo(outs[i])
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", names[i], err)
	}
	debug.Log("midi", "opened output %s", names[i])
	return send, nil
}

// PortEvent is emitted when a watched port appears or disappears
type PortEvent struct {
	Type PortEventType
	Name string
}

type PortEventType int

const (
	PortConnected PortEventType = iota
	PortDisconnected
)

func (t PortEventType) String() string {
	if t == PortConnected {
		return "connected"
	}
	return "disconnected"
}

// PortWatcher handles hot-plug detection of output ports whose name
// contains a filter string (all ports when empty).
type PortWatcher struct {
	filter   string
	list     func() ([]string, error)
	known    map[string]bool
	mu       sync.RWMutex
	events   chan PortEvent
	pollRate time.Duration
}

// NewPortWatcher creates a watcher
func NewPortWatcher(filter string) *PortWatcher {
	return &PortWatcher{
		filter:   strings.ToLower(filter),
		list:     func() ([]string, error) { return OutPorts(ScanTimeout) },
		known:    make(map[string]bool),
		events:   make(chan PortEvent, 16),
		pollRate: time.Second,
	}
}

// Events returns a channel of connect/disconnect events
func (w *PortWatcher) Events() <-chan PortEvent {
	return w.events
}

// Ports returns the currently known port names, sorted.
func (w *PortWatcher) Ports() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, 0, len(w.known))
	for n := range w.known {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// Run starts the polling loop (blocking - run in goroutine)
func (w *PortWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollRate)
	defer ticker.Stop()

	// Initial scan
	w.scan()

	for {
		select {
		case <-ctx.Done():
			close(w.events)
			return
		case <-ticker.C:
			w.scan()
		}
	}
}

func (w *PortWatcher) scan() {
	names, err := w.list()
	if err != nil {
		// skip this scan, the port list is unknown
		debug.Warn("midi", "port scan: %v", err)
		return
	}

	seen := make(map[string]bool)
	for _, n := range names {
		if w.filter != "" && !strings.Contains(strings.ToLower(n), w.filter) {
			continue
		}
		seen[n] = true
	}

	var events []PortEvent
	w.mu.Lock()
	for n := range seen {
		if !w.known[n] {
			w.known[n] = true
			events = append(events, PortEvent{Type: PortConnected, Name: n})
		}
	}
	for n := range w.known {
		if !seen[n] {
			delete(w.known, n)
			events = append(events, PortEvent{Type: PortDisconnected, Name: n})
		}
	}
	w.mu.Unlock()

	slices.SortFunc(events, func(a, b PortEvent) int { return strings.Compare(a.Name, b.Name) })
	for _, e := range events {
		select {
		case w.events <- e:
		default:
			debug.Warn("midi", "port event dropped: %s %s", e.Name, e.Type)
		}
	}
}
