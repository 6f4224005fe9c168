package residency

import (
	"context"
	"errors"
	"sync"
)

const gib = int64(1 << 30)

// fakeModel supports whole-object transfers and parameter introspection.
type fakeModel struct {
	bytes   int64
	device  string
	moveErr error
	moves   int
}

func (m *fakeModel) MoveTo(device string) error {
	m.moves++
	if m.moveErr != nil {
		return m.moveErr
	}
	m.device = device
	return nil
}

func (m *fakeModel) Parameters() []Buffer {
	return []Buffer{{Elements: m.bytes / 4, ElementSize: 4}}
}

// fakeComposite exposes named sub-components moved independently.
type fakeComposite struct {
	parts map[string]Instance
}

func (c *fakeComposite) Components() map[string]Instance { return c.parts }

// opaqueModel exposes no capabilities at all.
type opaqueModel struct{}

// panickyModel blows up during introspection.
type panickyModel struct{}

func (panickyModel) Parameters() []Buffer { panic("introspection failure") }

// fakeGraphState mimics lazily compiled accelerator graphs.
type fakeGraphState struct {
	initialized bool
	resets      int
}

func (g *fakeGraphState) Initialized() bool { return g.initialized }
func (g *fakeGraphState) Reset() {
	g.initialized = false
	g.resets++
}

// graphModel carries compiled graphs alongside normal transfer support.
type graphModel struct {
	fakeModel
	graphs fakeGraphState
}

func (m *graphModel) CompiledState() GraphState { return &m.graphs }

// fakeArbiter records host interactions.
type fakeArbiter struct {
	mu          sync.Mutex
	freeCalls   []int64
	registered  []HostManaged
	registerErr error
}

func (a *fakeArbiter) FreeMemory(bytes int64, device string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.freeCalls = append(a.freeCalls, bytes)
	return 0
}

func (a *fakeArbiter) Register(h HostManaged) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.registerErr != nil {
		return a.registerErr
	}
	a.registered = append(a.registered, h)
	return nil
}

func (a *fakeArbiter) Unregister(h HostManaged) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, r := range a.registered {
		if r == h {
			a.registered = append(a.registered[:i], a.registered[i+1:]...)
			return
		}
	}
}

func (a *fakeArbiter) registeredCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.registered)
}

func countingFactory(bytes int64) (Factory, *int) {
	calls := new(int)
	return func(ctx context.Context, device string) (Instance, error) {
		*calls++
		return &fakeModel{bytes: bytes, device: device}, nil
	}, calls
}

var errBoom = errors.New("boom")
