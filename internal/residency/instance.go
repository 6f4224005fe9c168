package residency

// Instance is a model object wrapped by a Handle. The cache never inspects
// it beyond the capability interfaces below; instances implementing none of
// them are treated as opaque.
type Instance interface{}

// Transferable is implemented by instances that support a whole-object
// device transfer.
type Transferable interface {
	MoveTo(device string) error
}

// Composite is implemented by instances made of named sub-components that
// are moved (and sized) independently. Components may themselves implement
// Transferable and Parameterized; estimation recurses one level only.
type Composite interface {
	Components() map[string]Instance
}

// Buffer describes one addressable parameter buffer.
type Buffer struct {
	Elements    int64
	ElementSize int64
}

// Parameterized is implemented by instances that can enumerate their
// parameter buffers for footprint estimation.
type Parameterized interface {
	Parameters() []Buffer
}

// GraphState reports and controls an engine's lazily compiled accelerator
// graphs. Reset marks them for rebuild on next use; it must not tear down
// device-resident state.
type GraphState interface {
	Initialized() bool
	Reset()
}

// GraphCarrier is implemented by engines whose instances carry device-bound
// precompiled execution graphs. The accessor replaces reflective search:
// eviction only detects such state and leaves it untouched, and the cache
// resets it when resurrecting or reinitializing an instance.
type GraphCarrier interface {
	CompiledState() GraphState
}
