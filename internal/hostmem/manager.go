// Package hostmem is a local host memory arbiter: a reference implementation
// of the capability the residency cache consumes. It tracks registered
// handles per the host protocol and satisfies free-memory requests by
// unloading tracked models, oldest registration first. A real deployment may
// substitute the embedding application's own memory manager.
package hostmem

import (
	"log"
	"sync"

	"residencyd/internal/residency"
)

// Manager arbitrates fast-device memory across registered handles.
type Manager struct {
	mu sync.Mutex
	// capacity per device in bytes; 0 or absent means unlimited.
	capacity map[string]int64
	// tracked handles in registration order; eviction prefers the oldest.
	tracked []residency.HostManaged

	offloadDevice string
}

// New constructs a Manager with per-device capacities. A nil map means no
// limits anywhere; FreeMemory then only honors explicit requests.
func New(capacity map[string]int64) *Manager {
	return &Manager{capacity: capacity, offloadDevice: "cpu"}
}

// Register adds a handle to host tracking. Registering the same handle twice
// is an error; the cache treats it as non-fatal.
func (m *Manager) Register(h residency.HostManaged) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tracked {
		if t == h {
			return errAlreadyTracked{}
		}
	}
	m.tracked = append(m.tracked, h)
	return nil
}

// Unregister drops a handle from tracking. Unknown handles are a no-op.
func (m *Manager) Unregister(h residency.HostManaged) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.tracked {
		if t == h {
			m.tracked = append(m.tracked[:i], m.tracked[i+1:]...)
			return
		}
	}
}

// FreeMemory unloads tracked handles resident on device, oldest first, until
// roughly bytes have been freed or nothing is left to unload. Best effort:
// the return value may be less than requested.
func (m *Manager) FreeMemory(bytes int64, device string) int64 {
	if bytes <= 0 || device == m.offloadDevice {
		return 0
	}
	m.mu.Lock()
	victims := make([]residency.HostManaged, len(m.tracked))
	copy(victims, m.tracked)
	m.mu.Unlock()

	var freed int64
	for _, h := range victims {
		if freed >= bytes {
			break
		}
		if h.LoadedSize() == 0 || h.CurrentLoadedDevice() != device {
			continue
		}
		got := h.PartiallyUnload(m.offloadDevice, bytes-freed)
		if got > 0 {
			log.Printf("hostmem event=unload device=%s freed_bytes=%d", device, got)
		}
		freed += got
	}
	return freed
}

// LoadedBytes sums the loaded size of tracked handles on device.
func (m *Manager) LoadedBytes(device string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, h := range m.tracked {
		if h.CurrentLoadedDevice() == device {
			total += h.LoadedSize()
		}
	}
	return total
}

// TrackedCount reports how many handles the host currently sees.
func (m *Manager) TrackedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tracked)
}

// EnsureHeadroom frees memory on device until at least bytes of its
// configured capacity are unoccupied. Devices without a capacity entry are
// assumed unconstrained.
func (m *Manager) EnsureHeadroom(bytes int64, device string) int64 {
	m.mu.Lock()
	limit, limited := m.capacity[device]
	m.mu.Unlock()
	if !limited {
		return 0
	}
	free := limit - m.LoadedBytes(device)
	if free >= bytes {
		return 0
	}
	return m.FreeMemory(bytes-free, device)
}

type errAlreadyTracked struct{}

func (errAlreadyTracked) Error() string { return "handle already registered" }
