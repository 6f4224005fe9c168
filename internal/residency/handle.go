package residency

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// Residency says whether a handle's instance currently occupies fast-device
// memory, has been moved off it, or is parked in the quarantine namespace.
type Residency string

const (
	Resident    Residency = "resident"
	Evicted     Residency = "evicted"
	Quarantined Residency = "quarantined"
)

// Validity marks whether an instance is safe to hand back to callers.
type Validity string

const (
	Valid     Validity = "valid"
	Corrupted Validity = "corrupted"
)

// DeviceAuto lets the handle pick its original load device.
const DeviceAuto = "auto"

// Handle wraps one model instance with residency metadata. It carries no
// cache policy; it is the adapter that makes an instance a manageable,
// size-aware, evictable resource.
type Handle struct {
	id        string
	engine    string
	kind      string
	inst      Instance
	footprint int64
	epoch     *Epoch
	created   int64

	mu            sync.Mutex
	residency     Residency
	validity      Validity
	currentDevice string
	loadDevice    string
	offloadDevice string
}

func newHandle(inst Instance, engine, kind, device, offloadDevice string, ep *Epoch) *Handle {
	return &Handle{
		id:            uuid.NewString(),
		engine:        engine,
		kind:          kind,
		inst:          inst,
		footprint:     Estimate(inst),
		epoch:         ep,
		created:       ep.Stamp(),
		residency:     Resident,
		validity:      Valid,
		currentDevice: device,
		loadDevice:    device,
		offloadDevice: offloadDevice,
	}
}

func (h *Handle) ID() string        { return h.id }
func (h *Handle) Engine() string    { return h.engine }
func (h *Handle) Kind() string      { return h.kind }
func (h *Handle) Instance() Instance { return h.inst }

// CreatedStamp is the epoch stamp taken at construction; external caches
// compare it against the shared Epoch to detect staleness.
func (h *Handle) CreatedStamp() int64 { return h.created }

func (h *Handle) Residency() Residency {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.residency
}

func (h *Handle) Validity() Validity {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.validity
}

// LoadedSize reports the bytes this handle occupies on the fast device:
// the full footprint iff Resident, else 0.
func (h *Handle) LoadedSize() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.residency == Resident {
		return h.footprint
	}
	return 0
}

// ModelSize is the immutable footprint estimate taken at creation.
func (h *Handle) ModelSize() int64 { return h.footprint }

// OffloadedBytes is the memory that would be freed by a full eviction.
func (h *Handle) OffloadedBytes() int64 { return h.ModelSize() - h.LoadedSize() }

func (h *Handle) CurrentLoadedDevice() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentDevice
}

// Evict attempts to move the instance off the fast device. A failed direct
// transfer still flips the handle to Evicted and counts the footprint as
// freed: the runtime may already have released its references, and keeping
// the bytes pinned would double-count memory on the next budget check. The
// failure stays visible in the returned result.
func (h *Handle) Evict(device string, bytesToFree int64) TransferResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.residency != Resident {
		return TransferResult{Status: TransferOK}
	}
	if gc, ok := h.inst.(GraphCarrier); ok {
		// Compiled graphs are bound to fixed device addresses; destroying
		// them mid-migration corrupts device state. Detect, never tear down.
		log.Printf("residency event=graphs_intact engine=%s kind=%s initialized=%v",
			h.engine, h.kind, gc.CompiledState().Initialized())
	}
	switch t := h.inst.(type) {
	case Transferable:
		if err := t.MoveTo(device); err != nil {
			h.residency = Evicted
			h.currentDevice = device
			return TransferResult{Status: TransferFailed, BytesFreed: h.footprint, Err: err}
		}
		h.residency = Evicted
		h.currentDevice = device
		return TransferResult{Status: TransferOK, BytesFreed: h.footprint}
	case Composite:
		var freed int64
		moved := 0
		for name, comp := range t.Components() {
			ct, ok := comp.(Transferable)
			if !ok {
				continue
			}
			if err := ct.MoveTo(device); err != nil {
				log.Printf("residency event=component_transfer_failed engine=%s component=%s err=%v",
					h.engine, name, err)
				continue
			}
			freed += estimateComponent(comp)
			moved++
		}
		if moved == 0 {
			return TransferResult{Status: TransferFailed}
		}
		h.residency = Evicted
		h.currentDevice = device
		return TransferResult{Status: TransferOK, BytesFreed: freed}
	default:
		// Opaque instance: nothing to call, but the bytes must not stay
		// pinned against the budget.
		h.residency = Evicted
		h.currentDevice = device
		return TransferResult{Status: TransferUnsupported, BytesFreed: h.footprint}
	}
}

// Reload moves the instance back onto device. No-op when already Resident.
// Composite reloads are best effort: per-component failures are logged and
// the handle still becomes Resident.
func (h *Handle) Reload(device string) TransferResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.residency == Resident {
		return TransferResult{Status: TransferOK}
	}
	if device == "" || device == DeviceAuto {
		device = h.loadDevice
	}
	switch t := h.inst.(type) {
	case Transferable:
		if err := t.MoveTo(device); err != nil {
			return TransferResult{Status: TransferFailed, Err: err}
		}
	case Composite:
		for name, comp := range t.Components() {
			ct, ok := comp.(Transferable)
			if !ok {
				continue
			}
			if err := ct.MoveTo(device); err != nil {
				log.Printf("residency event=component_reload_failed engine=%s component=%s err=%v",
					h.engine, name, err)
			}
		}
	}
	h.residency = Resident
	h.currentDevice = device
	return TransferResult{Status: TransferOK, BytesFreed: 0}
}

// HardEvict is the destructive path: full eviction to the offload device,
// after which the instance is presumed unsafe to resume in place. The handle
// is marked Corrupted and the shared invalidation epoch is bumped so caches
// layered on top discard their derived state.
func (h *Handle) HardEvict() int64 {
	res := h.Evict(h.offloadDevice, h.footprint)
	if res.Err != nil {
		log.Printf("residency event=hard_evict_transfer_failed engine=%s kind=%s err=%v",
			h.engine, h.kind, res.Err)
	}
	h.mu.Lock()
	h.validity = Corrupted
	h.mu.Unlock()
	h.epoch.Bump()
	return res.BytesFreed
}

// IsClone reports resource equivalence: same engine and kind. Handles never
// support true duplication.
func (h *Handle) IsClone(other HostManaged) bool {
	o, ok := other.(*Handle)
	if !ok {
		return false
	}
	return h.engine == o.engine && h.kind == o.kind
}

// PartiallyUnload is the host-facing eviction entry point.
func (h *Handle) PartiallyUnload(device string, bytesToFree int64) int64 {
	res := h.Evict(device, bytesToFree)
	if res.Status == TransferFailed && res.Err != nil {
		log.Printf("residency event=partial_unload_failed engine=%s kind=%s err=%v",
			h.engine, h.kind, res.Err)
	}
	return res.BytesFreed
}

// ModelLoad is the host-facing reload entry point.
func (h *Handle) ModelLoad(device string) {
	if res := h.Reload(device); res.Status == TransferFailed {
		log.Printf("residency event=model_load_failed engine=%s kind=%s device=%s err=%v",
			h.engine, h.kind, device, res.Err)
	}
}

// PartiallyLoad loads fully or not at all; partial loading is not supported.
// Returns the memory newly occupied on device.
func (h *Handle) PartiallyLoad(device string, extraMemory int64) int64 {
	if device == h.offloadDevice || h.LoadedSize() > 0 {
		return 0
	}
	h.ModelLoad(device)
	return h.footprint
}

// Detach is called by the host when it drops the handle from its tracking.
func (h *Handle) Detach() {
	freed := h.HardEvict()
	log.Printf("residency event=detach engine=%s kind=%s freed_bytes=%d", h.engine, h.kind, freed)
}

// resetGraphs marks any compiled accelerator graphs for lazy rebuild on next
// use. Reports whether the instance carries such state.
func (h *Handle) resetGraphs() bool {
	gc, ok := h.inst.(GraphCarrier)
	if !ok {
		return false
	}
	gc.CompiledState().Reset()
	return true
}

func (h *Handle) setResidency(r Residency) {
	h.mu.Lock()
	h.residency = r
	h.mu.Unlock()
}

func (h *Handle) setValidity(v Validity) {
	h.mu.Lock()
	h.validity = v
	h.mu.Unlock()
}
