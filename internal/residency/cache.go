package residency

import (
	"context"
	"log"
	"sync"
	"time"
)

// Key identifies one cached model: the engine that produced it, the model
// kind, and the engine-specific configuration variant.
type Key struct {
	Engine  string
	Kind    string
	Variant string
}

func (k Key) String() string {
	s := k.Engine + "/" + k.Kind
	if k.Variant != "" {
		s += "/" + k.Variant
	}
	return s
}

// Factory constructs a model instance on device. It must be safe to call
// once per cache miss; failures propagate to Acquire's caller.
type Factory func(ctx context.Context, device string) (Instance, error)

// Cache maps logical keys to model handles and owns the acquire, evict,
// quarantine and resurrect protocol. It is the only component with
// cross-handle policy.
type Cache struct {
	mu         sync.RWMutex
	entries    map[Key]*Handle
	quarantine map[Key]*Handle

	policies  PolicySet
	host      Arbiter
	epoch     *Epoch
	publisher EventPublisher

	reliefBytes   int64
	offloadDevice string
	startTime     time.Time
}

// Epoch exposes the shared invalidation epoch for external cache layers.
func (c *Cache) Epoch() *Epoch { return c.epoch }

// Get returns the active handle for key, if any. Quarantined handles are
// not visible here.
func (c *Cache) Get(key Key) (*Handle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.entries[key]
	return h, ok
}

// Acquire returns a usable handle for key: a resurrected quarantined one, a
// valid cached one, a repaired one, or a freshly constructed one. Only
// construction failure is surfaced; every recoverable condition is handled
// with a safe default. Callers must serialize Acquire/Remove per key.
func (c *Cache) Acquire(ctx context.Context, key Key, factory Factory, device string, forceReload bool) (*Handle, error) {
	pol := c.policies.For(key.Engine)
	c.publisher.Publish(Event{Name: "acquire_start", Key: key, Fields: map[string]any{"device": device}})

	// Resurrection: a quarantined instance of a resurrectable engine is
	// restored as-is; its compiled graphs are marked for lazy rebuild so
	// stale device state is never reused.
	if pol.Resurrectable {
		c.mu.Lock()
		h, ok := c.quarantine[key]
		if ok {
			delete(c.quarantine, key)
			c.entries[key] = h
		}
		c.mu.Unlock()
		if ok {
			h.resetGraphs()
			if h.CurrentLoadedDevice() == c.offloadDevice {
				h.setResidency(Evicted)
			} else {
				h.setResidency(Resident)
			}
			h.setValidity(Valid)
			log.Printf("residency event=resurrect key=%s", key)
			c.publisher.Publish(Event{Name: "resurrect", Key: key})
			return h, nil
		}
	}

	c.mu.RLock()
	h, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		switch {
		case !forceReload && h.Validity() == Valid:
			if dev := h.CurrentLoadedDevice(); device != "" && device != DeviceAuto && dev != device {
				if res := h.Reload(device); res.Status == TransferFailed {
					log.Printf("residency event=hit_reload_failed key=%s err=%v", key, res.Err)
				}
			}
			c.publisher.Publish(Event{Name: "hit", Key: key})
			return h, nil
		case pol.SupportsReinit:
			// Corrupted entry or forced reload: repair in place, fall back
			// to destroy-and-recreate when the reload fails.
			if c.reinitInPlace(h, device) {
				c.publisher.Publish(Event{Name: "reinit", Key: key})
				return h, nil
			}
			c.destroyEntry(key, h)
		default:
			c.destroyEntry(key, h)
		}
	}

	// Pressure relief before construction: ask the host for a generous
	// budget, then evict same-kind instances of sibling engines, which are
	// unlikely to be needed resident simultaneously.
	if device != "" && device != c.offloadDevice {
		if freed := c.host.FreeMemory(c.reliefBytes, device); freed > 0 {
			log.Printf("residency event=pressure_relief device=%s freed_bytes=%d", device, freed)
		}
	}
	c.evictSiblings(key)

	inst, err := factory(ctx, device)
	if err != nil {
		c.publisher.Publish(Event{Name: "construct_failed", Key: key, Fields: map[string]any{"error": err.Error()}})
		return nil, constructionError{key: key, err: err}
	}
	h = newHandle(inst, key.Engine, key.Kind, device, c.offloadDevice, c.epoch)
	c.mu.Lock()
	c.entries[key] = h
	c.mu.Unlock()
	if err := c.host.Register(h); err != nil {
		// Host cooperation is optional; continue as a purely local cache.
		log.Printf("residency event=host_register_failed key=%s err=%v", key, err)
		c.publisher.Publish(Event{Name: "host_register_failed", Key: key, Fields: map[string]any{"error": err.Error()}})
	}
	log.Printf("residency event=created key=%s footprint_bytes=%d device=%s", key, h.ModelSize(), device)
	c.publisher.Publish(Event{Name: "created", Key: key, Fields: map[string]any{"footprint_bytes": h.ModelSize()}})
	return h, nil
}

// reinitInPlace repairs a corrupted or force-reloaded instance without
// discarding it: clear the graph-ready flag, reload, revalidate.
func (c *Cache) reinitInPlace(h *Handle, device string) bool {
	h.resetGraphs()
	if res := h.Reload(device); res.Status == TransferFailed {
		log.Printf("residency event=reinit_failed engine=%s err=%v", h.Engine(), res.Err)
		return false
	}
	h.setValidity(Valid)
	return true
}

// destroyEntry is the destructive removal of an active entry: full eviction,
// host unregistration, deletion. Used when an entry cannot be repaired.
func (c *Cache) destroyEntry(key Key, h *Handle) {
	h.HardEvict()
	c.host.Unregister(h)
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	c.publisher.Publish(Event{Name: "destroy", Key: key})
}

// evictSiblings removes same-kind entries of other engines to make room.
func (c *Cache) evictSiblings(key Key) {
	c.mu.RLock()
	var victims []Key
	for k := range c.entries {
		if k.Kind == key.Kind && k.Engine != key.Engine {
			victims = append(victims, k)
		}
	}
	c.mu.RUnlock()
	for _, k := range victims {
		c.publisher.Publish(Event{Name: "sibling_evict", Key: k})
		c.Remove(k)
	}
}

// Remove takes key out of active service. Resurrectable engines are moved
// to the quarantine namespace with the instance kept alive; the host is told
// the memory is free. Other engines are destroyed. Reports whether a handle
// was found.
func (c *Cache) Remove(key Key) bool {
	c.mu.Lock()
	h, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return false
	}
	delete(c.entries, key)
	if c.policies.For(key.Engine).Resurrectable {
		c.quarantine[key] = h
		c.mu.Unlock()
		h.setResidency(Quarantined)
		c.host.Unregister(h)
		log.Printf("residency event=quarantine key=%s", key)
		c.publisher.Publish(Event{Name: "quarantine", Key: key})
		return true
	}
	c.mu.Unlock()
	h.HardEvict()
	c.host.Unregister(h)
	log.Printf("residency event=remove key=%s", key)
	c.publisher.Publish(Event{Name: "remove", Key: key})
	return true
}

// Clear removes every active entry matching the optional filters. Empty
// filters match everything. Returns the number of entries removed.
func (c *Cache) Clear(kind, engine string) int {
	c.mu.RLock()
	var victims []Key
	for k := range c.entries {
		if kind != "" && k.Kind != kind {
			continue
		}
		if engine != "" && k.Engine != engine {
			continue
		}
		victims = append(victims, k)
	}
	c.mu.RUnlock()
	for _, k := range victims {
		c.Remove(k)
	}
	return len(victims)
}
