package residency

import (
	"sort"
	"time"

	"residencyd/pkg/types"
)

// Stats is a read-only aggregation over active entries; quarantined handles
// are excluded from the active counts.
func (c *Cache) Stats() types.StatsResponse {
	c.mu.RLock()
	defer c.mu.RUnlock()
	resp := types.StatsResponse{
		ByKind:   make(map[string]int),
		ByEngine: make(map[string]int),
	}
	for _, h := range c.entries {
		resp.TotalHandles++
		resp.TotalLoadedBytes += h.LoadedSize()
		resp.ByKind[h.Kind()]++
		resp.ByEngine[h.Engine()]++
	}
	return resp
}

// Status builds a detailed status response for /status.
func (c *Cache) Status() types.StatusResponse {
	c.mu.RLock()
	defer c.mu.RUnlock()
	resp := types.StatusResponse{
		Entries:         make([]types.HandleInfo, 0, len(c.entries)),
		QuarantineCount: len(c.quarantine),
		Epoch:           c.epoch.Current(),
		UptimeSeconds:   int64(time.Since(c.startTime) / time.Second),
	}
	for k, h := range c.entries {
		resp.Entries = append(resp.Entries, handleInfo(k, h))
	}
	sort.Slice(resp.Entries, func(i, j int) bool {
		a, b := resp.Entries[i], resp.Entries[j]
		if a.Engine != b.Engine {
			return a.Engine < b.Engine
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Variant < b.Variant
	})
	return resp
}

func handleInfo(k Key, h *Handle) types.HandleInfo {
	return types.HandleInfo{
		ID:             h.ID(),
		Engine:         k.Engine,
		Kind:           k.Kind,
		Variant:        k.Variant,
		Residency:      string(h.Residency()),
		Validity:       string(h.Validity()),
		Device:         h.CurrentLoadedDevice(),
		FootprintBytes: h.ModelSize(),
		LoadedBytes:    h.LoadedSize(),
		CreatedEpoch:   h.CreatedStamp(),
	}
}

// HandleInfo is the wire projection of one handle under its key.
func (c *Cache) HandleInfo(key Key) (types.HandleInfo, bool) {
	c.mu.RLock()
	h, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return types.HandleInfo{}, false
	}
	return handleInfo(key, h), true
}
