package types

// EngineInfo describes a model engine known to the catalog.
type EngineInfo struct {
	// Stable engine identifier.
	// example: higgs
	ID string `json:"id" example:"higgs"`
	// Model family kind produced by this engine.
	// example: tts
	Kind string `json:"kind" example:"tts"`
	// Variants that can be requested for this engine (model names, languages).
	Variants []string `json:"variants,omitempty"`
	// Whether evicted instances are kept alive and restored instead of destroyed.
	Resurrectable bool `json:"resurrectable"`
	// Whether a corrupted instance can be repaired in place.
	SupportsReinit bool `json:"supports_reinit"`
	// Approximate per-instance footprint in bytes.
	FootprintBytes int64 `json:"footprint_bytes,omitempty"`
}

// AcquireRequest asks the daemon to materialize a model instance.
type AcquireRequest struct {
	Engine  string `json:"engine"`
	Kind    string `json:"kind"`
	Variant string `json:"variant,omitempty"`
	// Target device, e.g. "cuda", "cpu", or "auto".
	Device      string `json:"device,omitempty"`
	ForceReload bool   `json:"force_reload,omitempty"`
}

// HandleInfo is the wire view of one cached model handle.
type HandleInfo struct {
	ID             string `json:"id"`
	Engine         string `json:"engine"`
	Kind           string `json:"kind"`
	Variant        string `json:"variant,omitempty"`
	Residency      string `json:"residency"`
	Validity       string `json:"validity"`
	Device         string `json:"device"`
	FootprintBytes int64  `json:"footprint_bytes"`
	LoadedBytes    int64  `json:"loaded_bytes"`
	CreatedEpoch   int64  `json:"created_epoch"`
}

// StatsResponse aggregates over active cache entries only.
type StatsResponse struct {
	TotalHandles     int            `json:"total_handles"`
	TotalLoadedBytes int64          `json:"total_loaded_bytes"`
	ByKind           map[string]int `json:"by_kind"`
	ByEngine         map[string]int `json:"by_engine"`
}

// StatusResponse is the detailed view served at /status.
type StatusResponse struct {
	Entries         []HandleInfo `json:"entries"`
	QuarantineCount int          `json:"quarantine_count"`
	Epoch           int64        `json:"epoch"`
	UptimeSeconds   int64        `json:"uptime_seconds"`
}

// RemoveResponse reports the outcome of a DELETE on a cached model.
type RemoveResponse struct {
	Removed bool `json:"removed"`
}

// ClearRequest filters a cache sweep. Empty fields match everything.
type ClearRequest struct {
	Kind   string `json:"kind,omitempty"`
	Engine string `json:"engine,omitempty"`
}

// ClearResponse reports how many entries a sweep removed.
type ClearResponse struct {
	Cleared int `json:"cleared"`
}

// EpochResponse exposes the invalidation epoch to external cache layers.
type EpochResponse struct {
	Epoch int64 `json:"epoch"`
}

// ErrorResponse is the consistent JSON error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
