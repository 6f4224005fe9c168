// Package residency provides the model residency cache and lifecycle
// manager: handles that make a model instance a manageable resource,
// the cache that indexes them by logical key, and the eviction,
// quarantine and resurrection protocol that keeps the cache consistent
// with host-reported memory pressure. It is structured into small files
// by concern:
//
//   - cache.go: Cache type, Acquire/Remove/Clear and the quarantine protocol.
//   - config.go: CacheConfig and package defaults; NewWithConfig applies defaults.
//   - handle.go: Handle residency state machine and the host capability surface.
//   - instance.go: capability interfaces instances may implement (Transferable,
//     Composite, Parameterized, GraphCarrier).
//   - estimator.go: fast-memory footprint estimation.
//   - epoch.go: process-wide invalidation epoch.
//   - policy.go: per-engine lifecycle policy (resurrectable, in-place reinit).
//   - host.go: consumed host memory arbiter capability.
//   - result.go: transfer results with explicit reason codes.
//   - errors.go: error types and helpers (IsNotFound, IsConstructionFailed).
//   - events.go: lifecycle events and the EventPublisher interface.
//   - status.go: Stats/Status reporting helpers.
//   - preload.go: Preloader for streaming workers.
//
// The cache assumes cooperative, effectively single-caller-at-a-time access
// per key. The internal mutex keeps read-only observers (Stats, Status) safe
// against concurrent mutation but does not make a multi-step Acquire atomic
// for competing writers of the same key; callers must serialize those.
package residency
