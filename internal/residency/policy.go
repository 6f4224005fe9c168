package residency

// Policy captures what the cache may do to an engine's instances.
type Policy struct {
	// Resurrectable engines hold device-bound compiled state tied to their
	// instance's memory addresses; their instances are never destroyed, only
	// quarantined, for the lifetime of the process.
	Resurrectable bool
	// SupportsReinit engines can repair a corrupted instance in place by
	// resetting compiled graphs and reloading, instead of destroy-and-recreate.
	SupportsReinit bool
}

// PolicySet maps engine id to policy. Unknown engines get the zero policy:
// destroyable, no in-place reinit.
type PolicySet map[string]Policy

func (ps PolicySet) For(engine string) Policy {
	if ps == nil {
		return Policy{}
	}
	return ps[engine]
}
