package residency

import (
	"context"
	"errors"
	"testing"
)

var testPolicies = PolicySet{
	"higgs":   {Resurrectable: true, SupportsReinit: true},
	"engineA": {},
	"engineB": {},
}

func newTestCache(host Arbiter) (*Cache, *MemoryPublisher) {
	pub := NewMemoryPublisher()
	c := NewWithConfig(CacheConfig{
		Policies:  testPolicies,
		Host:      host,
		Publisher: pub,
	})
	return c, pub
}

func keyA() Key { return Key{Engine: "engineA", Kind: "tts"} }

func TestAcquireIdempotentReuse(t *testing.T) {
	c, _ := newTestCache(nil)
	factory, calls := countingFactory(2 * gib)
	h1, err := c.Acquire(context.Background(), keyA(), factory, "cuda", false)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if h1.LoadedSize() != 2*gib {
		t.Fatalf("loaded size %d", h1.LoadedSize())
	}
	h2, err := c.Acquire(context.Background(), keyA(), factory, "cuda", false)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected same handle identity on hit")
	}
	if *calls != 1 {
		t.Fatalf("factory invoked %d times", *calls)
	}
}

func TestAcquireHitReloadsOntoRequestedDevice(t *testing.T) {
	c, _ := newTestCache(nil)
	m := &fakeModel{bytes: gib}
	factory := func(ctx context.Context, device string) (Instance, error) {
		m.device = device
		return m, nil
	}
	h, _ := c.Acquire(context.Background(), keyA(), factory, "cuda", false)
	h.Evict("cpu", gib)
	h2, err := c.Acquire(context.Background(), keyA(), factory, "cuda", false)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if h2 != h || m.device != "cuda" || h2.Residency() != Resident {
		t.Fatalf("hit should reload onto cuda; instance on %s", m.device)
	}
	// "auto" leaves the handle where it is.
	h.Evict("cpu", gib)
	if _, err := c.Acquire(context.Background(), keyA(), factory, DeviceAuto, false); err != nil {
		t.Fatalf("acquire auto: %v", err)
	}
	if m.device != "cpu" {
		t.Fatalf("auto must not force a reload, instance moved to %s", m.device)
	}
}

func TestConstructionFailureLeavesNoEntry(t *testing.T) {
	c, _ := newTestCache(nil)
	factory := func(ctx context.Context, device string) (Instance, error) {
		return nil, errBoom
	}
	_, err := c.Acquire(context.Background(), keyA(), factory, "cuda", false)
	if err == nil || !IsConstructionFailed(err) {
		t.Fatalf("expected construction failure, got %v", err)
	}
	if !errors.Is(err, errBoom) {
		t.Fatalf("factory error not wrapped: %v", err)
	}
	if _, ok := c.Get(keyA()); ok {
		t.Fatalf("no entry may exist after failed construction")
	}
	if st := c.Stats(); st.TotalHandles != 0 {
		t.Fatalf("stats show phantom entry: %+v", st)
	}
}

func TestRemoveDestructiveEngine(t *testing.T) {
	host := &fakeArbiter{}
	c, _ := newTestCache(host)
	factory, calls := countingFactory(2 * gib)
	h, _ := c.Acquire(context.Background(), keyA(), factory, "cuda", false)
	if host.registeredCount() != 1 {
		t.Fatalf("handle not registered with host")
	}
	if !c.Remove(keyA()) {
		t.Fatalf("remove reported not found")
	}
	if _, ok := c.Get(keyA()); ok {
		t.Fatalf("entry still active after remove")
	}
	if h.LoadedSize() != 0 || h.Validity() != Corrupted {
		t.Fatalf("destructive remove must hard-evict: loaded=%d validity=%s", h.LoadedSize(), h.Validity())
	}
	if host.registeredCount() != 0 {
		t.Fatalf("handle still tracked by host")
	}
	// A new acquire constructs a fresh instance.
	h2, err := c.Acquire(context.Background(), keyA(), factory, "cuda", false)
	if err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	if h2 == h {
		t.Fatalf("destroyed handle must not be reused")
	}
	if *calls != 2 {
		t.Fatalf("factory calls: %d", *calls)
	}
	if c.Remove(Key{Engine: "engineA", Kind: "vc"}) {
		t.Fatalf("remove of unknown key should report false")
	}
}

func TestQuarantineAndResurrection(t *testing.T) {
	host := &fakeArbiter{}
	c, pub := newTestCache(host)
	key := Key{Engine: "higgs", Kind: "tts"}
	m := &graphModel{fakeModel: fakeModel{bytes: 2 * gib}}
	m.graphs.initialized = true
	factory := func(ctx context.Context, device string) (Instance, error) { return m, nil }

	h, err := c.Acquire(context.Background(), key, factory, "cuda", false)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !c.Remove(key) {
		t.Fatalf("remove: not found")
	}
	// Quarantined, never destroyed: instance alive, host believes memory free.
	if h.Residency() != Quarantined {
		t.Fatalf("residency after remove: %s", h.Residency())
	}
	if m.moves != 0 {
		t.Fatalf("resurrectable instance must not be unloaded on remove")
	}
	if h.LoadedSize() != 0 {
		t.Fatalf("quarantined handle counts loaded bytes")
	}
	if host.registeredCount() != 0 {
		t.Fatalf("quarantined handle still host-tracked")
	}
	if _, ok := c.Get(key); ok {
		t.Fatalf("quarantined key visible in active namespace")
	}

	h2, err := c.Acquire(context.Background(), key, failingFactory(t), "cuda", false)
	if err != nil {
		t.Fatalf("resurrect acquire: %v", err)
	}
	if h2 != h {
		t.Fatalf("resurrection must reuse the same handle")
	}
	if h2.Instance() != Instance(m) {
		t.Fatalf("resurrection must reuse the same instance identity")
	}
	if h2.Validity() != Valid {
		t.Fatalf("resurrected handle validity: %s", h2.Validity())
	}
	if m.graphs.initialized || m.graphs.resets != 1 {
		t.Fatalf("graph-ready flag must be reset on resurrection")
	}
	if h2.Residency() != Resident {
		t.Fatalf("instance never left cuda; expected resident, got %s", h2.Residency())
	}
	assertEvent(t, pub, "resurrect")
}

// failingFactory fails the test if invoked: resurrection must not construct.
func failingFactory(t *testing.T) Factory {
	return func(ctx context.Context, device string) (Instance, error) {
		t.Fatalf("factory invoked for a resurrectable key")
		return nil, nil
	}
}

func assertEvent(t *testing.T, pub *MemoryPublisher, name string) {
	t.Helper()
	for _, e := range pub.Events() {
		if e.Name == name {
			return
		}
	}
	t.Fatalf("event %q not published", name)
}

func TestQuarantineDisjointness(t *testing.T) {
	c, _ := newTestCache(nil)
	key := Key{Engine: "higgs", Kind: "tts"}
	factory, _ := countingFactory(gib)
	for i := 0; i < 3; i++ {
		if _, err := c.Acquire(context.Background(), key, factory, "cuda", false); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		c.mu.RLock()
		_, active := c.entries[key]
		_, parked := c.quarantine[key]
		c.mu.RUnlock()
		if active && parked {
			t.Fatalf("key present in both namespaces")
		}
		c.Remove(key)
		c.mu.RLock()
		_, active = c.entries[key]
		_, parked = c.quarantine[key]
		c.mu.RUnlock()
		if active && parked {
			t.Fatalf("key present in both namespaces after remove")
		}
	}
}

func TestCorruptedHandleRecoveredTransparently(t *testing.T) {
	c, pub := newTestCache(nil)
	key := Key{Engine: "higgs", Kind: "tts"}
	m := &graphModel{fakeModel: fakeModel{bytes: gib}}
	factory := func(ctx context.Context, device string) (Instance, error) { return m, nil }
	h, _ := c.Acquire(context.Background(), key, factory, "cuda", false)
	h.HardEvict()
	if h.Validity() != Corrupted {
		t.Fatalf("setup: handle not corrupted")
	}
	h2, err := c.Acquire(context.Background(), key, factory, "cuda", false)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	// Reinit-capable engine repairs in place; caller never sees corruption.
	if h2 != h || h2.Validity() != Valid || h2.Residency() != Resident {
		t.Fatalf("in-place reinit failed: validity=%s residency=%s", h2.Validity(), h2.Residency())
	}
	if m.graphs.resets == 0 {
		t.Fatalf("reinit must clear the graph-ready flag")
	}
	assertEvent(t, pub, "reinit")
}

func TestCorruptedHandleWithoutReinitIsRebuilt(t *testing.T) {
	c, _ := newTestCache(nil)
	factory, calls := countingFactory(gib)
	h, _ := c.Acquire(context.Background(), keyA(), factory, "cuda", false)
	h.HardEvict()
	h2, err := c.Acquire(context.Background(), keyA(), factory, "cuda", false)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if h2 == h {
		t.Fatalf("corrupted non-reinit handle must be replaced")
	}
	if h2.Validity() != Valid {
		t.Fatalf("fresh handle validity: %s", h2.Validity())
	}
	if *calls != 2 {
		t.Fatalf("factory calls: %d", *calls)
	}
}

func TestForceReloadDestroysHealthyEntry(t *testing.T) {
	c, _ := newTestCache(nil)
	factory, calls := countingFactory(gib)
	h, _ := c.Acquire(context.Background(), keyA(), factory, "cuda", false)
	if h.Validity() != Valid {
		t.Fatalf("setup: handle unexpectedly invalid")
	}
	h2, err := c.Acquire(context.Background(), keyA(), factory, "cuda", true)
	if err != nil {
		t.Fatalf("force acquire: %v", err)
	}
	if h2 == h {
		t.Fatalf("force reload on a non-reinit engine must recreate")
	}
	if *calls != 2 {
		t.Fatalf("factory calls: %d", *calls)
	}
}

func TestForceReloadPrefersReinit(t *testing.T) {
	c, _ := newTestCache(nil)
	key := Key{Engine: "higgs", Kind: "tts"}
	m := &graphModel{fakeModel: fakeModel{bytes: gib}}
	m.graphs.initialized = true
	calls := 0
	factory := func(ctx context.Context, device string) (Instance, error) {
		calls++
		return m, nil
	}
	h, _ := c.Acquire(context.Background(), key, factory, "cuda", false)
	h2, err := c.Acquire(context.Background(), key, factory, "cuda", true)
	if err != nil {
		t.Fatalf("force acquire: %v", err)
	}
	if h2 != h || calls != 1 {
		t.Fatalf("reinit-capable engine must be repaired, not recreated (calls=%d)", calls)
	}
	if m.graphs.initialized {
		t.Fatalf("graph flag must be reset on forced reinit")
	}
}

func TestCrossEngineSiblingEviction(t *testing.T) {
	host := &fakeArbiter{}
	c, _ := newTestCache(host)
	fa, _ := countingFactory(2 * gib)
	fb, _ := countingFactory(gib)
	keyB := Key{Engine: "engineB", Kind: "tts"}

	ha, _ := c.Acquire(context.Background(), keyA(), fa, "cuda", false)
	if len(host.freeCalls) != 1 || host.freeCalls[0] != defaultReliefBytes {
		t.Fatalf("pressure relief not requested: %v", host.freeCalls)
	}
	if _, err := c.Acquire(context.Background(), keyB, fb, "cuda", false); err != nil {
		t.Fatalf("acquire b: %v", err)
	}
	// engineA's tts instance was evicted to make room for engineB's.
	if _, ok := c.Get(keyA()); ok {
		t.Fatalf("sibling engine entry survived")
	}
	if ha.LoadedSize() != 0 {
		t.Fatalf("evicted sibling still counts loaded bytes")
	}
	st := c.Stats()
	if st.TotalLoadedBytes != gib {
		t.Fatalf("total loaded bytes reflect only the survivor: %d", st.TotalLoadedBytes)
	}
	if st.TotalHandles != 1 || st.ByEngine["engineB"] != 1 || st.ByKind["tts"] != 1 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestSiblingEvictionSparesOtherKinds(t *testing.T) {
	c, _ := newTestCache(nil)
	f, _ := countingFactory(gib)
	vcKey := Key{Engine: "engineB", Kind: "vc"}
	if _, err := c.Acquire(context.Background(), vcKey, f, "cuda", false); err != nil {
		t.Fatalf("acquire vc: %v", err)
	}
	if _, err := c.Acquire(context.Background(), keyA(), f, "cuda", false); err != nil {
		t.Fatalf("acquire tts: %v", err)
	}
	if _, ok := c.Get(vcKey); !ok {
		t.Fatalf("different-kind entry must not be evicted")
	}
}

func TestHostRegistrationFailureTolerated(t *testing.T) {
	host := &fakeArbiter{registerErr: errBoom}
	c, pub := newTestCache(host)
	factory, _ := countingFactory(gib)
	h, err := c.Acquire(context.Background(), keyA(), factory, "cuda", false)
	if err != nil {
		t.Fatalf("registration failure must not fail acquire: %v", err)
	}
	if h.LoadedSize() != gib {
		t.Fatalf("handle unusable after registration failure")
	}
	assertEvent(t, pub, "host_register_failed")
}

func TestClearFilters(t *testing.T) {
	c, _ := newTestCache(nil)
	f, _ := countingFactory(gib)
	ctx := context.Background()
	c.Acquire(ctx, Key{Engine: "engineA", Kind: "tts"}, f, "cuda", false)
	c.Acquire(ctx, Key{Engine: "engineA", Kind: "vc"}, f, "cuda", false)

	if n := c.Clear("vc", ""); n != 1 {
		t.Fatalf("cleared %d", n)
	}
	if _, ok := c.Get(Key{Engine: "engineA", Kind: "tts"}); !ok {
		t.Fatalf("tts entry should survive a vc clear")
	}
	if n := c.Clear("", ""); n != 1 {
		t.Fatalf("full clear removed %d", n)
	}
	if st := c.Stats(); st.TotalHandles != 0 {
		t.Fatalf("entries remain after clear: %+v", st)
	}
}

func TestStatusProjection(t *testing.T) {
	c, _ := newTestCache(nil)
	f, _ := countingFactory(gib)
	ctx := context.Background()
	key := Key{Engine: "higgs", Kind: "tts", Variant: "english"}
	c.Acquire(ctx, key, f, "cuda", false)
	c.Remove(key)
	c.Acquire(ctx, keyA(), f, "cuda", false)

	st := c.Status()
	if len(st.Entries) != 1 || st.QuarantineCount != 1 {
		t.Fatalf("status: %+v", st)
	}
	e := st.Entries[0]
	if e.Engine != "engineA" || e.Residency != string(Resident) || e.LoadedBytes != gib {
		t.Fatalf("entry projection: %+v", e)
	}
	info, ok := c.HandleInfo(keyA())
	if !ok || info.ID != e.ID {
		t.Fatalf("handle info mismatch")
	}
}
