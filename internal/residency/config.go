package residency

import "time"

// Defaults applied when corresponding CacheConfig fields are unset.
const (
	// defaultReliefBytes is the generous budget requested from the host
	// before constructing a new instance.
	defaultReliefBytes int64 = 3 << 30
	// defaultOffloadDevice is where evicted instances land.
	defaultOffloadDevice = "cpu"
)

// CacheConfig encapsulates all tunables for Cache construction.
type CacheConfig struct {
	Policies PolicySet
	// Host is the memory arbiter binding; nil means no host cooperation.
	Host Arbiter
	// Epoch is the shared invalidation epoch; nil allocates a private one.
	Epoch *Epoch
	// Publisher receives lifecycle events; nil drops them.
	Publisher EventPublisher
	// PressureReliefBytes to request from the host before each construction.
	PressureReliefBytes int64
	OffloadDevice       string
}

// New constructs a Cache with default config for the given policies.
func New(policies PolicySet) *Cache {
	return NewWithConfig(CacheConfig{Policies: policies})
}

// NewWithConfig constructs a Cache from CacheConfig.
func NewWithConfig(cfg CacheConfig) *Cache {
	c := &Cache{
		entries:    make(map[Key]*Handle),
		quarantine: make(map[Key]*Handle),
		policies:   cfg.Policies,
		host:       cfg.Host,
		epoch:      cfg.Epoch,
		publisher:  cfg.Publisher,
	}
	if c.host == nil {
		c.host = NoopArbiter{}
	}
	if c.epoch == nil {
		c.epoch = NewEpoch()
	}
	if c.publisher == nil {
		c.publisher = noopPublisher{}
	}
	if cfg.PressureReliefBytes > 0 {
		c.reliefBytes = cfg.PressureReliefBytes
	} else {
		c.reliefBytes = defaultReliefBytes
	}
	if cfg.OffloadDevice != "" {
		c.offloadDevice = cfg.OffloadDevice
	} else {
		c.offloadDevice = defaultOffloadDevice
	}
	c.startTime = time.Now()
	return c
}
