package residency

// HostManaged is the capability surface a host memory manager may call on a
// registered handle. *Handle satisfies it at all times.
type HostManaged interface {
	LoadedSize() int64
	ModelSize() int64
	CurrentLoadedDevice() string
	PartiallyUnload(device string, bytesToFree int64) int64
	ModelLoad(device string)
	IsClone(other HostManaged) bool
	Detach()
}

// Arbiter is the consumed host memory manager capability. The cache requests
// budget before constructing instances and registers handles so the host's
// own eviction pressure can reach them. All calls are best effort; the cache
// never blocks on an exact amount being freed.
type Arbiter interface {
	// FreeMemory asks the host to free roughly bytes on device and returns
	// how much it believes it freed.
	FreeMemory(bytes int64, device string) int64
	// Register makes a handle visible to the host's eviction logic.
	Register(h HostManaged) error
	// Unregister removes a handle from host tracking; afterwards the host
	// considers its memory free even if the instance is kept alive.
	Unregister(h HostManaged)
}

// NoopArbiter is the default binding when no host is present; the cache then
// operates purely locally.
type NoopArbiter struct{}

func (NoopArbiter) FreeMemory(bytes int64, device string) int64 { return 0 }
func (NoopArbiter) Register(HostManaged) error                  { return nil }
func (NoopArbiter) Unregister(HostManaged)                      {}

var _ Arbiter = NoopArbiter{}
