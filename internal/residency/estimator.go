package residency

// DefaultFootprintBytes is the conservative estimate used for instances
// that expose no parameter introspection. Treating unknown instances as
// large keeps budget checks honest.
const DefaultFootprintBytes int64 = 1 << 30

// Estimate computes the approximate fast-memory footprint of an instance in
// bytes. Parameterized instances are summed directly; composites recurse one
// level into components. Opaque instances, zero-byte results, and panicking
// introspection all degrade to DefaultFootprintBytes. Estimate never fails.
func Estimate(inst Instance) (size int64) {
	defer func() {
		if r := recover(); r != nil {
			size = DefaultFootprintBytes
		}
	}()
	size = estimate(inst)
	if size <= 0 {
		size = DefaultFootprintBytes
	}
	return size
}

func estimate(inst Instance) int64 {
	if inst == nil {
		return 0
	}
	if p, ok := inst.(Parameterized); ok {
		return sumBuffers(p.Parameters())
	}
	if c, ok := inst.(Composite); ok {
		var total int64
		for _, comp := range c.Components() {
			if p, ok := comp.(Parameterized); ok {
				total += sumBuffers(p.Parameters())
			}
		}
		return total
	}
	return 0
}

// estimateComponent sizes a single sub-component during composite eviction.
// Unlike Estimate it reports 0 for opaque components so per-component freed
// accounting does not overstate.
func estimateComponent(comp Instance) int64 {
	if p, ok := comp.(Parameterized); ok {
		return sumBuffers(p.Parameters())
	}
	return 0
}

func sumBuffers(bufs []Buffer) int64 {
	var total int64
	for _, b := range bufs {
		if b.Elements > 0 && b.ElementSize > 0 {
			total += b.Elements * b.ElementSize
		}
	}
	return total
}
