package registry

import (
	"context"

	"residencyd/internal/residency"
)

// Synthetic instances stand in for real engine runtimes so the daemon and
// its tests exercise the full residency protocol without linking model
// backends. Their shape (transferable, composite, graph-carrying) follows
// the catalog spec.

type syntheticModel struct {
	buffers []residency.Buffer
	device  string
}

func (m *syntheticModel) MoveTo(device string) error {
	m.device = device
	return nil
}

func (m *syntheticModel) Parameters() []residency.Buffer { return m.buffers }

func (m *syntheticModel) Device() string { return m.device }

type syntheticGraphModel struct {
	syntheticModel
	graphs syntheticGraphState
}

func (m *syntheticGraphModel) CompiledState() residency.GraphState { return &m.graphs }

type syntheticGraphState struct{ initialized bool }

func (g *syntheticGraphState) Initialized() bool { return g.initialized }
func (g *syntheticGraphState) Reset()            { g.initialized = false }

type syntheticComposite struct {
	parts map[string]residency.Instance
}

func (m *syntheticComposite) Components() map[string]residency.Instance { return m.parts }

func newSyntheticFactory(spec EngineSpec) residency.Factory {
	return func(ctx context.Context, device string) (residency.Instance, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bytes := spec.FootprintMB << 20
		if bytes <= 0 {
			bytes = residency.DefaultFootprintBytes
		}
		if spec.Composite {
			// Split the footprint over two float32 component stacks.
			return &syntheticComposite{parts: map[string]residency.Instance{
				"encoder": &syntheticModel{device: device, buffers: []residency.Buffer{{Elements: bytes / 8, ElementSize: 4}}},
				"decoder": &syntheticModel{device: device, buffers: []residency.Buffer{{Elements: bytes / 8, ElementSize: 4}}},
			}}, nil
		}
		base := syntheticModel{device: device, buffers: []residency.Buffer{{Elements: bytes / 4, ElementSize: 4}}}
		if spec.CompiledGraphs {
			return &syntheticGraphModel{syntheticModel: base}, nil
		}
		return &base, nil
	}
}
