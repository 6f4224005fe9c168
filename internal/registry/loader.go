// Package registry loads the engine catalog: which model engines exist,
// what kinds and variants they serve, and what the residency cache may do
// to their instances.
package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"residencyd/internal/residency"
	"residencyd/pkg/types"
)

// EngineSpec is one catalog entry.
type EngineSpec struct {
	ID             string   `yaml:"id" json:"id"`
	Kind           string   `yaml:"kind" json:"kind"`
	Variants       []string `yaml:"variants" json:"variants,omitempty"`
	Resurrectable  bool     `yaml:"resurrectable" json:"resurrectable"`
	SupportsReinit bool     `yaml:"supports_reinit" json:"supports_reinit"`
	// CompiledGraphs marks engines whose instances carry device-bound
	// precompiled graphs (lazily initialized, reset on resurrection).
	CompiledGraphs bool `yaml:"compiled_graphs" json:"compiled_graphs"`
	// Composite engines are built from independently movable components.
	Composite bool `yaml:"composite" json:"composite"`
	// FootprintMB sizes the synthetic instances; 0 falls back to the
	// estimator's conservative default.
	FootprintMB int64 `yaml:"footprint_mb" json:"footprint_mb"`
}

type catalogFile struct {
	Engines []EngineSpec `yaml:"engines"`
}

// Catalog indexes engine specs by id.
type Catalog struct {
	engines []EngineSpec
	byID    map[string]EngineSpec
}

// Load reads a YAML engine catalog from path.
func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return NewCatalog(f.Engines)
}

// NewCatalog validates specs and builds the index.
func NewCatalog(specs []EngineSpec) (*Catalog, error) {
	byID := make(map[string]EngineSpec, len(specs))
	for _, s := range specs {
		if s.ID == "" || s.Kind == "" {
			return nil, fmt.Errorf("engine spec needs id and kind: %+v", s)
		}
		if _, dup := byID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate engine id: %s", s.ID)
		}
		byID[s.ID] = s
	}
	return &Catalog{engines: specs, byID: byID}, nil
}

// Policies derives the residency policy set from the catalog.
func (c *Catalog) Policies() residency.PolicySet {
	ps := make(residency.PolicySet, len(c.engines))
	for _, s := range c.engines {
		ps[s.ID] = residency.Policy{
			Resurrectable:  s.Resurrectable,
			SupportsReinit: s.SupportsReinit,
		}
	}
	return ps
}

// Engines returns the catalog as wire-level engine infos.
func (c *Catalog) Engines() []types.EngineInfo {
	out := make([]types.EngineInfo, 0, len(c.engines))
	for _, s := range c.engines {
		out = append(out, types.EngineInfo{
			ID:             s.ID,
			Kind:           s.Kind,
			Variants:       append([]string(nil), s.Variants...),
			Resurrectable:  s.Resurrectable,
			SupportsReinit: s.SupportsReinit,
			FootprintBytes: s.FootprintMB << 20,
		})
	}
	return out
}

// Lookup returns the spec for an engine id.
func (c *Catalog) Lookup(id string) (EngineSpec, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// FactoryFor returns a construction factory for key, validating that the
// engine exists, serves the requested kind, and knows the variant.
func (c *Catalog) FactoryFor(key residency.Key) (residency.Factory, bool) {
	s, ok := c.byID[key.Engine]
	if !ok || s.Kind != key.Kind {
		return nil, false
	}
	if key.Variant != "" && len(s.Variants) > 0 && !contains(s.Variants, key.Variant) {
		return nil, false
	}
	return newSyntheticFactory(s), true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
