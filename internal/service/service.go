package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"residencyd/internal/registry"
	"residencyd/internal/residency"
	"residencyd/pkg/types"
)

// Service glues the residency cache to the engine catalog and exposes the
// operations the HTTP layer serves. The cache itself never constructs
// instances; factories always come from the catalog.
type Service struct {
	cache         *residency.Cache
	catalog       *registry.Catalog
	defaultDevice string
}

func New(cache *residency.Cache, catalog *registry.Catalog, defaultDevice string) *Service {
	if defaultDevice == "" {
		defaultDevice = residency.DeviceAuto
	}
	return &Service{cache: cache, catalog: catalog, defaultDevice: defaultDevice}
}

// Engines lists the catalog entries.
func (s *Service) Engines() []types.EngineInfo { return s.catalog.Engines() }

func (s *Service) Status() types.StatusResponse { return s.cache.Status() }

func (s *Service) Stats() types.StatsResponse { return s.cache.Stats() }

// EpochNow returns the current invalidation epoch stamp.
func (s *Service) EpochNow() int64 { return s.cache.Epoch().Stamp() }

// Ready reports whether the service can accept acquire requests.
func (s *Service) Ready() bool { return s.catalog != nil && s.cache != nil }

// requestError carries an HTTP status for the API layer.
type requestError struct {
	status int
	msg    string
}

func (e requestError) Error() string { return e.msg }
func (e requestError) StatusCode() int { return e.status }

// AcquireModel materializes (or revives) the instance for the requested
// engine/kind/variant and returns its wire view.
func (s *Service) AcquireModel(ctx context.Context, req types.AcquireRequest) (types.HandleInfo, error) {
	engine := strings.TrimSpace(req.Engine)
	if engine == "" {
		return types.HandleInfo{}, requestError{http.StatusBadRequest, "engine is required"}
	}
	spec, ok := s.catalog.Lookup(engine)
	if !ok {
		return types.HandleInfo{}, requestError{http.StatusNotFound, fmt.Sprintf("unknown engine: %s", engine)}
	}
	kind := strings.TrimSpace(req.Kind)
	if kind == "" {
		kind = spec.Kind
	}
	key := residency.Key{Engine: engine, Kind: kind, Variant: strings.TrimSpace(req.Variant)}
	factory, ok := s.catalog.FactoryFor(key)
	if !ok {
		return types.HandleInfo{}, requestError{http.StatusBadRequest,
			fmt.Sprintf("engine %s does not serve kind=%s variant=%s", engine, key.Kind, key.Variant)}
	}
	device := req.Device
	if device == "" {
		device = s.defaultDevice
	}
	if _, err := s.cache.Acquire(ctx, key, factory, device, req.ForceReload); err != nil {
		return types.HandleInfo{}, err
	}
	info, ok := s.cache.HandleInfo(key)
	if !ok {
		return types.HandleInfo{}, requestError{http.StatusInternalServerError, "handle vanished after acquire"}
	}
	return info, nil
}

// RemoveModel evicts one entry. Resurrectable engines are quarantined,
// everything else is destroyed. Returns false when no entry matched.
func (s *Service) RemoveModel(engine, kind, variant string) bool {
	return s.cache.Remove(residency.Key{Engine: engine, Kind: kind, Variant: variant})
}

// ClearCache sweeps entries matching the filters; empty filters match all.
func (s *Service) ClearCache(kind, engine string) int {
	return s.cache.Clear(kind, engine)
}
