package residency

import (
	"context"
	"log"
)

// Resolver maps a request tag (a language code, a voice name) to the cache
// key of the model that serves it. Mapping of tags to models is an external
// concern; the preloader only consumes it as a capability.
type Resolver interface {
	Resolve(tag string) (Key, bool)
}

// FactoryProvider supplies construction factories per key, typically backed
// by an engine catalog.
type FactoryProvider interface {
	FactoryFor(key Key) (Factory, bool)
}

// Preloader warms the cache for a set of request tags so streaming workers
// can switch models without load delays. A fallback key absorbs tags that
// cannot be resolved or whose model fails to construct.
type Preloader struct {
	cache    *Cache
	resolver Resolver
	provider FactoryProvider
	fallback Key
	loaded   map[Key]*Handle
}

func NewPreloader(cache *Cache, resolver Resolver, provider FactoryProvider, fallback Key) *Preloader {
	return &Preloader{
		cache:    cache,
		resolver: resolver,
		provider: provider,
		fallback: fallback,
		loaded:   make(map[Key]*Handle),
	}
}

// RequiredKeys resolves tags to the distinct set of model keys they need.
// Unresolvable tags map to the fallback key.
func (p *Preloader) RequiredKeys(tags []string) []Key {
	seen := make(map[Key]struct{})
	var keys []Key
	for _, tag := range tags {
		key, ok := p.resolver.Resolve(tag)
		if !ok {
			key = p.fallback
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

// Preload acquires every model the given tags need, sequentially (the cache
// expects serialized mutation). Construction failures fall back to the
// fallback model when it is already available; the last failure without a
// fallback is returned.
func (p *Preloader) Preload(ctx context.Context, tags []string, device string) error {
	keys := p.RequiredKeys(tags)
	log.Printf("preload event=start models=%d tags=%d", len(keys), len(tags))
	var lastErr error
	for _, key := range keys {
		if _, ok := p.loaded[key]; ok {
			continue
		}
		factory, ok := p.provider.FactoryFor(key)
		if !ok {
			factory, ok = p.provider.FactoryFor(p.fallback)
			if !ok {
				lastErr = ErrNotFound(key)
				continue
			}
			key = p.fallback
			if _, done := p.loaded[key]; done {
				continue
			}
		}
		h, err := p.cache.Acquire(ctx, key, factory, device, false)
		if err != nil {
			log.Printf("preload event=load_failed key=%s err=%v", key, err)
			if fb, ok := p.loaded[p.fallback]; ok && key != p.fallback {
				p.loaded[key] = fb
				continue
			}
			lastErr = err
			continue
		}
		p.loaded[key] = h
	}
	log.Printf("preload event=done models=%d", len(p.loaded))
	return lastErr
}

// ModelFor returns the preloaded handle serving tag, falling back to the
// fallback model when the tag's own model is unavailable.
func (p *Preloader) ModelFor(tag string) (*Handle, bool) {
	key, ok := p.resolver.Resolve(tag)
	if !ok {
		key = p.fallback
	}
	if h, ok := p.loaded[key]; ok {
		return h, true
	}
	if h, ok := p.loaded[p.fallback]; ok {
		return h, true
	}
	return nil, false
}

// Cleanup drops the preloader's references. Cached handles stay owned by
// the residency cache.
func (p *Preloader) Cleanup() {
	p.loaded = make(map[Key]*Handle)
}
