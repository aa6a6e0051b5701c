// Package cacheworker implements the Cache Worker Pool (C3): a uniform
// front for one bounded in-memory cache plus zero or more external
// SegmentCache plug-ins.
package cacheworker

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/CodeOnCoffee/mondrian-go/internal/logutil"
	"github.com/CodeOnCoffee/mondrian-go/internal/metrics"
	"github.com/CodeOnCoffee/mondrian-go/internal/segcache"
	"github.com/CodeOnCoffee/mondrian-go/internal/segment"
	"github.com/CodeOnCoffee/mondrian-go/internal/wire"
	"go.uber.org/zap"
)

// DefaultInMemoryCapacity is the default LRU-bounded residency of the
// in-memory worker.
const DefaultInMemoryCapacity = 100

// Pool is the uniform front C4/C5 use to put/get segment bodies across one
// in-memory tier and any number of external caches.
type Pool struct {
	inMemory  *lru.Cache[string, segment.Body]
	headerOf  map[string]segment.Header
	external  []segcache.SegmentCache
	listeners []segcache.Listener

	// ExternalEvents delivers events observed from external workers to the
	// Cache Manager. The pool only ever sends on this channel; it never
	// mutates the Segment Index directly, breaking the Manager/Worker
	// cyclic reference the source had.
	ExternalEvents chan segcache.Event
}

// New builds a Pool with an in-memory LRU of the given capacity (0 uses
// DefaultInMemoryCapacity) plus the given external caches, in priority
// order (first = checked first on Get).
func New(capacity int, external ...segcache.SegmentCache) *Pool {
	if capacity <= 0 {
		capacity = DefaultInMemoryCapacity
	}
	p := &Pool{
		headerOf:       make(map[string]segment.Header),
		external:       external,
		ExternalEvents: make(chan segcache.Event, 256),
	}
	inMemory, _ := lru.NewWithEvict[string, segment.Body](capacity, func(key string, _ segment.Body) {
		h, ok := p.headerOf[key]
		delete(p.headerOf, key)
		metrics.CacheEviction()
		if ok {
			p.emit(segcache.Event{IsLocal: true, Source: h, Type: segcache.Deleted})
		}
	})
	p.inMemory = inMemory
	for _, ext := range external {
		ext := ext
		ext.AddListener(func(ev segcache.Event) {
			ev.IsLocal = false
			select {
			case p.ExternalEvents <- ev:
			default:
				logutil.L().Warn("dropping external segment cache event: channel full")
			}
		})
	}
	return p
}

func (p *Pool) emit(ev segcache.Event) {
	for _, l := range p.listeners {
		if l != nil {
			l(ev)
		}
	}
}

// AddListener registers a local listener for put/remove/evict events.
func (p *Pool) AddListener(l segcache.Listener) {
	p.listeners = append(p.listeners, l)
}

// Put replicates header/body to the in-memory worker and every external
// worker. Before anything is admitted, the pair must round-trip through
// the wire codec (spec P6); failure is ErrNotSerializable and nothing is
// written anywhere.
func (p *Pool) Put(ctx context.Context, h segment.Header, body segment.Body) error {
	if err := wire.RoundTrip(h, body); err != nil {
		return fmt.Errorf("cacheworker: %w", err)
	}
	fp := h.Fingerprint()
	p.headerOf[fp] = h
	p.inMemory.Add(fp, body)
	p.emit(segcache.Event{IsLocal: true, Source: h, Type: segcache.Created})
	metrics.CachePut()

	for _, ext := range p.external {
		if _, err := ext.Put(ctx, h, body); err != nil {
			logutil.L().Warn("external cache put failed", zap.Error(err), zap.String("header", fp))
		}
	}
	return nil
}

// Get asks workers in priority order (in-memory first) and returns the
// first hit.
func (p *Pool) Get(ctx context.Context, h segment.Header) (segment.Body, bool, error) {
	if body, ok := p.inMemory.Get(h.Fingerprint()); ok {
		metrics.CacheHit("memory")
		return body, true, nil
	}
	for _, ext := range p.external {
		body, ok, err := ext.Get(ctx, h)
		if err != nil {
			logutil.L().Warn("external cache get failed", zap.Error(err))
			continue
		}
		if ok {
			metrics.CacheHit("external")
			return body, true, nil
		}
	}
	metrics.CacheMiss()
	return segment.Body{}, false, nil
}

// Remove drops header from every worker.
func (p *Pool) Remove(ctx context.Context, h segment.Header) {
	fp := h.Fingerprint()
	if _, ok := p.inMemory.Peek(fp); ok {
		p.inMemory.Remove(fp)
		delete(p.headerOf, fp)
		p.emit(segcache.Event{IsLocal: true, Source: h, Type: segcache.Deleted})
	}
	for _, ext := range p.external {
		if _, err := ext.Remove(ctx, h); err != nil {
			logutil.L().Warn("external cache remove failed", zap.Error(err))
		}
	}
}

// Len reports the in-memory worker's current residency, used by tests to
// assert the eviction cap (P7).
func (p *Pool) Len() int { return p.inMemory.Len() }

// Shutdown stops every external worker.
func (p *Pool) Shutdown(ctx context.Context) error {
	for _, ext := range p.external {
		if err := ext.Shutdown(ctx); err != nil {
			return err
		}
	}
	return nil
}
