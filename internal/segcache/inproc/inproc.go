// Package inproc is a process-local SegmentCache reference implementation,
// standing in for a remote plug-in cache in tests and in cmd/cachectl so
// the Cache Worker Pool's external-listener path has a concrete driver.
package inproc

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/CodeOnCoffee/mondrian-go/internal/segcache"
	"github.com/CodeOnCoffee/mondrian-go/internal/segment"
	"github.com/CodeOnCoffee/mondrian-go/internal/wire"
)

// Cache is an in-process SegmentCache backed by a bounded LRU. It supports
// a "rich index" (GetSegmentHeaders enumerates cheaply), unlike a cold
// remote transport.
type Cache struct {
	mu        sync.RWMutex
	entries   *lru.Cache[string, entry]
	listeners []segcache.Listener
	lid       int
}

type entry struct {
	header segment.Header
	body   segment.Body
}

// New returns an in-process SegmentCache with room for capacity segments.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 1000
	}
	c := &Cache{}
	entries, _ := lru.NewWithEvict[string, entry](capacity, func(_ string, e entry) {
		c.notify(segcache.Event{IsLocal: true, Source: e.header, Type: segcache.Deleted})
	})
	c.entries = entries
	return c
}

func (c *Cache) notify(ev segcache.Event) {
	c.mu.RLock()
	ls := append([]segcache.Listener(nil), c.listeners...)
	c.mu.RUnlock()
	for _, l := range ls {
		l(ev)
	}
}

func (c *Cache) Contains(ctx context.Context, h segment.Header) (bool, error) {
	_, ok := c.entries.Get(h.Fingerprint())
	return ok, nil
}

func (c *Cache) Get(ctx context.Context, h segment.Header) (segcache.Body, bool, error) {
	e, ok := c.entries.Get(h.Fingerprint())
	if !ok {
		return segcache.Body{}, false, nil
	}
	return e.body, true, nil
}

func (c *Cache) Put(ctx context.Context, h segment.Header, body segcache.Body) (bool, error) {
	if err := wire.RoundTrip(h, body); err != nil {
		return false, err
	}
	c.entries.Add(h.Fingerprint(), entry{header: h, body: body})
	c.notify(segcache.Event{IsLocal: true, Source: h, Type: segcache.Created})
	return true, nil
}

func (c *Cache) Remove(ctx context.Context, h segment.Header) (bool, error) {
	ok := c.entries.Remove(h.Fingerprint())
	if ok {
		c.notify(segcache.Event{IsLocal: true, Source: h, Type: segcache.Deleted})
	}
	return ok, nil
}

func (c *Cache) GetSegmentHeaders(ctx context.Context) ([]segment.Header, error) {
	keys := c.entries.Keys()
	out := make([]segment.Header, 0, len(keys))
	for _, k := range keys {
		if e, ok := c.entries.Peek(k); ok {
			out = append(out, e.header)
		}
	}
	return out, nil
}

func (c *Cache) AddListener(l segcache.Listener) func() {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	idx := len(c.listeners) - 1
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if idx < len(c.listeners) {
			c.listeners[idx] = nil
		}
	}
}

func (c *Cache) SupportsRichIndex() bool { return true }

func (c *Cache) Shutdown(ctx context.Context) error { return nil }
