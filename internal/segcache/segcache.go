// Package segcache defines the SegmentCache plug-in SPI (spec §6): the
// interface external, possibly process-external, cache transports
// implement, plus the tagged event record used in place of the source's
// anonymous inner-listener objects.
package segcache

import (
	"context"

	"github.com/CodeOnCoffee/mondrian-go/internal/segment"
)

// EventType distinguishes a SegmentCache creation from a deletion.
type EventType int

const (
	Created EventType = iota
	Deleted
)

func (t EventType) String() string {
	if t == Created {
		return "CREATED"
	}
	return "DELETED"
}

// Event is the tagged-event record replacing the source's anonymous
// listener objects: IsLocal distinguishes events raised by this process'
// own workers from ones observed from an external transport.
type Event struct {
	IsLocal bool
	Source  segment.Header
	Type    EventType
}

// Listener receives SegmentCache events. A plain function value, not an
// interface, per the "anonymous event emitter" design note.
type Listener func(Event)

// Body is the opaque, serialisable payload stored against a Header.
type Body = segment.Body

// SegmentCache is the plug-in SPI external cache transports implement.
// Implementations may be process-external (a remote cache service); the
// only requirement this module imposes is that Header/Body survive the
// internal/wire round trip.
type SegmentCache interface {
	Contains(ctx context.Context, h segment.Header) (bool, error)
	Get(ctx context.Context, h segment.Header) (Body, bool, error)
	Put(ctx context.Context, h segment.Header, body Body) (bool, error)
	Remove(ctx context.Context, h segment.Header) (bool, error)
	GetSegmentHeaders(ctx context.Context) ([]segment.Header, error)
	AddListener(l Listener) (remove func())
	// SupportsRichIndex reports whether GetSegmentHeaders is cheap/complete
	// enough to enumerate. Nothing in this module calls it: the Segment Index
	// is filled only by local registration and by Created/Deleted events, and
	// has no startup enumeration path.
	SupportsRichIndex() bool
	Shutdown(ctx context.Context) error
}
