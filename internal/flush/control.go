package flush

import (
	"context"

	"github.com/CodeOnCoffee/mondrian-go/internal/logutil"
	"go.uber.org/zap"
)

// manager is the subset of *cachemgr.Manager Control needs. Defined here
// rather than imported directly to avoid a cachemgr<->flush import cycle
// (cachemgr.Manager.Flush calls into this package already).
type manager interface {
	Flush(ctx context.Context, region Region) (Stats, error)
}

// CacheControl is the user-facing flush/trace API of spec.md §6.
type CacheControl interface {
	Flush(ctx context.Context, region Region) (Stats, error)
	Trace(msg string)
}

// Control implements CacheControl against a live Cache Manager.
type Control struct {
	mgr manager
}

// NewControl wraps mgr (typically a *cachemgr.Manager) as a CacheControl.
func NewControl(mgr manager) *Control {
	return &Control{mgr: mgr}
}

// Flush delegates to the Cache Manager.
func (c *Control) Flush(ctx context.Context, region Region) (Stats, error) {
	return c.mgr.Flush(ctx, region)
}

// Trace logs an operator-supplied message at info level, tagged so it's
// easy to filter cache-control activity out of the general log stream.
func (c *Control) Trace(msg string) {
	logutil.L().Info("cache control trace", zap.String("msg", msg))
}
