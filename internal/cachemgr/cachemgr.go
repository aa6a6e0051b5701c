// Package cachemgr implements the Cache Manager (C4): the single-writer
// executor that owns the Segment Index and keeps it in sync with the Cache
// Worker Pool, including externally-announced segments.
package cachemgr

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/CodeOnCoffee/mondrian-go/internal/cacheworker"
	"github.com/CodeOnCoffee/mondrian-go/internal/flush"
	"github.com/CodeOnCoffee/mondrian-go/internal/logutil"
	"github.com/CodeOnCoffee/mondrian-go/internal/olap"
	"github.com/CodeOnCoffee/mondrian-go/internal/segcache"
	"github.com/CodeOnCoffee/mondrian-go/internal/segidx"
	"github.com/CodeOnCoffee/mondrian-go/internal/segment"
)

// ErrShutdown is returned by Execute (and everything built on it) once the
// Manager has been shut down, instead of racing a send against a closed
// cmdCh. spec.md §4.4/§7: "subsequent execute fails with Shutdown".
var ErrShutdown = errors.New("cachemgr: manager is shut down")

// command is a closure run exclusively on the executor goroutine; it is the
// only way the Segment Index is ever touched, so Register/Unregister need
// no lock of their own. err carries a recovered command panic back to the
// caller with a captured stack trace (github.com/pkg/errors.WithStack),
// since the executor goroutine must never die from one bad command.
type command struct {
	run  func(*segidx.Index)
	done chan struct{}
	err  error
}

// Manager owns the Segment Index and the Cache Worker Pool together,
// serialising every index mutation (local registration and external
// announce/retract) through one goroutine.
type Manager struct {
	Pool *cacheworker.Pool

	cmdCh chan *command
	// quit is closed by Shutdown to signal the executor goroutine and any
	// blocked Execute callers. cmdCh itself is never closed, since a send
	// on it racing a close would panic the caller's goroutine instead of
	// failing gracefully with ErrShutdown.
	quit      chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// New starts the executor goroutine and the external-event consumer loop.
func New(pool *cacheworker.Pool) *Manager {
	m := &Manager{
		Pool:   pool,
		cmdCh:  make(chan *command),
		quit:   make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go m.run()
	return m
}

func (m *Manager) run() {
	defer close(m.doneCh)
	index := segidx.New()
	for {
		select {
		case cmd := <-m.cmdCh:
			runCommand(index, cmd)
			close(cmd.done)
		case ev, ok := <-m.Pool.ExternalEvents:
			if !ok {
				continue
			}
			m.enqueueExternalEvent(ev)
		case <-m.quit:
			return
		}
	}
}

// enqueueExternalEvent turns a Pool-observed external announcement into a
// command on the same cmdCh every local mutation travels through, rather
// than applying it inline in the run() select, so an externally-announced
// segment's ordering relative to local Register/Unregister calls is a
// structural property of the command queue (spec.md §4.4/§5) and not an
// accident of which select case happened to be chosen. Dispatched from a
// helper goroutine since run() is both cmdCh's only sender here and its
// only receiver, so it cannot send to itself synchronously.
func (m *Manager) enqueueExternalEvent(ev segcache.Event) {
	go func() {
		ctx := context.Background()
		var err error
		switch ev.Type {
		case segcache.Created:
			err = m.ExternalSegmentCreated(ctx, ev.Source)
		case segcache.Deleted:
			err = m.ExternalSegmentDeleted(ctx, ev.Source)
		default:
			return
		}
		if err != nil && !errors.Is(err, ErrShutdown) {
			logutil.L().Warn("failed to apply external segment event", zap.Error(err))
		}
	}()
}

// runCommand executes cmd on the executor goroutine, recovering a panic so
// one bad command never kills the goroutine every later Execute call
// depends on. The recovered value is captured with a stack trace via
// github.com/pkg/errors.WithStack and handed back to the Execute caller.
func runCommand(index *segidx.Index, cmd *command) {
	defer func() {
		if r := recover(); r != nil {
			logutil.L().Error("recovered panic in cache manager command", zap.Any("panic", r))
			cmd.err = errors.WithStack(fmt.Errorf("cachemgr: command panicked: %v", r))
		}
	}()
	cmd.run(index)
}

// Execute runs fn on the executor goroutine and blocks until it completes.
// It returns ErrShutdown if the Manager has been (or is concurrently being)
// shut down, or ctx.Err() if ctx is cancelled first (fn may still run to
// completion on the executor side; its result is simply not observed).
func (m *Manager) Execute(ctx context.Context, fn func(*segidx.Index)) error {
	cmd := &command{run: fn, done: make(chan struct{})}
	select {
	case m.cmdCh <- cmd:
	case <-m.quit:
		return ErrShutdown
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-cmd.done:
		return cmd.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExternalSegmentCreated announces a segment observed on an external
// SegmentCache backend, registering it in the index through the same
// command path as a local RegisterSegment.
func (m *Manager) ExternalSegmentCreated(ctx context.Context, h segment.Header) error {
	err := m.Execute(ctx, func(ix *segidx.Index) { ix.Register(h) })
	if err == nil {
		logutil.L().Debug("external segment created", zap.String("header", h.Fingerprint()))
	}
	return err
}

// ExternalSegmentDeleted announces an externally-observed retraction,
// unregistering it through the same command path as a local Unregister.
func (m *Manager) ExternalSegmentDeleted(ctx context.Context, h segment.Header) error {
	err := m.Execute(ctx, func(ix *segidx.Index) { ix.Unregister(h) })
	if err == nil {
		logutil.L().Debug("external segment deleted", zap.String("header", h.Fingerprint()))
	}
	return err
}

// RegisterSegment records a newly-loaded local segment in both the index
// and the worker pool cache.
func (m *Manager) RegisterSegment(ctx context.Context, wd *segment.WithData) error {
	if err := m.Pool.Put(ctx, wd.Header, segment.ToBody(wd)); err != nil {
		return err
	}
	return m.Execute(ctx, func(ix *segidx.Index) { ix.Register(wd.Header) })
}

// Unregister drops h from the index and the worker pool.
func (m *Manager) Unregister(ctx context.Context, h segment.Header) error {
	m.Pool.Remove(ctx, h)
	return m.Execute(ctx, func(ix *segidx.Index) { ix.Unregister(h) })
}

// Locate runs segidx.Locate against the live index.
func (m *Manager) Locate(ctx context.Context, star olap.StarIdentity, factAlias string, bitKey olap.BitKey, mapped map[int]olap.Value, preds olap.CompoundList) ([]segment.Header, error) {
	var out []segment.Header
	err := m.Execute(ctx, func(ix *segidx.Index) {
		out = segidx.Locate(ix, star, factAlias, bitKey, mapped, preds)
	})
	return out, err
}

// All returns every registered header, read through the executor goroutine
// (used by cmd/cachectl's stats subcommand).
func (m *Manager) All(ctx context.Context) ([]segment.Header, error) {
	var out []segment.Header
	err := m.Execute(ctx, func(ix *segidx.Index) { out = ix.All() })
	return out, err
}

// Flush runs region against every registered segment from inside the
// executor goroutine, so C8's index mutations share the same single-writer
// guarantee as everything else in C2/C3 (spec.md §4.4/§5).
func (m *Manager) Flush(ctx context.Context, region flush.Region) (flush.Stats, error) {
	var stats flush.Stats
	var ferr error
	err := m.Execute(ctx, func(ix *segidx.Index) {
		stats, ferr = flush.Flush(ctx, ix, m.Pool, region)
	})
	if err != nil {
		return stats, err
	}
	return stats, ferr
}

// Shutdown stops the executor goroutine and the worker pool. Idempotent.
// Every Execute call made after Shutdown returns (or racing its close of
// quit) fails with ErrShutdown rather than panicking on a closed channel.
func (m *Manager) Shutdown(ctx context.Context) error {
	var err error
	m.closeOnce.Do(func() {
		close(m.quit)
		<-m.doneCh
		err = m.Pool.Shutdown(ctx)
	})
	return err
}
