// Package registry owns the live collaborative-document instances. There is
// at most one instance per canonical key; every open editor borrows it
// through acquire/release and the registry disposes it when the last borrower
// lets go. The refcount table is private to this package — nothing outside
// can touch the counter, which is how the floor invariant (refs never
// negative) is enforced.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Factory constructs the collaborative-document instance for a key. It may
// block on network or storage I/O. Concurrent acquires for one key share a
// single factory call.
type Factory func(ctx context.Context) (any, error)

// Disposer tears down an instance once the registry drops it.
type Disposer func(key string, instance any)

// ErrForceReleased is returned to acquirers whose construction was overtaken
// by ForceReleaseAll (session teardown).
var ErrForceReleased = errors.New("registry: handle force-released during construction")

// Handle is a borrowed reference to a live instance. The registry keeps
// ownership; callers pair every acquired Handle with one Release.
type Handle struct {
	key      string
	instance any
}

func (h *Handle) Key() string   { return h.key }
func (h *Handle) Instance() any { return h.instance }

type entry struct {
	key            string
	refs           int
	instance       any
	err            error
	ready          chan struct{} // closed when construction settles
	built          bool
	forced         bool
	lastReleasedAt time.Time
}

// Registry is safe for concurrent use. Acquire and release for one key are
// serialized against that key's construction; different keys are independent.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	dispose Disposer
	grace   time.Duration
	log     zerolog.Logger
}

// New builds a registry. grace delays disposal after the refcount reaches
// zero so an immediate re-acquire (a UI re-render closing and reopening the
// same document) reuses the instance instead of churning it; zero means
// dispose immediately.
func New(dispose Disposer, grace time.Duration, log zerolog.Logger) *Registry {
	if dispose == nil {
		dispose = func(string, any) {}
	}
	return &Registry{
		entries: make(map[string]*entry),
		dispose: dispose,
		grace:   grace,
		log:     log.With().Str("component", "registry").Logger(),
	}
}

// Acquire returns the live handle for key, constructing it with factory on
// first use. While a construction is in flight, further acquires for the same
// key wait for it rather than building a second instance. A caller whose ctx
// expires before construction finishes gets ctx.Err(), but the construction
// itself runs to completion; its result is disposed if nobody else claimed it.
func (r *Registry) Acquire(ctx context.Context, key string, factory Factory) (*Handle, error) {
	r.mu.Lock()
	if e, ok := r.entries[key]; ok {
		e.refs++
		r.mu.Unlock()
		return r.await(ctx, e)
	}

	e := &entry{key: key, refs: 1, ready: make(chan struct{})}
	r.entries[key] = e
	r.mu.Unlock()

	// Construction outlives the caller's ctx: a cancelled acquire must not
	// abort a build that a concurrent acquire is waiting on.
	instance, err := factory(context.WithoutCancel(ctx))

	r.mu.Lock()
	if err != nil {
		e.err = err
		if r.entries[key] == e {
			// Roll back to absent so a retry can reconstruct.
			delete(r.entries, key)
		}
		close(e.ready)
		r.mu.Unlock()
		return nil, err
	}
	e.instance = instance
	e.built = true
	if e.forced {
		e.err = ErrForceReleased
		close(e.ready)
		r.mu.Unlock()
		r.dispose(key, instance)
		return nil, ErrForceReleased
	}
	close(e.ready)
	if e.refs == 0 {
		// Every acquirer abandoned interest mid-construction. The build
		// still ran to completion, so dispose the result right away.
		if r.entries[key] == e {
			delete(r.entries, key)
		}
		r.mu.Unlock()
		r.dispose(key, instance)
		return nil, context.Canceled
	}
	r.mu.Unlock()
	return &Handle{key: key, instance: instance}, nil
}

// await blocks a second acquirer on an in-flight or completed construction.
func (r *Registry) await(ctx context.Context, e *entry) (*Handle, error) {
	select {
	case <-e.ready:
	case <-ctx.Done():
		// Drop the reservation once construction settles; until then the
		// entry must stay so the builder sees our (withdrawn) interest in
		// the right order.
		go func() {
			<-e.ready
			if e.err == nil {
				r.Release(e.key)
			}
		}()
		return nil, ctx.Err()
	}
	if e.err != nil {
		return nil, e.err
	}
	return &Handle{key: e.key, instance: e.instance}, nil
}

// Release drops one borrowed reference. Releasing an unknown key, or more
// times than acquired, is a logged no-op returning false — the count never
// goes negative.
func (r *Registry) Release(key string) bool {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok || e.refs == 0 {
		r.mu.Unlock()
		r.log.Debug().Str("key", key).Msg("release without matching acquire")
		return false
	}
	e.refs--
	if e.refs > 0 || !e.built {
		// Still borrowed, or still constructing; the construction completion
		// path handles disposal for the latter.
		r.mu.Unlock()
		return true
	}
	cleanup := r.retireLocked(e)
	r.mu.Unlock()
	if cleanup != nil {
		cleanup()
	}
	return true
}

// retireLocked starts disposal for a built entry whose refcount reached zero.
// It returns the work to run after the registry lock is dropped.
func (r *Registry) retireLocked(e *entry) func() {
	e.lastReleasedAt = time.Now()
	if r.grace <= 0 {
		delete(r.entries, e.key)
		instance := e.instance
		return func() { r.dispose(e.key, instance) }
	}
	stamp := e.lastReleasedAt
	time.AfterFunc(r.grace, func() { r.reap(e, stamp) })
	return nil
}

// reap finishes a grace-deferred disposal unless the entry was re-acquired
// (refs > 0) or re-released since (a newer timer owns it).
func (r *Registry) reap(e *entry, stamp time.Time) {
	r.mu.Lock()
	current, ok := r.entries[e.key]
	if !ok || current != e || e.refs > 0 || !e.lastReleasedAt.Equal(stamp) {
		r.mu.Unlock()
		return
	}
	delete(r.entries, e.key)
	instance := e.instance
	r.mu.Unlock()
	r.dispose(e.key, instance)
}

// ForceReleaseAll unconditionally disposes every entry regardless of
// refcount. In-flight constructions are marked so their result is disposed
// the moment it materializes and their waiters receive ErrForceReleased.
// Only session teardown calls this.
func (r *Registry) ForceReleaseAll() {
	r.mu.Lock()
	snapshot := r.entries
	r.entries = make(map[string]*entry)
	var built []*entry
	for _, e := range snapshot {
		if e.built {
			built = append(built, e)
		} else {
			e.forced = true
		}
	}
	r.mu.Unlock()

	for _, e := range built {
		r.dispose(e.key, e.instance)
	}
	if n := len(snapshot); n > 0 {
		r.log.Info().Int("handles", n).Msg("force-released all document handles")
	}
}

// Contains reports whether key has a live or grace-pending entry.
func (r *Registry) Contains(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key]
	return ok
}

// Refs returns the current refcount for key, zero when absent.
func (r *Registry) Refs(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		return e.refs
	}
	return 0
}

// Len returns the number of tracked keys, grace-pending entries included.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
