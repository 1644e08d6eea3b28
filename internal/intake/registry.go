package intake

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/clinic-intake/pkg/logging"
)

// ErrSessionNotFound is returned for unknown or evicted conversation ids.
var ErrSessionNotFound = errors.New("intake: conversation not found")

// SessionObserver tracks registry size.
type SessionObserver interface {
	SetActiveSessions(n int)
	AddEvicted(n int)
}

// RegistryOptions configures eviction.
type RegistryOptions struct {
	// TTL evicts sessions idle for longer than this. Zero disables it.
	TTL time.Duration
	// EndedTTL evicts ended sessions idle for longer than this. Zero falls
	// back to TTL.
	EndedTTL time.Duration
	Now      func() time.Time
	Metrics  SessionObserver
	Logger   *logging.Logger
}

type entry struct {
	mu       sync.Mutex
	session  *Session
	lastSeen time.Time
	evicted  bool
}

// Registry holds live sessions. Turns on one session are serialized by a
// per-session lock; different sessions proceed in parallel.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	ttl      time.Duration
	endedTTL time.Duration
	now      func() time.Time
	metrics  SessionObserver
	logger   *logging.Logger
}

func NewRegistry(opts RegistryOptions) *Registry {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.EndedTTL <= 0 {
		opts.EndedTTL = opts.TTL
	}
	return &Registry{
		entries:  make(map[string]*entry),
		ttl:      opts.TTL,
		endedTTL: opts.EndedTTL,
		now:      opts.Now,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}
}

// Create registers a fresh session in ask_name, applies init under the
// session lock, and returns a copy.
func (r *Registry) Create(init func(*Session)) Session {
	now := r.now()
	e := &entry{session: newSession(uuid.NewString(), now), lastSeen: now}
	e.mu.Lock()
	defer e.mu.Unlock()

	r.mu.Lock()
	r.entries[e.session.ID] = e
	size := len(r.entries)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SetActiveSessions(size)
	}
	if init != nil {
		init(e.session)
	}
	return e.session.Clone()
}

func (r *Registry) lookup(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// Update runs fn on the session while holding its lock. The session is the
// live value; fn's changes are the turn's result.
func (r *Registry) Update(ctx context.Context, id string, fn func(ctx context.Context, s *Session) error) error {
	e, ok := r.lookup(id)
	if !ok {
		return ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evicted {
		return ErrSessionNotFound
	}
	err := fn(ctx, e.session)
	now := r.now()
	e.session.UpdatedAt = now
	e.lastSeen = now
	return err
}

// Snapshot returns a copy of the session.
func (r *Registry) Snapshot(id string) (Session, error) {
	e, ok := r.lookup(id)
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evicted {
		return Session{}, ErrSessionNotFound
	}
	return e.session.Clone(), nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Sweep evicts expired sessions and returns how many were removed. A session
// whose lock is held by an in-flight turn is skipped until the next sweep.
func (r *Registry) Sweep() int {
	now := r.now()
	r.mu.Lock()
	evicted := 0
	for id, e := range r.entries {
		if !e.mu.TryLock() {
			continue
		}
		ttl := r.ttl
		if e.session.State.Terminal() {
			ttl = r.endedTTL
		}
		if ttl > 0 && now.Sub(e.lastSeen) > ttl {
			e.evicted = true
			delete(r.entries, id)
			evicted++
		}
		e.mu.Unlock()
	}
	size := len(r.entries)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.AddEvicted(evicted)
		r.metrics.SetActiveSessions(size)
	}
	if evicted > 0 {
		r.logger.Debug("evicted idle sessions", "count", evicted, "remaining", size)
	}
	return evicted
}

// Run sweeps on every interval tick until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
