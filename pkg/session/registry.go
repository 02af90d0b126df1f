package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/teslashibe/go-rehearse/pkg/exercise"
)

// Registry maps IDs to live sessions and creates them from the catalog.
type Registry struct {
	catalog *exercise.Catalog
	deps    Deps
	opts    []Option
	logger  *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates a registry. opts apply to every session it creates.
func NewRegistry(catalog *exercise.Catalog, deps Deps, logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		catalog:  catalog,
		deps:     deps,
		opts:     opts,
		logger:   logger.With("component", "session.registry"),
		sessions: make(map[string]*Session),
	}
}

// Create resolves kind and registers a new idle session. extra options
// apply to this session only.
func (r *Registry) Create(kind exercise.Kind, extra ...Option) (*Session, error) {
	profile, err := r.catalog.Profile(kind)
	if err != nil {
		return nil, err
	}
	opts := make([]Option, 0, len(r.opts)+len(extra))
	opts = append(opts, r.opts...)
	opts = append(opts, extra...)

	s, err := New(profile, r.deps, opts...)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[s.ID()] = s
	n := len(r.sessions)
	r.mu.Unlock()

	r.logger.Info("session created", "session_id", s.ID(), "kind", kind, "live", n)
	return s, nil
}

// Get returns a live session.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// List returns the live sessions ordered by ID.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close closes a session and forgets it.
func (r *Registry) Close(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.Close(ctx)
}

// CloseAll closes every session.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	var errs []error
	for id, s := range all {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", id, err))
		}
	}
	if len(errs) > 0 {
		r.logger.Warn("sessions did not close cleanly", "count", len(errs))
	}
	return errors.Join(errs...)
}
