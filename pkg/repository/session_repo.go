package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/3-electric-sheep/wisdk-go/pkg/domain"
)

// SessionRepository owns the in-memory session and its persisted copy.
// Mutations go through Update so every change hits the store immediately;
// readers always see the latest fields, never a stale snapshot. In-memory
// state is the source of truth: a failed save is logged and the mutation
// stands.
type SessionRepository struct {
	backend Backend
	logger  *slog.Logger

	mu      sync.RWMutex
	current domain.Session
}

// NewSessionRepository creates a repository over the given backend.
func NewSessionRepository(backend Backend, logger *slog.Logger) *SessionRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionRepository{backend: backend, logger: logger}
}

// Load reads the persisted session blob. A missing blob or an unreadable
// one is a cold start, not an error.
func (r *SessionRepository) Load(ctx context.Context) error {
	blob, err := r.backend.Load(ctx, KeySessionSettings)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.Warn("session load failed, starting cold", "error", err)
		}
		return nil
	}

	var s domain.Session
	if err := json.Unmarshal(blob, &s); err != nil {
		r.logger.Warn("session blob unreadable, starting cold", "error", err)
		return nil
	}

	r.mu.Lock()
	r.current = s
	r.mu.Unlock()
	return nil
}

// Session returns a copy of the current session.
func (r *SessionRepository) Session() domain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Authorized reports whether the current session holds an access token.
func (r *SessionRepository) Authorized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.Authorized()
}

// Update mutates the session under the lock and persists the result. The
// returned error reports persistence failure only; the in-memory mutation
// is never rolled back.
func (r *SessionRepository) Update(ctx context.Context, mutate func(*domain.Session)) error {
	r.mu.Lock()
	mutate(&r.current)
	blob, err := json.Marshal(&r.current)
	r.mu.Unlock()

	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.backend.Save(ctx, KeySessionSettings, blob); err != nil {
		r.logger.Error("session save failed", "error", err)
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Reset clears the session in memory and removes the persisted blob.
func (r *SessionRepository) Reset(ctx context.Context) error {
	r.mu.Lock()
	r.current = domain.Session{}
	r.mu.Unlock()
	return r.backend.Delete(ctx, KeySessionSettings)
}
