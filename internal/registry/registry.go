// Package registry is the authoritative in-memory table of sessions.
// Every mutation is followed by a full snapshot to the store; a store
// failure is logged and the registry keeps serving from memory.
package registry

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"gowa-dispatch/internal/model"
	"gowa-dispatch/internal/store"
)

var ErrSessionNotFound = errors.New("session not found")

type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
	store    store.Store
}

func New(st store.Store) *Registry {
	return &Registry{
		sessions: make(map[string]*model.Session),
		store:    st,
	}
}

// Create inserts a fresh session record and returns its opaque key.
func (r *Registry) Create(phoneID string) *model.Session {
	sess := &model.Session{
		Key:        uuid.NewString(),
		PhoneID:    phoneID,
		LastUpdate: time.Now().UTC(),
	}

	r.mu.Lock()
	r.sessions[sess.Key] = sess
	r.persistLocked()
	r.mu.Unlock()

	return sess.Clone()
}

// Get returns a copy of the session, never registry-owned state.
func (r *Registry) Get(key string) (*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[key]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// Update applies mutate to the session under the registry lock, stamps
// LastUpdate, and persists.
func (r *Registry) Update(key string, mutate func(*model.Session)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[key]
	if !ok {
		return ErrSessionNotFound
	}

	mutate(sess)
	sess.LastUpdate = time.Now().UTC()
	r.persistLocked()
	return nil
}

func (r *Registry) Delete(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[key]; !ok {
		return ErrSessionNotFound
	}
	delete(r.sessions, key)
	r.persistLocked()
	return nil
}

// All returns copies of every session, for listings and restore walks.
func (r *Registry) All() []*model.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess.Clone())
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot forces a persist of the current table.
func (r *Registry) Snapshot() {
	r.mu.Lock()
	r.persistLocked()
	r.mu.Unlock()
}

// Restore loads the store snapshot into the table. Called once at process
// start, before any supervisor is armed. Recovered sessions come back with
// IsConnected=false; connectivity is re-established by the orchestrator.
func (r *Registry) Restore() (int, error) {
	loaded, err := r.store.Load()
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for key, sess := range loaded {
		sess.IsConnected = false
		r.sessions[key] = sess
	}
	return len(loaded), nil
}

// persistLocked writes the full table to the store. Callers hold r.mu.
func (r *Registry) persistLocked() {
	if err := r.store.Save(r.sessions); err != nil {
		log.Printf("⚠ Failed to persist session registry (continuing in memory): %v", err)
	}
}
