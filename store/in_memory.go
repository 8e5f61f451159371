// Package store provides process-local implementations of the persistence
// contracts in core. They are safe for concurrent access and best suited for
// tests or ephemeral demo servers; durable backends can replace them without
// touching the runtime, which treats persistence strictly as a sink.
package store

import (
	"errors"
	"sync"

	"github.com/hupe1980/agentrelay/core"
)

// ErrNotFound is returned when a record id does not exist in a store.
var ErrNotFound = errors.New("store: not found")

// InMemorySessionStore keeps sessions in a process local map. Each returned
// session is cloned to prevent external mutation of internal state.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
}

// NewInMemorySessionStore constructs an empty in-memory session store.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[string]*core.Session)}
}

// Save stores a clone of the provided session snapshot.
func (s *InMemorySessionStore) Save(session *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session.Clone()
	return nil
}

// Get returns a clone of the stored session or ErrNotFound.
func (s *InMemorySessionStore) Get(id string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return session.Clone(), nil
}

// Delete removes the session if present. Deleting an unknown id is a no-op.
func (s *InMemorySessionStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Exists reports whether a session with the given id is stored.
func (s *InMemorySessionStore) Exists(id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[id]
	return ok, nil
}

// Count returns the number of stored sessions.
func (s *InMemorySessionStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), nil
}

// AppendMessage adds a message to an existing or lazily created session.
func (s *InMemorySessionStore) AppendMessage(sessionID string, msg core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = core.NewSession(sessionID)
		s.sessions[sessionID] = sess
	}
	sess.AddMessage(msg)
	return nil
}

// InMemoryDefinitionStore keeps agent definitions in a process local map.
type InMemoryDefinitionStore struct {
	mu   sync.RWMutex
	defs map[string]core.Definition
}

// NewInMemoryDefinitionStore constructs an empty in-memory definition store.
func NewInMemoryDefinitionStore() *InMemoryDefinitionStore {
	return &InMemoryDefinitionStore{defs: make(map[string]core.Definition)}
}

// Save stores (or overwrites) the definition.
func (s *InMemoryDefinitionStore) Save(def core.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[def.ID] = def
	return nil
}

// Get returns the definition or ErrNotFound.
func (s *InMemoryDefinitionStore) Get(id string) (core.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.defs[id]
	if !ok {
		return core.Definition{}, ErrNotFound
	}
	return def, nil
}

// FindByName returns the first definition with the given name or ErrNotFound.
func (s *InMemoryDefinitionStore) FindByName(name string) (core.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, def := range s.defs {
		if def.Name == name {
			return def, nil
		}
	}
	return core.Definition{}, ErrNotFound
}

// Delete removes the definition if present. Deleting an unknown id is a no-op.
func (s *InMemoryDefinitionStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.defs, id)
	return nil
}

// Exists reports whether a definition with the given id is stored.
func (s *InMemoryDefinitionStore) Exists(id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.defs[id]
	return ok, nil
}

// Count returns the number of stored definitions.
func (s *InMemoryDefinitionStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.defs), nil
}

// InMemoryImageStore keeps image bytes in a process local map. Data is copied
// on save and retrieval to avoid accidental external mutation of buffers.
type InMemoryImageStore struct {
	mu     sync.RWMutex
	images map[string]core.Image
}

// NewInMemoryImageStore constructs an empty in-memory image store.
func NewInMemoryImageStore() *InMemoryImageStore {
	return &InMemoryImageStore{images: make(map[string]core.Image)}
}

// Save stores (or overwrites) the image, copying its bytes.
func (s *InMemoryImageStore) Save(img core.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := img
	cp.Data = make([]byte, len(img.Data))
	copy(cp.Data, img.Data)
	s.images[img.ID] = cp
	return nil
}

// Get returns a copy of the stored image or ErrNotFound.
func (s *InMemoryImageStore) Get(id string) (core.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	img, ok := s.images[id]
	if !ok {
		return core.Image{}, ErrNotFound
	}
	cp := img
	cp.Data = make([]byte, len(img.Data))
	copy(cp.Data, img.Data)
	return cp, nil
}

// Delete removes the image if present. Deleting an unknown id is a no-op.
func (s *InMemoryImageStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.images, id)
	return nil
}

// Exists reports whether an image with the given id is stored.
func (s *InMemoryImageStore) Exists(id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.images[id]
	return ok, nil
}

// Count returns the number of stored images.
func (s *InMemoryImageStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.images), nil
}
