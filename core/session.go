package core

import (
	"sync"
	"time"
)

// Session is the persisted, append-only message history of a conversation,
// optionally bound to one agent at a time. It is safe for concurrent access.
//
// Contract:
//   - AddMessage is the only mutator of Messages: always append, never edit
//   - every mutation refreshes UpdatedAt
//   - Clone performs deep copies for safe divergence.
type Session struct {
	ID        string            `json:"id"`
	AgentID   string            `json:"agent_id,omitempty"`
	Messages  []Message         `json:"messages"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	mu        sync.RWMutex
}

// NewSession creates an empty session with the given id.
func NewSession(id string) *Session {
	now := time.Now().UTC()
	return &Session{ID: id, Messages: []Message{}, Metadata: map[string]string{}, CreatedAt: now, UpdatedAt: now}
}

// AddMessage appends a message to the history updating UpdatedAt.
func (s *Session) AddMessage(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = time.Now().UTC()
}

// GetMessages returns a defensive copy of the full message slice.
func (s *Session) GetMessages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := make([]Message, len(s.Messages))
	copy(msgs, s.Messages)
	return msgs
}

// AssociateAgent binds the session to an agent. A session is bound to at most
// one agent at a time; rebinding replaces the previous association.
func (s *Session) AssociateAgent(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AgentID = agentID
	s.UpdatedAt = time.Now().UTC()
}

// DisassociateAgent clears the agent binding.
func (s *Session) DisassociateAgent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AgentID = ""
	s.UpdatedAt = time.Now().UTC()
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{
		ID:        s.ID,
		AgentID:   s.AgentID,
		Messages:  make([]Message, len(s.Messages)),
		Metadata:  make(map[string]string, len(s.Metadata)),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	copy(clone.Messages, s.Messages)
	for k, v := range s.Metadata {
		clone.Metadata[k] = v
	}
	return clone
}

// SessionStore persists sessions and their message history. The runtime
// treats persistence as a sink: failures are logged, never propagated into
// the conversation flow.
type SessionStore interface {
	Save(session *Session) error
	Get(id string) (*Session, error)
	Delete(id string) error
	Exists(id string) (bool, error)
	Count() (int, error)
	AppendMessage(sessionID string, msg Message) error
}

// DefinitionStore persists reusable agent definitions.
type DefinitionStore interface {
	Save(def Definition) error
	Get(id string) (Definition, error)
	FindByName(name string) (Definition, error)
	Delete(id string) error
	Exists(id string) (bool, error)
	Count() (int, error)
}

// ImageStore persists binary image attachments referenced by messages.
type ImageStore interface {
	Save(img Image) error
	Get(id string) (Image, error)
	Delete(id string) error
	Exists(id string) (bool, error)
	Count() (int, error)
}
