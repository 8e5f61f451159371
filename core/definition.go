package core

import "time"

// Definition is a reusable agent template: the static configuration a new
// agent instance is created from. Definitions are opaque records to the core;
// the runtime resolves them into driver configuration at creation time.
type Definition struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	SystemPrompt string            `json:"system_prompt,omitempty"`
	Model        string            `json:"model,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// NewDefinition creates a definition with a fresh id and UTC timestamp.
func NewDefinition(name, systemPrompt, model string) Definition {
	return Definition{
		ID:           NewID(),
		Name:         name,
		SystemPrompt: systemPrompt,
		Model:        model,
		CreatedAt:    time.Now().UTC(),
	}
}

// Image is a binary attachment persisted alongside sessions.
type Image struct {
	ID        string    `json:"id"`
	MimeType  string    `json:"mime_type"`
	Data      []byte    `json:"data"`
	CreatedAt time.Time `json:"created_at"`
}

// NewImage creates an image record copying the provided bytes.
func NewImage(mimeType string, data []byte) Image {
	cp := make([]byte, len(data))
	copy(cp, data)
	return Image{ID: NewID(), MimeType: mimeType, Data: cp, CreatedAt: time.Now().UTC()}
}
