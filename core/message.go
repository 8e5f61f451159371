package core

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the conversational author of a message.
type Role string

const (
	// RoleUser marks user-authored input.
	RoleUser Role = "user"
	// RoleAssistant marks model-generated output.
	RoleAssistant Role = "assistant"
	// RoleTool marks tool execution results.
	RoleTool Role = "tool"
	// RoleError marks surfaced failures; errors become log entries so that
	// interactive and batch consumers see one consistent stream.
	RoleError Role = "error"
	// RoleSystem marks runtime-authored control messages.
	RoleSystem Role = "system"
)

// ContentPart is a polymorphic segment of message content. Concrete part
// types implement the unexported isContentPart marker enabling a closed set.
type ContentPart interface{ isContentPart() }

// TextContent is a plain text content segment.
type TextContent struct {
	Text string `json:"text"`
}

// isContentPart implements the ContentPart interface for TextContent.
func (TextContent) isContentPart() {}

// ToolUseContent is an assembled tool invocation. Input holds the parsed
// arguments; RawInput preserves the concatenated JSON fragments exactly as
// streamed. ParseError is set when the fragments did not concatenate into
// valid JSON; the part is still emitted rather than discarded.
type ToolUseContent struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Input      map[string]any `json:"input,omitempty"`
	RawInput   string         `json:"raw_input,omitempty"`
	ParseError string         `json:"parse_error,omitempty"`
}

// isContentPart implements the ContentPart interface for ToolUseContent.
func (ToolUseContent) isContentPart() {}

// ToolResultContent is the outcome of a previously emitted tool use.
type ToolResultContent struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

// isContentPart implements the ContentPart interface for ToolResultContent.
func (ToolResultContent) isContentPart() {}

// Message is one entry of a conversation log. Messages are append-only
// records: once created they are never mutated.
type Message struct {
	ID        string            `json:"id"`
	AgentID   string            `json:"agent_id,omitempty"`
	Role      Role              `json:"role"`
	Content   []ContentPart     `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewID generates a unique identifier for messages, events, turns and sessions.
func NewID() string { return uuid.NewString() }

// NewMessage creates a message with a fresh id and UTC timestamp.
func NewMessage(agentID string, role Role, parts ...ContentPart) Message {
	return Message{
		ID:        NewID(),
		AgentID:   agentID,
		Role:      role,
		Content:   parts,
		Timestamp: time.Now().UTC(),
	}
}

// NewUserMessage creates a user-authored text message.
func NewUserMessage(agentID, text string) Message {
	return NewMessage(agentID, RoleUser, TextContent{Text: text})
}

// NewErrorMessage surfaces a failure as a conversation-log entry.
func NewErrorMessage(agentID string, err error) Message {
	return NewMessage(agentID, RoleError, TextContent{Text: err.Error()})
}

// NewToolResultMessage records a tool outcome delivered by the driver.
func NewToolResultMessage(agentID string, res ToolResult) Message {
	return NewMessage(agentID, RoleTool, ToolResultContent{
		ToolUseID: res.ToolUseID,
		Content:   res.Content,
		IsError:   res.IsError,
	})
}

// Text concatenates the message's text parts preserving order.
func (m Message) Text() string {
	var out string
	for _, p := range m.Content {
		if tp, ok := p.(TextContent); ok {
			out += tp.Text
		}
	}
	return out
}

// ToolUses returns any ToolUseContent parts preserving their original order.
func (m Message) ToolUses() []ToolUseContent {
	var uses []ToolUseContent
	for _, p := range m.Content {
		if tu, ok := p.(ToolUseContent); ok {
			uses = append(uses, tu)
		}
	}
	return uses
}
