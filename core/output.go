package core

import "time"

// Category groups output events by the consumer concern they serve.
type Category string

const (
	// CategoryStream carries low-level passthrough events (deltas, boundaries).
	CategoryStream Category = "stream"
	// CategoryMessage carries completed conversation messages.
	CategoryMessage Category = "message"
	// CategoryState carries conversation state transitions.
	CategoryState Category = "state"
	// CategoryTurn carries turn boundary events.
	CategoryTurn Category = "turn"
	// CategoryLifecycle carries agent lifecycle notifications.
	CategoryLifecycle Category = "lifecycle"
)

// OutputType tags the concrete shape of an OutputEvent.
type OutputType string

const (
	// Stream category.
	OutputMessageStart  OutputType = "message_start"
	OutputTextDelta     OutputType = "text_delta"
	OutputInputJSON     OutputType = "input_json_delta"
	OutputTextBlockStop OutputType = "text_block_stop"
	OutputToolUseStart  OutputType = "tool_use_start"
	OutputToolUseStop   OutputType = "tool_use_stop"
	OutputMessageStop   OutputType = "message_stop"

	// Message category.
	OutputAssistantMessage  OutputType = "assistant_message"
	OutputToolResultMessage OutputType = "tool_result_message"
	OutputErrorMessage      OutputType = "error_message"

	// State category.
	OutputStateChanged OutputType = "state_changed"

	// Turn category.
	OutputTurnRequest  OutputType = "turn_request"
	OutputTurnResponse OutputType = "turn_response"

	// Lifecycle category.
	OutputInterrupted      OutputType = "interrupted"
	OutputSessionResumed   OutputType = "session_resumed"
	OutputSessionDestroyed OutputType = "session_destroyed"
)

// Valid reports whether t is one of the known output event tags. Used to
// validate handler registrations up front instead of failing at dispatch.
func (t OutputType) Valid() bool {
	switch t {
	case OutputMessageStart, OutputTextDelta, OutputInputJSON, OutputTextBlockStop,
		OutputToolUseStart, OutputToolUseStop, OutputMessageStop,
		OutputAssistantMessage, OutputToolResultMessage, OutputErrorMessage,
		OutputStateChanged, OutputTurnRequest, OutputTurnResponse,
		OutputInterrupted, OutputSessionResumed, OutputSessionDestroyed:
		return true
	default:
		return false
	}
}

// ConversationState is the engine-derived per-agent conversation state.
type ConversationState string

const (
	// StateIdle means no message is being generated.
	StateIdle ConversationState = "idle"
	// StateResponding means an assistant message is streaming.
	StateResponding ConversationState = "responding"
	// StateToolExecuting means a tool_use block is open.
	StateToolExecuting ConversationState = "tool_executing"
	// StateErroring means the last cycle surfaced a provider error.
	StateErroring ConversationState = "erroring"
)

// EventContext identifies the agent/session/container an output event belongs
// to. The engine fills AgentID; the agent layer adds the rest before emission.
type EventContext struct {
	AgentID     string `json:"agent_id"`
	SessionID   string `json:"session_id,omitempty"`
	ContainerID string `json:"container_id,omitempty"`
}

// StateChange describes a conversation state transition. Emitted only on
// actual transitions; no-op transitions produce no event.
type StateChange struct {
	From ConversationState `json:"from"`
	To   ConversationState `json:"to"`
}

// TurnResponse bounds one completed user/assistant exchange.
type TurnResponse struct {
	TurnID     string    `json:"turn_id"`
	Messages   []Message `json:"messages"`
	StopReason string    `json:"stop_reason"`
	DurationMs int64     `json:"duration_ms"`
}

// OutputEvent is the engine's produced artifact, delivered to presenters via
// the event bus. Exactly one payload field matching Type is populated. Events
// are immutable once emitted and their ordering equals the order the engine
// produced them for one input stream event.
type OutputEvent struct {
	Type      OutputType   `json:"type"`
	Category  Category     `json:"category"`
	Timestamp time.Time    `json:"timestamp"`
	Context   EventContext `json:"context"`

	// Payloads, selected by Type.
	Text    string        `json:"text,omitempty"`     // text_delta / input_json_delta fragments
	Message *Message      `json:"message,omitempty"`  // message category
	State   *StateChange  `json:"state,omitempty"`    // state_changed
	Turn    *TurnResponse `json:"turn,omitempty"`     // turn_response
	TurnID  string        `json:"turn_id,omitempty"`  // turn_request
	ToolID  string        `json:"tool_id,omitempty"`  // tool_use_start/stop
	ErrText string        `json:"error,omitempty"`    // error_message detail
	ModelID string        `json:"model_id,omitempty"` // message_start
}

func newOutput(agentID string, typ OutputType, cat Category) OutputEvent {
	return OutputEvent{
		Type:      typ,
		Category:  cat,
		Timestamp: time.Now().UTC(),
		Context:   EventContext{AgentID: agentID},
	}
}

// NewStreamOutput creates a stream-category passthrough event.
func NewStreamOutput(agentID string, typ OutputType) OutputEvent {
	return newOutput(agentID, typ, CategoryStream)
}

// NewTextDeltaOutput creates a text_delta stream event.
func NewTextDeltaOutput(agentID, text string) OutputEvent {
	ev := newOutput(agentID, OutputTextDelta, CategoryStream)
	ev.Text = text
	return ev
}

// NewMessageOutput wraps a completed message as an output event.
func NewMessageOutput(agentID string, typ OutputType, msg Message) OutputEvent {
	ev := newOutput(agentID, typ, CategoryMessage)
	ev.Message = &msg
	return ev
}

// NewStateOutput creates a state_changed event for an actual transition.
func NewStateOutput(agentID string, from, to ConversationState) OutputEvent {
	ev := newOutput(agentID, OutputStateChanged, CategoryState)
	ev.State = &StateChange{From: from, To: to}
	return ev
}

// NewTurnRequestOutput marks the opening of a turn.
func NewTurnRequestOutput(agentID, turnID string) OutputEvent {
	ev := newOutput(agentID, OutputTurnRequest, CategoryTurn)
	ev.TurnID = turnID
	return ev
}

// NewTurnResponseOutput closes a turn with its collected messages.
func NewTurnResponseOutput(agentID string, turn TurnResponse) OutputEvent {
	ev := newOutput(agentID, OutputTurnResponse, CategoryTurn)
	ev.Turn = &turn
	return ev
}

// NewLifecycleOutput creates a lifecycle-category notification.
func NewLifecycleOutput(agentID string, typ OutputType) OutputEvent {
	return newOutput(agentID, typ, CategoryLifecycle)
}
