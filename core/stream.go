package core

// BlockType identifies the kind of content block a provider is streaming.
type BlockType string

const (
	// BlockTypeText is a plain text content block.
	BlockTypeText BlockType = "text"
	// BlockTypeToolUse is a tool invocation block whose input arrives as
	// incremental JSON fragments.
	BlockTypeToolUse BlockType = "tool_use"
)

// DeltaType identifies the payload kind of a ContentBlockDelta.
type DeltaType string

const (
	// DeltaTypeText carries a plain text fragment.
	DeltaTypeText DeltaType = "text_delta"
	// DeltaTypeInputJSON carries a raw JSON fragment of a tool-use input.
	DeltaTypeInputJSON DeltaType = "input_json_delta"
)

// StreamEvent is the closed set of low-level events any driver must produce.
// Concrete event types implement the unexported isStreamEvent marker, the same
// closed-union technique used for message content parts. Events are immutable
// after construction and arrive ordered per agent.
type StreamEvent interface{ isStreamEvent() }

// MessageStart opens a new assistant message.
type MessageStart struct {
	MessageID string // Provider-assigned message identifier
	Model     string // Model that is generating the message
}

// isStreamEvent implements the StreamEvent interface for MessageStart.
func (MessageStart) isStreamEvent() {}

// ContentBlockStart opens a content block at Index within the current message.
// ToolID and ToolName are populated only for tool_use blocks.
type ContentBlockStart struct {
	Index     int
	BlockType BlockType
	ToolID    string
	ToolName  string
}

// isStreamEvent implements the StreamEvent interface for ContentBlockStart.
func (ContentBlockStart) isStreamEvent() {}

// ContentBlockDelta appends a fragment to the currently open content block.
// Exactly one of Text / PartialJSON is set, selected by DeltaType.
type ContentBlockDelta struct {
	DeltaType   DeltaType
	Text        string
	PartialJSON string
}

// isStreamEvent implements the StreamEvent interface for ContentBlockDelta.
func (ContentBlockDelta) isStreamEvent() {}

// ContentBlockStop closes the content block at Index.
type ContentBlockStop struct {
	Index int
}

// isStreamEvent implements the StreamEvent interface for ContentBlockStop.
func (ContentBlockStop) isStreamEvent() {}

// MessageDelta carries message-level metadata updates, most importantly the
// stop reason announced shortly before MessageStop.
type MessageDelta struct {
	StopReason   string
	StopSequence string
}

// isStreamEvent implements the StreamEvent interface for MessageDelta.
func (MessageDelta) isStreamEvent() {}

// MessageStop terminates the current message.
type MessageStop struct{}

// isStreamEvent implements the StreamEvent interface for MessageStop.
func (MessageStop) isStreamEvent() {}

// ToolResult delivers the outcome of an externally executed tool call back
// into the stream, outside message boundaries.
type ToolResult struct {
	ToolUseID string
	Content   string
	IsError   bool
}

// isStreamEvent implements the StreamEvent interface for ToolResult.
func (ToolResult) isStreamEvent() {}

// StopReasonToolUse is the provider stop reason indicating the message ended
// because the model requested tool execution; the turn stays open.
const StopReasonToolUse = "tool_use"

// StopReasonEndTurn is the provider stop reason for natural completion.
const StopReasonEndTurn = "end_turn"
