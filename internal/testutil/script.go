// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing stream-event sequences. These helpers are
// intentionally minimal and not intended for production usage.
package testutil

import "github.com/hupe1980/agentrelay/core"

// ScriptBuilder provides a fluent helper for constructing well-formed (or
// deliberately malformed) stream-event sequences in tests.
//
// Example:
//
//	events := NewScriptBuilder().
//		Start("m1", "test-model").
//		Text(0, "Hi", " there").
//		Stop().
//		Build()
type ScriptBuilder struct {
	events []core.StreamEvent
}

// NewScriptBuilder creates an empty builder.
func NewScriptBuilder() *ScriptBuilder { return &ScriptBuilder{} }

// Start appends a message_start event (chainable).
func (b *ScriptBuilder) Start(messageID, model string) *ScriptBuilder {
	b.events = append(b.events, core.MessageStart{MessageID: messageID, Model: model})
	return b
}

// Text appends a complete text block at index: start, one delta per fragment, stop.
func (b *ScriptBuilder) Text(index int, fragments ...string) *ScriptBuilder {
	b.OpenText(index)
	for _, f := range fragments {
		b.TextDelta(f)
	}
	return b.CloseBlock(index)
}

// OpenText appends a content_block_start for a text block (chainable).
func (b *ScriptBuilder) OpenText(index int) *ScriptBuilder {
	b.events = append(b.events, core.ContentBlockStart{Index: index, BlockType: core.BlockTypeText})
	return b
}

// TextDelta appends a text fragment delta (chainable).
func (b *ScriptBuilder) TextDelta(text string) *ScriptBuilder {
	b.events = append(b.events, core.ContentBlockDelta{DeltaType: core.DeltaTypeText, Text: text})
	return b
}

// CloseBlock appends a content_block_stop (chainable).
func (b *ScriptBuilder) CloseBlock(index int) *ScriptBuilder {
	b.events = append(b.events, core.ContentBlockStop{Index: index})
	return b
}

// ToolUse appends a complete tool_use block: start, one input_json delta per
// fragment, stop.
func (b *ScriptBuilder) ToolUse(index int, toolID, toolName string, jsonFragments ...string) *ScriptBuilder {
	b.OpenToolUse(index, toolID, toolName)
	for _, f := range jsonFragments {
		b.JSONDelta(f)
	}
	return b.CloseBlock(index)
}

// OpenToolUse appends a content_block_start for a tool_use block (chainable).
func (b *ScriptBuilder) OpenToolUse(index int, toolID, toolName string) *ScriptBuilder {
	b.events = append(b.events, core.ContentBlockStart{
		Index:     index,
		BlockType: core.BlockTypeToolUse,
		ToolID:    toolID,
		ToolName:  toolName,
	})
	return b
}

// JSONDelta appends an input_json fragment delta (chainable).
func (b *ScriptBuilder) JSONDelta(fragment string) *ScriptBuilder {
	b.events = append(b.events, core.ContentBlockDelta{DeltaType: core.DeltaTypeInputJSON, PartialJSON: fragment})
	return b
}

// StopWith appends message_delta carrying the stop reason plus message_stop.
func (b *ScriptBuilder) StopWith(stopReason string) *ScriptBuilder {
	b.events = append(b.events, core.MessageDelta{StopReason: stopReason}, core.MessageStop{})
	return b
}

// Stop terminates the message with the natural end_turn stop reason.
func (b *ScriptBuilder) Stop() *ScriptBuilder {
	return b.StopWith(core.StopReasonEndTurn)
}

// ToolResult appends a tool_result event delivered outside message boundaries.
func (b *ScriptBuilder) ToolResult(toolUseID, content string, isError bool) *ScriptBuilder {
	b.events = append(b.events, core.ToolResult{ToolUseID: toolUseID, Content: content, IsError: isError})
	return b
}

// Build returns the accumulated event sequence.
func (b *ScriptBuilder) Build() []core.StreamEvent {
	return append([]core.StreamEvent{}, b.events...)
}
