package engine

import (
	"encoding/json"
	"sort"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
)

// messageAssembler accumulates partial content blocks into complete messages.
// It emits stream passthrough events for deltas and boundaries and exactly
// one message-category event per completed message. Malformed input (deltas
// with no open block, duplicate block indices) is recovered locally: logged,
// dropped or repaired, never fatal to the stream.
type messageAssembler struct {
	logger logging.Logger
}

// pendingMessage buffers an in-flight assistant message. Accumulated text and
// tool input are monotonically appended until the terminating stop event.
type pendingMessage struct {
	messageID string
	model     string
	blocks    map[int]*pendingBlock
}

type pendingBlock struct {
	index     int
	blockType core.BlockType
	toolID    string
	toolName  string
	text      string
	inputJSON string
}

func (a *messageAssembler) process(agentID string, st *agentState, ev core.StreamEvent) []core.OutputEvent {
	switch e := ev.(type) {
	case core.MessageStart:
		return a.onMessageStart(agentID, st, e)
	case core.ContentBlockStart:
		return a.onBlockStart(agentID, st, e)
	case core.ContentBlockDelta:
		return a.onBlockDelta(agentID, st, e)
	case core.ContentBlockStop:
		return a.onBlockStop(agentID, st, e)
	case core.MessageDelta:
		st.block.lastStopReason = e.StopReason
		st.block.lastStopSequence = e.StopSequence
		return nil
	case core.MessageStop:
		return a.onMessageStop(agentID, st)
	case core.ToolResult:
		msg := core.NewToolResultMessage(agentID, e)
		return []core.OutputEvent{core.NewMessageOutput(agentID, core.OutputToolResultMessage, msg)}
	default:
		a.logger.Warn("assembler dropped unknown stream event agent_id=%s type=%T", agentID, ev)
		return nil
	}
}

func (a *messageAssembler) onMessageStart(agentID string, st *agentState, e core.MessageStart) []core.OutputEvent {
	if st.pending != nil {
		a.logger.Warn("message_start with pending message agent_id=%s message_id=%s", agentID, st.pending.messageID)
	}
	st.block = blockContext{}
	st.pending = &pendingMessage{messageID: e.MessageID, model: e.Model, blocks: make(map[int]*pendingBlock)}

	out := core.NewStreamOutput(agentID, core.OutputMessageStart)
	out.ModelID = e.Model
	return []core.OutputEvent{out}
}

func (a *messageAssembler) onBlockStart(agentID string, st *agentState, e core.ContentBlockStart) []core.OutputEvent {
	if st.pending == nil {
		// Stream without a message_start; recover by opening one implicitly.
		a.logger.Warn("content_block_start with no open message agent_id=%s index=%d", agentID, e.Index)
		st.pending = &pendingMessage{blocks: make(map[int]*pendingBlock)}
	}
	if st.block.open {
		a.logger.Warn("content_block_start while block open agent_id=%s open_index=%d new_index=%d", agentID, st.block.blockIndex, e.Index)
	}
	if _, exists := st.pending.blocks[e.Index]; exists {
		// Later start wins; the earlier block is discarded, never merged.
		a.logger.Warn("duplicate content block index agent_id=%s index=%d", agentID, e.Index)
	}

	blk := &pendingBlock{index: e.Index, blockType: e.BlockType, toolID: e.ToolID, toolName: e.ToolName}
	st.pending.blocks[e.Index] = blk
	st.block = blockContext{
		open:             true,
		blockType:        e.BlockType,
		blockIndex:       e.Index,
		lastStopReason:   st.block.lastStopReason,
		lastStopSequence: st.block.lastStopSequence,
	}
	if e.BlockType == core.BlockTypeToolUse {
		st.block.toolID = e.ToolID
		out := core.NewStreamOutput(agentID, core.OutputToolUseStart)
		out.ToolID = e.ToolID
		return []core.OutputEvent{out}
	}
	return nil
}

func (a *messageAssembler) onBlockDelta(agentID string, st *agentState, e core.ContentBlockDelta) []core.OutputEvent {
	if st.pending == nil || !st.block.open {
		a.logger.Warn("content_block_delta with no open block agent_id=%s", agentID)
		return nil
	}
	blk := st.pending.blocks[st.block.blockIndex]
	if blk == nil {
		a.logger.Warn("content_block_delta for missing block agent_id=%s index=%d", agentID, st.block.blockIndex)
		return nil
	}

	switch e.DeltaType {
	case core.DeltaTypeText:
		blk.text += e.Text
		return []core.OutputEvent{core.NewTextDeltaOutput(agentID, e.Text)}
	case core.DeltaTypeInputJSON:
		// Raw fragments accumulate unparsed; parsing happens once at stop to
		// avoid partial-JSON errors.
		blk.inputJSON += e.PartialJSON
		out := core.NewStreamOutput(agentID, core.OutputInputJSON)
		out.Text = e.PartialJSON
		out.ToolID = blk.toolID
		return []core.OutputEvent{out}
	default:
		a.logger.Warn("content_block_delta with unknown delta type agent_id=%s type=%s", agentID, e.DeltaType)
		return nil
	}
}

func (a *messageAssembler) onBlockStop(agentID string, st *agentState, e core.ContentBlockStop) []core.OutputEvent {
	if st.pending == nil || !st.block.open {
		a.logger.Warn("content_block_stop with no open block agent_id=%s index=%d", agentID, e.Index)
		return nil
	}
	closedType := st.block.blockType
	closedTool := st.block.toolID
	st.block.open = false
	st.block.blockType = ""
	st.block.toolID = ""

	if closedType == core.BlockTypeToolUse {
		out := core.NewStreamOutput(agentID, core.OutputToolUseStop)
		out.ToolID = closedTool
		return []core.OutputEvent{out}
	}
	return []core.OutputEvent{core.NewStreamOutput(agentID, core.OutputTextBlockStop)}
}

func (a *messageAssembler) onMessageStop(agentID string, st *agentState) []core.OutputEvent {
	var outs []core.OutputEvent
	if st.pending == nil {
		a.logger.Warn("message_stop with no open message agent_id=%s", agentID)
		return []core.OutputEvent{core.NewStreamOutput(agentID, core.OutputMessageStop)}
	}
	if st.block.open {
		outs = append(outs, a.onBlockStop(agentID, st, core.ContentBlockStop{Index: st.block.blockIndex})...)
	}

	msg := a.buildMessage(agentID, st.pending)
	st.pending = nil
	outs = append(outs, core.NewMessageOutput(agentID, core.OutputAssistantMessage, msg))
	outs = append(outs, core.NewStreamOutput(agentID, core.OutputMessageStop))
	return outs
}

// flush force-closes any open block and the pending message as if the
// terminating stop events had arrived, preserving accumulated partial content.
// No message_stop echo is emitted since none was received.
func (a *messageAssembler) flush(agentID string, st *agentState) []core.OutputEvent {
	if st.pending == nil {
		return nil
	}
	var outs []core.OutputEvent
	if st.block.open {
		outs = append(outs, a.onBlockStop(agentID, st, core.ContentBlockStop{Index: st.block.blockIndex})...)
	}
	msg := a.buildMessage(agentID, st.pending)
	st.pending = nil
	outs = append(outs, core.NewMessageOutput(agentID, core.OutputAssistantMessage, msg))
	return outs
}

// buildMessage aggregates completed blocks into one assistant message, parts
// ordered by block index.
func (a *messageAssembler) buildMessage(agentID string, pm *pendingMessage) core.Message {
	indices := make([]int, 0, len(pm.blocks))
	for idx := range pm.blocks {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	parts := make([]core.ContentPart, 0, len(indices))
	for _, idx := range indices {
		blk := pm.blocks[idx]
		switch blk.blockType {
		case core.BlockTypeToolUse:
			parts = append(parts, a.buildToolUse(agentID, blk))
		default:
			parts = append(parts, core.TextContent{Text: blk.text})
		}
	}

	msg := core.NewMessage(agentID, core.RoleAssistant, parts...)
	if pm.messageID != "" {
		msg.ID = pm.messageID
	}
	if pm.model != "" {
		msg.Metadata = map[string]string{"model": pm.model}
	}
	return msg
}

// buildToolUse parses the accumulated JSON fragments. A parse failure marks
// the part with an error instead of discarding it; the policy is permanent,
// assembly is never retried.
func (a *messageAssembler) buildToolUse(agentID string, blk *pendingBlock) core.ToolUseContent {
	tu := core.ToolUseContent{ID: blk.toolID, Name: blk.toolName, RawInput: blk.inputJSON}
	if blk.inputJSON == "" {
		return tu
	}
	var input map[string]any
	if err := json.Unmarshal([]byte(blk.inputJSON), &input); err != nil {
		a.logger.Warn("tool input parse failed agent_id=%s tool_id=%s: %v", agentID, blk.toolID, err)
		tu.ParseError = err.Error()
		return tu
	}
	tu.Input = input
	return tu
}
