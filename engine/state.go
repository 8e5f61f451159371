package engine

import (
	"github.com/hupe1980/agentrelay/core"
)

// stateProcessor derives the per-agent conversation state machine from the
// raw stream events: idle → responding → tool_executing → idle. Transitions
// are emitted only when the state actually changes, and unexpected events
// while idle are ignored rather than treated as errors, which absorbs
// late-arriving events after an explicit interrupt.
type stateProcessor struct{}

func (p *stateProcessor) process(agentID string, st *agentState, ev core.StreamEvent) []core.OutputEvent {
	switch e := ev.(type) {
	case core.MessageStart:
		return p.transition(agentID, st, core.StateResponding)

	case core.ContentBlockStart:
		if e.BlockType != core.BlockTypeToolUse {
			return nil
		}
		if st.conv == core.StateIdle {
			return nil
		}
		st.toolBlocks[e.Index] = struct{}{}
		return p.transition(agentID, st, core.StateToolExecuting)

	case core.ContentBlockStop:
		if _, ok := st.toolBlocks[e.Index]; !ok {
			return nil
		}
		delete(st.toolBlocks, e.Index)
		// Concurrent tool blocks are tracked by count; return to responding
		// only when the last one closes.
		if len(st.toolBlocks) > 0 || st.conv != core.StateToolExecuting {
			return nil
		}
		return p.transition(agentID, st, core.StateResponding)

	case core.MessageStop:
		if st.conv == core.StateIdle {
			return nil
		}
		for idx := range st.toolBlocks {
			delete(st.toolBlocks, idx)
		}
		return p.transition(agentID, st, core.StateIdle)

	default:
		return nil
	}
}

func (p *stateProcessor) transition(agentID string, st *agentState, to core.ConversationState) []core.OutputEvent {
	if st.conv == to {
		return nil
	}
	from := st.conv
	st.conv = to
	return []core.OutputEvent{core.NewStateOutput(agentID, from, to)}
}
