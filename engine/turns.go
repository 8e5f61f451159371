package engine

import (
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
)

// Stop reasons attached to turn_response events for non-natural completions.
const (
	// StopReasonSuperseded closes a stale turn when a new one opens on top of it.
	StopReasonSuperseded = "superseded"
	// StopReasonInterrupted closes a turn cut short by an explicit interrupt.
	StopReasonInterrupted = "interrupted"
	// StopReasonError closes a turn terminated by a provider failure.
	StopReasonError = "error"
)

// turnTracker pairs one user-initiated send with the full assistant response
// cycle it produces, including tool round-trips. At most one turn is open per
// agent; each turn closes exactly once.
type turnTracker struct {
	logger logging.Logger
}

// pendingTurn is the accumulation buffer for the open turn of one agent.
type pendingTurn struct {
	id        string
	startedAt time.Time
	messages  []core.Message
}

// process attaches message outputs from the current pass to the open turn and
// closes the turn when the message stops for a reason other than tool use.
func (t *turnTracker) process(agentID string, st *agentState, ev core.StreamEvent, msgOuts []core.OutputEvent) []core.OutputEvent {
	if st.turn == nil {
		return nil
	}
	st.turn.messages = append(st.turn.messages, messagesOf(msgOuts)...)

	if _, ok := ev.(core.MessageStop); !ok {
		return nil
	}
	// A tool_use stop reason means the driver will execute tools and resume
	// with another message; the turn stays open across the round-trip.
	if st.block.lastStopReason == core.StopReasonToolUse {
		return nil
	}
	return []core.OutputEvent{t.close(agentID, st, st.block.lastStopReason)}
}

// close finalizes the open turn with the given stop reason, emitting exactly
// one turn_response. An empty reason defaults to natural completion.
func (t *turnTracker) close(agentID string, st *agentState, stopReason string) core.OutputEvent {
	return t.closeWith(agentID, st, stopReason, nil)
}

// closeWith additionally attaches messages flushed in the same pass (e.g. the
// truncated message produced by an interrupt) before finalizing.
func (t *turnTracker) closeWith(agentID string, st *agentState, stopReason string, extra []core.Message) core.OutputEvent {
	turn := st.turn
	st.turn = nil
	if stopReason == "" {
		stopReason = core.StopReasonEndTurn
	}
	turn.messages = append(turn.messages, extra...)

	t.logger.Debug("turn closed agent_id=%s turn_id=%s stop_reason=%s messages=%d", agentID, turn.id, stopReason, len(turn.messages))
	return core.NewTurnResponseOutput(agentID, core.TurnResponse{
		TurnID:     turn.id,
		Messages:   turn.messages,
		StopReason: stopReason,
		DurationMs: time.Since(turn.startedAt).Milliseconds(),
	})
}
