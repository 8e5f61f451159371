package engine

import (
	"sync"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
)

// Options configures an Engine instance using the functional options pattern.
type Options struct {
	// Logger provides structured logging for protocol anomaly reporting.
	// Defaults to NoOp logger if nil.
	Logger logging.Logger
}

// Engine is the per-agent stream-event transducer. It owns all transducer
// state exclusively, keyed by agent id; no external component reads or writes
// it directly. Process itself is synchronous and non-suspending, so events
// for one agent can never interleave mid-processing.
type Engine struct {
	logger logging.Logger

	assembler *messageAssembler
	states    *stateProcessor
	turns     *turnTracker

	mu     sync.RWMutex
	agents map[string]*agentState
}

// New creates an Engine with an empty state store.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Engine{
		logger:    opts.Logger,
		assembler: &messageAssembler{logger: opts.Logger},
		states:    &stateProcessor{},
		turns:     &turnTracker{logger: opts.Logger},
		agents:    make(map[string]*agentState),
	}
}

// agentState is the complete transducer state for one agent. Owned
// exclusively by the engine's store.
type agentState struct {
	block      blockContext
	pending    *pendingMessage
	conv       core.ConversationState
	toolBlocks map[int]struct{}
	turn       *pendingTurn
}

// blockContext is the per-agent content-block cursor. Reset at message_start.
// Invariant: at most one open content block at a time; toolID is non-empty
// iff blockType == tool_use.
type blockContext struct {
	open             bool
	blockType        core.BlockType
	blockIndex       int
	toolID           string
	lastStopReason   string
	lastStopSequence string
}

func newAgentState() *agentState {
	return &agentState{conv: core.StateIdle, toolBlocks: make(map[int]struct{})}
}

// state returns the stored state for agentID, creating a fresh one for
// unknown ids. Losing transducer state degrades gracefully: processing
// resumes from an initialized state rather than failing.
func (e *Engine) state(agentID string) *agentState {
	e.mu.RLock()
	st, ok := e.agents[agentID]
	e.mu.RUnlock()
	if ok {
		return st
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok = e.agents[agentID]; ok {
		return st
	}
	st = newAgentState()
	e.agents[agentID] = st
	return st
}

// Process transforms one stream event into zero or more output events,
// mutating only the agentID-scoped stored state. For one input event the
// outputs are yielded in fixed sub-processor order: assembler outputs first,
// then state transitions, then turn outputs.
func (e *Engine) Process(agentID string, ev core.StreamEvent) []core.OutputEvent {
	st := e.state(agentID)

	msgOuts := e.assembler.process(agentID, st, ev)
	outs := append([]core.OutputEvent{}, msgOuts...)
	outs = append(outs, e.states.process(agentID, st, ev)...)
	outs = append(outs, e.turns.process(agentID, st, ev, msgOuts)...)
	return outs
}

// OpenTurn starts a new turn for agentID. A still-open turn is a protocol
// violation resolved by closing it with stop reason "superseded" before the
// new one opens, keeping consumers responsive instead of rejecting the send.
func (e *Engine) OpenTurn(agentID, turnID string) []core.OutputEvent {
	st := e.state(agentID)

	var outs []core.OutputEvent
	if st.turn != nil {
		e.logger.Warn("turn superseded while open agent_id=%s turn_id=%s", agentID, st.turn.id)
		outs = append(outs, e.turns.close(agentID, st, StopReasonSuperseded))
	}
	st.turn = &pendingTurn{id: turnID, startedAt: time.Now()}
	outs = append(outs, core.NewTurnRequestOutput(agentID, turnID))
	return outs
}

// Interrupt force-closes any open content block and pending message for
// agentID, as if the terminating stop events had arrived, so downstream
// consumers see a well-formed (if truncated) message. The open turn closes
// with stop reason "interrupted" and the conversation state returns to idle.
func (e *Engine) Interrupt(agentID string) []core.OutputEvent {
	st := e.state(agentID)

	var outs []core.OutputEvent
	outs = append(outs, e.assembler.flush(agentID, st)...)
	if st.conv != core.StateIdle {
		outs = append(outs, core.NewStateOutput(agentID, st.conv, core.StateIdle))
		st.conv = core.StateIdle
	}
	st.toolBlocks = make(map[int]struct{})
	if st.turn != nil {
		outs = append(outs, e.turns.closeWith(agentID, st, StopReasonInterrupted, messagesOf(outs)))
	}
	return outs
}

// Fail records a provider failure for agentID: pending output is flushed, the
// state passes through erroring back to idle, and the open turn (if any)
// closes with stop reason "error". The agent is not destroyed; the next send
// starts from a clean idle state.
func (e *Engine) Fail(agentID string) []core.OutputEvent {
	st := e.state(agentID)

	var outs []core.OutputEvent
	outs = append(outs, e.assembler.flush(agentID, st)...)
	if st.conv != core.StateErroring {
		outs = append(outs, core.NewStateOutput(agentID, st.conv, core.StateErroring))
		st.conv = core.StateErroring
	}
	outs = append(outs, core.NewStateOutput(agentID, core.StateErroring, core.StateIdle))
	st.conv = core.StateIdle
	st.toolBlocks = make(map[int]struct{})
	if st.turn != nil {
		outs = append(outs, e.turns.closeWith(agentID, st, StopReasonError, messagesOf(outs)))
	}
	return outs
}

// Destroy evicts all stored state for agentID. It is idempotent: destroying
// an unknown or already evicted agent is a no-op.
func (e *Engine) Destroy(agentID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.agents, agentID)
}

// State reports the current conversation state for agentID. Unknown agents
// report idle.
func (e *Engine) State(agentID string) core.ConversationState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if st, ok := e.agents[agentID]; ok {
		return st.conv
	}
	return core.StateIdle
}

// HasState reports whether the engine currently holds state for agentID.
func (e *Engine) HasState(agentID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.agents[agentID]
	return ok
}

// messagesOf extracts message-category payloads from a pass's outputs so a
// forced turn close can still carry the flushed partial message.
func messagesOf(outs []core.OutputEvent) []core.Message {
	var msgs []core.Message
	for _, out := range outs {
		if out.Category == core.CategoryMessage && out.Message != nil {
			msgs = append(msgs, *out.Message)
		}
	}
	return msgs
}
