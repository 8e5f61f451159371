package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/agentrelay/bus"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/engine"
	"github.com/hupe1980/agentrelay/logging"
)

// Lifecycle is the coarse operational state of an agent instance.
type Lifecycle string

const (
	// LifecycleRunning accepts sends.
	LifecycleRunning Lifecycle = "running"
	// LifecycleStopped is paused; Resume returns it to running.
	LifecycleStopped Lifecycle = "stopped"
	// LifecycleInterrupted had its in-flight send cancelled; the next send
	// returns it to running.
	LifecycleInterrupted Lifecycle = "interrupted"
	// LifecycleDestroyed is terminal; no further operations are permitted.
	LifecycleDestroyed Lifecycle = "destroyed"
)

var (
	// ErrAgentDestroyed rejects use of a destroyed agent.
	ErrAgentDestroyed = errors.New("agent: agent destroyed")
	// ErrAgentBusy rejects a second send while one is in flight. Sends are
	// deliberately not queued; callers interrupt or wait.
	ErrAgentBusy = errors.New("agent: agent busy")
	// ErrAgentStopped rejects sends on a stopped agent; Resume first.
	ErrAgentStopped = errors.New("agent: agent stopped")
)

// Config wires an Instance to its collaborators. Driver, Engine and Producer
// are required; everything else has a safe default.
type Config struct {
	// ID defaults to a fresh uuid.
	ID string
	// SessionID binds outputs and persistence to a session. Optional.
	SessionID string
	// ContainerID tags output event context. Optional.
	ContainerID string

	Driver   core.Driver
	Engine   *engine.Engine
	Producer bus.Producer
	// Consumer enables React handler registration. Optional.
	Consumer bus.Consumer
	// Sessions is the persistence sink for messages. Optional; failures are
	// logged and never interrupt the conversation flow.
	Sessions core.SessionStore
	// Logger defaults to NoOp logger if nil.
	Logger logging.Logger
}

// Instance owns one conversation: message history, lifecycle state and the
// orchestration of driver → engine → bus for each send. All engine calls for
// this agent happen on the goroutine executing Send (or on Destroy after the
// in-flight send is cancelled), preserving the engine's non-interleaving
// contract.
type Instance struct {
	id          string
	sessionID   string
	containerID string

	driver   core.Driver
	engine   *engine.Engine
	producer bus.Producer
	consumer bus.Consumer
	sessions core.SessionStore
	logger   logging.Logger

	mu        sync.Mutex
	lifecycle Lifecycle
	messages  []core.Message
	busy      bool
	abort     context.CancelFunc
	subs      []*bus.Subscription
}

// NewInstance creates a running agent instance.
func NewInstance(cfg Config) (*Instance, error) {
	if cfg.Driver == nil {
		return nil, fmt.Errorf("agent: driver is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("agent: engine is required")
	}
	if cfg.Producer == nil {
		return nil, fmt.Errorf("agent: producer is required")
	}
	if cfg.ID == "" {
		cfg.ID = core.NewID()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NoOpLogger{}
	}
	return &Instance{
		id:          cfg.ID,
		sessionID:   cfg.SessionID,
		containerID: cfg.ContainerID,
		driver:      cfg.Driver,
		engine:      cfg.Engine,
		producer:    cfg.Producer,
		consumer:    cfg.Consumer,
		sessions:    cfg.Sessions,
		logger:      cfg.Logger,
		lifecycle:   LifecycleRunning,
	}, nil
}

// ID returns the agent identifier.
func (a *Instance) ID() string { return a.id }

// SessionID returns the bound session identifier, if any.
func (a *Instance) SessionID() string { return a.sessionID }

// Lifecycle returns the current lifecycle state.
func (a *Instance) Lifecycle() Lifecycle {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lifecycle
}

// Messages returns a defensive copy of the conversation history.
func (a *Instance) Messages() []core.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	msgs := make([]core.Message, len(a.messages))
	copy(msgs, a.messages)
	return msgs
}

// Send runs one full turn: it appends the user message to history, opens a
// turn, pulls the driver's stream-event sequence through the engine and
// forwards every output to the bus and the session sink. It resolves when the
// turn closes (signaled by the turn_response output, not by the driver's
// sequence ending, since a driver may idle between tool round-trips).
//
// At most one send per agent may be in flight; a concurrent send is rejected
// with ErrAgentBusy.
func (a *Instance) Send(ctx context.Context, text string) (*core.TurnResponse, error) {
	a.mu.Lock()
	switch a.lifecycle {
	case LifecycleDestroyed:
		a.mu.Unlock()
		return nil, ErrAgentDestroyed
	case LifecycleStopped:
		a.mu.Unlock()
		return nil, ErrAgentStopped
	}
	if a.busy {
		a.mu.Unlock()
		return nil, ErrAgentBusy
	}
	a.busy = true
	a.lifecycle = LifecycleRunning
	history := make([]core.Message, len(a.messages))
	copy(history, a.messages)

	sendCtx, cancel := context.WithCancel(ctx)
	a.abort = cancel
	a.mu.Unlock()

	defer func() {
		cancel()
		a.mu.Lock()
		a.busy = false
		a.abort = nil
		a.mu.Unlock()
	}()

	userMsg := core.NewUserMessage(a.id, text)
	a.appendMessage(userMsg)

	turnID := core.NewID()
	a.dispatch(a.engine.OpenTurn(a.id, turnID))

	evCh, errCh := a.driver.Send(sendCtx, userMsg, history)

	var turn *core.TurnResponse
	for ev := range evCh {
		if a.Lifecycle() == LifecycleDestroyed {
			break
		}
		if t := a.dispatch(a.engine.Process(a.id, ev)); t != nil {
			turn = t
		}
	}
	driverErr := <-errCh

	switch state := a.Lifecycle(); {
	case state == LifecycleDestroyed:
		// Destroy already evicted engine state; re-evict in case a buffered
		// event recreated it, and do not flush.
		a.engine.Destroy(a.id)
		return nil, ErrAgentDestroyed

	case state == LifecycleInterrupted:
		if t := a.dispatch(a.engine.Interrupt(a.id)); t != nil {
			turn = t
		}
		a.emitLifecycle(core.OutputInterrupted)
		return turn, nil

	case driverErr != nil && !errors.Is(driverErr, context.Canceled):
		a.logger.Error("driver error agent_id=%s: %v", a.id, driverErr)
		errMsg := core.NewErrorMessage(a.id, driverErr)
		a.appendMessage(errMsg)
		a.producer.Emit(a.withContext(core.NewMessageOutput(a.id, core.OutputErrorMessage, errMsg)))
		if t := a.dispatch(a.engine.Fail(a.id)); t != nil {
			turn = t
		}
		return turn, fmt.Errorf("agent: driver failed: %w", driverErr)

	case turn == nil:
		// Driver finished without closing the turn; flush so consumers see a
		// well-formed, if truncated, exchange.
		a.logger.Warn("driver ended before turn closed agent_id=%s turn_id=%s", a.id, turnID)
		turn = a.dispatch(a.engine.Interrupt(a.id))
		return turn, nil

	default:
		return turn, nil
	}
}

// Interrupt cancels the in-flight send, propagating cancellation to the
// driver. The send goroutine performs the engine flush so the conversation
// log ends in a consistent state rather than truncated mid-block. With no
// send in flight the lifecycle still transitions and the event is emitted.
func (a *Instance) Interrupt() {
	a.mu.Lock()
	if a.lifecycle == LifecycleDestroyed {
		a.mu.Unlock()
		return
	}
	wasBusy := a.busy
	if a.abort != nil {
		a.abort()
	}
	a.lifecycle = LifecycleInterrupted
	a.mu.Unlock()

	a.driver.Abort()
	if !wasBusy {
		a.emitLifecycle(core.OutputInterrupted)
	}
}

// Stop pauses the agent. Stopping during an in-flight send is rejected; use
// Interrupt instead.
func (a *Instance) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case a.lifecycle == LifecycleDestroyed:
		return ErrAgentDestroyed
	case a.busy:
		return ErrAgentBusy
	}
	a.lifecycle = LifecycleStopped
	return nil
}

// Resume returns a stopped or interrupted agent to running and emits a
// session_resumed lifecycle event.
func (a *Instance) Resume() error {
	a.mu.Lock()
	if a.lifecycle == LifecycleDestroyed {
		a.mu.Unlock()
		return ErrAgentDestroyed
	}
	a.lifecycle = LifecycleRunning
	a.mu.Unlock()

	a.emitLifecycle(core.OutputSessionResumed)
	return nil
}

// Clear resets the conversation history without destroying the agent. Engine
// transducer state is untouched; only completed history is discarded.
func (a *Instance) Clear() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lifecycle == LifecycleDestroyed {
		return ErrAgentDestroyed
	}
	a.messages = nil
	return nil
}

// Destroy interrupts any in-flight send, unsubscribes all React handlers,
// evicts engine state for this agent and transitions to the terminal
// destroyed state. It is idempotent: destroying twice is a no-op.
func (a *Instance) Destroy() {
	a.mu.Lock()
	if a.lifecycle == LifecycleDestroyed {
		a.mu.Unlock()
		return
	}
	if a.abort != nil {
		a.abort()
	}
	a.lifecycle = LifecycleDestroyed
	subs := a.subs
	a.subs = nil
	a.mu.Unlock()

	a.driver.Abort()
	a.engine.Destroy(a.id)
	a.emitLifecycle(core.OutputSessionDestroyed)
	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// React registers an explicit tag→handler table for this agent's output
// events. Handlers only see events carrying this agent's id. Registrations
// are released automatically on Destroy.
func (a *Instance) React(handlers map[core.OutputType]bus.Handler) (*bus.Subscription, error) {
	if a.consumer == nil {
		return nil, fmt.Errorf("agent: no bus consumer configured")
	}
	a.mu.Lock()
	if a.lifecycle == LifecycleDestroyed {
		a.mu.Unlock()
		return nil, ErrAgentDestroyed
	}
	a.mu.Unlock()

	wrapped := make(map[core.OutputType]bus.Handler, len(handlers))
	for t, h := range handlers {
		h := h
		wrapped[t] = func(ev core.OutputEvent) {
			if ev.Context.AgentID == a.id {
				h(ev)
			}
		}
	}
	sub, err := a.consumer.RegisterHandlers(wrapped)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.subs = append(a.subs, sub)
	a.mu.Unlock()
	return sub, nil
}

// ExportToSession returns an immutable snapshot of the message history for
// persistence. Engine transducer state is deliberately excluded; it is
// ephemeral and non-resumable across process restarts.
func (a *Instance) ExportToSession() *core.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.sessionID
	if id == "" {
		id = core.NewID()
	}
	sess := core.NewSession(id)
	sess.AgentID = a.id
	for _, msg := range a.messages {
		sess.AddMessage(msg)
	}
	return sess
}

// dispatch stamps context onto outputs, records message-category outputs in
// history and the session sink, emits everything to the bus and returns the
// turn_response payload if this pass contained one.
func (a *Instance) dispatch(outs []core.OutputEvent) *core.TurnResponse {
	var turn *core.TurnResponse
	for _, out := range outs {
		out = a.withContext(out)
		if out.Category == core.CategoryMessage && out.Message != nil {
			a.appendMessage(*out.Message)
		}
		if out.Type == core.OutputTurnResponse && out.Turn != nil {
			t := *out.Turn
			turn = &t
		}
		a.producer.Emit(out)
	}
	return turn
}

func (a *Instance) withContext(out core.OutputEvent) core.OutputEvent {
	out.Context.SessionID = a.sessionID
	out.Context.ContainerID = a.containerID
	return out
}

// appendMessage appends to the owned history and forwards to the session
// sink. Persistence failures are logged, never propagated: conversation flow
// must not depend on persistence succeeding.
func (a *Instance) appendMessage(msg core.Message) {
	a.mu.Lock()
	a.messages = append(a.messages, msg)
	a.mu.Unlock()

	if a.sessions != nil && a.sessionID != "" {
		if err := a.sessions.AppendMessage(a.sessionID, msg); err != nil {
			a.logger.Warn("session append failed agent_id=%s session_id=%s: %v", a.id, a.sessionID, err)
		}
	}
}

func (a *Instance) emitLifecycle(typ core.OutputType) {
	a.producer.Emit(a.withContext(core.NewLifecycleOutput(a.id, typ)))
}
