// Package driver contains stream-event producers: adapters that turn a user
// message plus conversation history into the asynchronous stream-event
// sequence the engine consumes. Provider adapters live in subpackages; this
// package provides the scripted in-memory driver used by tests and examples.
package driver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentrelay/core"
)

// ScriptedDriver is a lightweight in-memory Driver that replays canned
// stream-event scripts, one script per Send call. When the scripts run out it
// falls back to echoing the input as a single-block text message, which keeps
// simple tests terse.
type ScriptedDriver struct {
	mu      sync.Mutex
	scripts [][]core.StreamEvent
	next    int
	failErr error
	delay   time.Duration
	cancel  context.CancelFunc
}

// NewScriptedDriver constructs a driver that replays the given scripts in order.
func NewScriptedDriver(scripts ...[]core.StreamEvent) *ScriptedDriver {
	return &ScriptedDriver{scripts: scripts}
}

// FailWith makes every subsequent Send surface err instead of events.
func (d *ScriptedDriver) FailWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failErr = err
}

// SetDelay inserts a pause before each emitted event, useful for exercising
// interrupt timing in tests.
func (d *ScriptedDriver) SetDelay(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delay = delay
}

// EchoScript builds the well-formed event sequence for a plain text reply.
func EchoScript(messageID, text string) []core.StreamEvent {
	return []core.StreamEvent{
		core.MessageStart{MessageID: messageID, Model: "scripted"},
		core.ContentBlockStart{Index: 0, BlockType: core.BlockTypeText},
		core.ContentBlockDelta{DeltaType: core.DeltaTypeText, Text: text},
		core.ContentBlockStop{Index: 0},
		core.MessageDelta{StopReason: core.StopReasonEndTurn},
		core.MessageStop{},
	}
}

// Send implements core.Driver; replays the next script as an event sequence.
func (d *ScriptedDriver) Send(ctx context.Context, msg core.Message, _ []core.Message) (<-chan core.StreamEvent, <-chan error) {
	evCh := make(chan core.StreamEvent, 16)
	errCh := make(chan error, 1)

	d.mu.Lock()
	sendCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	failErr := d.failErr
	delay := d.delay
	var script []core.StreamEvent
	if d.next < len(d.scripts) {
		script = d.scripts[d.next]
		d.next++
	} else {
		script = EchoScript(core.NewID(), fmt.Sprintf("Scripted response to: %s", msg.Text()))
	}
	d.mu.Unlock()

	go func() {
		defer close(evCh)
		defer close(errCh)
		if failErr != nil {
			errCh <- failErr
			return
		}
		for _, ev := range script {
			if delay > 0 {
				select {
				case <-sendCtx.Done():
					errCh <- sendCtx.Err()
					return
				case <-time.After(delay):
				}
			}
			select {
			case <-sendCtx.Done():
				errCh <- sendCtx.Err()
				return
			case evCh <- ev:
			}
		}
	}()

	return evCh, errCh
}

// Abort implements core.Driver; cancels any in-flight Send. Safe to call
// repeatedly or with no send in flight.
func (d *ScriptedDriver) Abort() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
}
