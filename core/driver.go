package core

import "context"

// Driver turns a user message into an asynchronous sequence of stream events.
// It is the only external collaborator the engine's input side depends on.
//
// Implementations MUST:
//   - close both channels when the sequence terminates (normally or via abort)
//   - never send events after termination
//   - respect context cancellation while producing events
//   - surface provider failures on the error channel (buffered size 1)
//
// The channel-pair shape deliberately mirrors streaming model adapters: the
// consumer pulls events until the event channel closes, then drains the error
// channel for a terminal failure.
type Driver interface {
	// Send starts generation for msg given the prior conversation history and
	// returns the resulting stream-event sequence.
	Send(ctx context.Context, msg Message, history []Message) (<-chan StreamEvent, <-chan error)

	// Abort cancels any in-flight generation. It must be safe to call
	// concurrently with Send and must be idempotent.
	Abort()
}
