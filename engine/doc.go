// Package engine implements the per-agent event transducer at the heart of
// agentrelay: a synchronous function from (stored per-agent state, stream
// event) to (next state, output events). The engine composes three
// sub-processors in a fixed order for every input event:
//
//  1. message assembler — accumulates content-block deltas into complete
//     messages and emits stream passthrough + message-completion outputs
//  2. state processor — derives conversation state transitions
//  3. turn tracker — pairs a user send with the full assistant response
//     cycle, consuming message outputs from the same pass
//
// Process never blocks and never performs I/O; the only suspension point in
// the runtime is the driver pull that feeds it. All mutable state is keyed by
// agent id, so concurrent agents need no cross-agent locking.
package engine
