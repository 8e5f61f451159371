// Package agent implements the per-conversation agent instance: the
// lifecycle state machine that owns message history, pulls stream events from
// a driver, feeds them through the engine and pushes the resulting output
// events onto the bus and into the session sink. One instance owns exactly
// one conversation; the runtime facade manages many instances.
package agent
