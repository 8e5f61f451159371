// Package core defines the shared vocabulary of the agentrelay runtime: the
// low-level stream events drivers produce, the higher-level output events the
// engine emits, messages and sessions, and the interfaces (Driver, stores)
// that bind external collaborators to the core. The package contains types
// and constructors only; all processing logic lives in sibling packages.
package core
