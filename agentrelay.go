// Package agentrelay provides a high-level façade over the event-processing
// engine, the bus and the persistence sinks, managing the lifecycle of many
// concurrent agent instances. Most applications interact with this package by:
//  1. Creating a Runtime via New() (optionally overriding default in-memory stores)
//  2. Creating agent instances bound to drivers (provider adapters)
//  3. Sending messages and consuming output events from the bus
//
// The Runtime is an explicitly constructed registry with a defined lifecycle:
// created at startup, disposed via Shutdown. There are no process-wide
// singletons; everything is threaded through constructors.
package agentrelay

import (
	"fmt"
	"sync"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/bus"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/engine"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/store"
)

// Options configures the Runtime instance.
type Options struct {
	// ContainerID tags output event context for all agents of this runtime.
	ContainerID string

	// Stores (default to in-memory implementations if not provided)
	SessionStore    core.SessionStore
	DefinitionStore core.DefinitionStore
	ImageStore      core.ImageStore

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Runtime is the registry aggregating the engine, the bus, the stores and all
// live agent instances.
type Runtime struct {
	opts   Options
	engine *engine.Engine
	bus    *bus.Bus

	mu     sync.RWMutex
	agents map[string]*agent.Instance
}

// New creates a Runtime with optional overrides. Any unset store is
// initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *Runtime {
	opts := Options{
		SessionStore:    store.NewInMemorySessionStore(),
		DefinitionStore: store.NewInMemoryDefinitionStore(),
		ImageStore:      store.NewInMemoryImageStore(),
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Runtime{
		opts:   opts,
		engine: engine.New(func(o *engine.Options) { o.Logger = opts.Logger }),
		bus:    bus.New(func(o *bus.Options) { o.Logger = opts.Logger }),
		agents: make(map[string]*agent.Instance),
	}
}

// Bus returns the runtime's event bus for presenter wiring.
func (r *Runtime) Bus() *bus.Bus { return r.bus }

// Consumer returns the subscribe-only bus handle.
func (r *Runtime) Consumer() bus.Consumer { return r.bus.Consumer() }

// Sessions returns the configured session store.
func (r *Runtime) Sessions() core.SessionStore { return r.opts.SessionStore }

// Definitions returns the configured definition store.
func (r *Runtime) Definitions() core.DefinitionStore { return r.opts.DefinitionStore }

// Images returns the configured image store.
func (r *Runtime) Images() core.ImageStore { return r.opts.ImageStore }

// AgentConfig configures agent creation through the runtime.
type AgentConfig struct {
	// ID defaults to a fresh uuid.
	ID string
	// SessionID binds the agent to a session; defaults to a fresh uuid so
	// every conversation is persisted under some session.
	SessionID string
	// Driver is required.
	Driver core.Driver
}

// CreateAgent registers a new agent instance wired to the runtime's engine,
// bus and session store. The bound session is created (or loaded) in the
// session store and associated with the agent.
func (r *Runtime) CreateAgent(cfg AgentConfig) (*agent.Instance, error) {
	if cfg.Driver == nil {
		return nil, fmt.Errorf("agentrelay: driver is required")
	}
	if cfg.ID == "" {
		cfg.ID = core.NewID()
	}
	if cfg.SessionID == "" {
		cfg.SessionID = core.NewID()
	}

	inst, err := agent.NewInstance(agent.Config{
		ID:          cfg.ID,
		SessionID:   cfg.SessionID,
		ContainerID: r.opts.ContainerID,
		Driver:      cfg.Driver,
		Engine:      r.engine,
		Producer:    r.bus.Producer(),
		Consumer:    r.bus.Consumer(),
		Sessions:    r.opts.SessionStore,
		Logger:      r.opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	sess, err := r.opts.SessionStore.Get(cfg.SessionID)
	if err != nil {
		sess = core.NewSession(cfg.SessionID)
	}
	sess.AssociateAgent(cfg.ID)
	if err := r.opts.SessionStore.Save(sess); err != nil {
		r.opts.Logger.Warn("session save failed session_id=%s: %v", cfg.SessionID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[cfg.ID]; exists {
		return nil, fmt.Errorf("agentrelay: agent %s already exists", cfg.ID)
	}
	r.agents[cfg.ID] = inst
	return inst, nil
}

// CreateAgentFromDefinition resolves a stored definition and creates an agent
// from it using the provided driver factory, which receives the definition's
// model id and system prompt.
func (r *Runtime) CreateAgentFromDefinition(definitionID string, makeDriver func(def core.Definition) (core.Driver, error)) (*agent.Instance, error) {
	def, err := r.opts.DefinitionStore.Get(definitionID)
	if err != nil {
		return nil, fmt.Errorf("agentrelay: definition %s: %w", definitionID, err)
	}
	drv, err := makeDriver(def)
	if err != nil {
		return nil, fmt.Errorf("agentrelay: driver for definition %s: %w", definitionID, err)
	}
	return r.CreateAgent(AgentConfig{Driver: drv})
}

// Agent retrieves a live agent instance by id.
func (r *Runtime) Agent(id string) (*agent.Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.agents[id]
	return inst, ok
}

// DestroyAgent destroys the agent and removes it from the registry. It is
// idempotent: destroying an unknown or already destroyed agent is a no-op.
func (r *Runtime) DestroyAgent(id string) {
	r.mu.Lock()
	inst, ok := r.agents[id]
	delete(r.agents, id)
	r.mu.Unlock()
	if ok {
		inst.Destroy()
	}
}

// Agents returns the ids of all live agents.
func (r *Runtime) Agents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown destroys every live agent. The runtime is unusable afterwards
// except for creating a fresh one.
func (r *Runtime) Shutdown() {
	r.mu.Lock()
	agents := make([]*agent.Instance, 0, len(r.agents))
	for _, inst := range r.agents {
		agents = append(agents, inst)
	}
	r.agents = make(map[string]*agent.Instance)
	r.mu.Unlock()

	for _, inst := range agents {
		inst.Destroy()
	}
}
