// Package bus provides the ordered pub/sub channel between the engine side
// (producers) and presenters (consumers). The producer and consumer roles are
// two distinct capability interfaces, so the compiler enforces the read/write
// boundary: a component holding a Producer can only emit, one holding a
// Consumer can only subscribe.
package bus

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
)

// Handler processes one delivered output event. Handlers run synchronously on
// the emitter's goroutine and must not block.
type Handler func(ev core.OutputEvent)

// Producer is the emit-only capability handle of a Bus.
type Producer interface {
	// Emit delivers ev to all matching subscribers in subscription order.
	Emit(ev core.OutputEvent)
}

// Consumer is the subscribe-only capability handle of a Bus.
type Consumer interface {
	// Subscribe registers a handler. With no types the handler receives every
	// event; otherwise delivery is filtered to the given type set. Filtering
	// happens at delivery time, so every consumer's view derives from the
	// same underlying event sequence.
	Subscribe(h Handler, types ...core.OutputType) (*Subscription, error)

	// RegisterHandlers registers an explicit tag→handler table, validated at
	// registration time. The whole table is rejected on the first invalid
	// entry; nothing is partially registered.
	RegisterHandlers(handlers map[core.OutputType]Handler) (*Subscription, error)
}

// Options configures a Bus.
type Options struct {
	// Logger defaults to NoOp logger if nil.
	Logger logging.Logger
}

// Bus is an ordered fan-out of output events. Handlers observe events in the
// exact order Emit was called for the bus instance: delivery is serialized
// under a single mutex rather than reordered per agent.
type Bus struct {
	logger logging.Logger

	// emitMu serializes deliveries; mu guards the subscription list. Keeping
	// them separate lets handlers subscribe/unsubscribe during delivery.
	emitMu sync.Mutex
	mu     sync.Mutex
	subs   map[string]*Subscription
	order  []string
}

// New creates an empty Bus.
func New(optFns ...func(o *Options)) *Bus {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Bus{logger: opts.Logger, subs: make(map[string]*Subscription)}
}

// Producer returns the emit-only handle for this bus.
func (b *Bus) Producer() Producer { return producerHandle{bus: b} }

// Consumer returns the subscribe-only handle for this bus.
func (b *Bus) Consumer() Consumer { return consumerHandle{bus: b} }

// Subscription identifies one registered handler. Unsubscribe is idempotent.
type Subscription struct {
	id  string
	bus *Bus

	handler Handler
	types   map[core.OutputType]struct{} // nil matches every type
}

// Unsubscribe removes the subscription. Calling it twice is a no-op.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if _, ok := s.bus.subs[s.id]; !ok {
		return
	}
	delete(s.bus.subs, s.id)
	for i, id := range s.bus.order {
		if id == s.id {
			s.bus.order = append(s.bus.order[:i], s.bus.order[i+1:]...)
			break
		}
	}
}

func (s *Subscription) matches(t core.OutputType) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[t]
	return ok
}

type producerHandle struct{ bus *Bus }

func (p producerHandle) Emit(ev core.OutputEvent) {
	b := p.bus
	// Serializing the whole delivery is what guarantees every subscriber
	// observes the same global emit order.
	b.emitMu.Lock()
	defer b.emitMu.Unlock()

	b.mu.Lock()
	snapshot := make([]*Subscription, 0, len(b.order))
	for _, id := range b.order {
		if sub := b.subs[id]; sub != nil {
			snapshot = append(snapshot, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range snapshot {
		if sub.matches(ev.Type) {
			sub.handler(ev)
		}
	}
	b.logger.Debug("bus delivered event type=%s agent_id=%s", ev.Type, ev.Context.AgentID)
}

type consumerHandle struct{ bus *Bus }

func (c consumerHandle) Subscribe(h Handler, types ...core.OutputType) (*Subscription, error) {
	if h == nil {
		return nil, fmt.Errorf("bus: nil handler")
	}
	var typeSet map[core.OutputType]struct{}
	if len(types) > 0 {
		typeSet = make(map[core.OutputType]struct{}, len(types))
		for _, t := range types {
			if !t.Valid() {
				return nil, fmt.Errorf("bus: unknown output type %q", t)
			}
			typeSet[t] = struct{}{}
		}
	}
	return c.bus.add(h, typeSet), nil
}

func (c consumerHandle) RegisterHandlers(handlers map[core.OutputType]Handler) (*Subscription, error) {
	if len(handlers) == 0 {
		return nil, fmt.Errorf("bus: empty handler table")
	}
	table := make(map[core.OutputType]Handler, len(handlers))
	for t, h := range handlers {
		if !t.Valid() {
			return nil, fmt.Errorf("bus: unknown output type %q", t)
		}
		if h == nil {
			return nil, fmt.Errorf("bus: nil handler for output type %q", t)
		}
		table[t] = h
	}

	typeSet := make(map[core.OutputType]struct{}, len(table))
	for t := range table {
		typeSet[t] = struct{}{}
	}
	dispatch := func(ev core.OutputEvent) {
		if h, ok := table[ev.Type]; ok {
			h(ev)
		}
	}
	return c.bus.add(dispatch, typeSet), nil
}

func (b *Bus) add(h Handler, types map[core.OutputType]struct{}) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &Subscription{id: uuid.NewString(), bus: b, handler: h, types: types}
	b.subs[sub.id] = sub
	b.order = append(b.order, sub.id)
	return sub
}
