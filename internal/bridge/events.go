package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Internal event names raised by the message router.
const (
	// EventBridgeState fires on every bridge availability message.
	// Value: StateEvent.
	EventBridgeState = "bridge_state"

	// EventBridgeDevices fires when a fresh device list has been cached.
	// Value: []Device.
	EventBridgeDevices = "bridge_devices"

	// EventBridgeGroups fires when a fresh group list has been cached.
	// Value: []Group.
	EventBridgeGroups = "bridge_groups"

	// EventBridgeNetworkGraph fires when the bridge publishes a graphviz
	// network description. Value: string.
	EventBridgeNetworkGraph = "bridge_network_graph"

	// EventBridgeMessage fires for every bridge-control message after its
	// specific handling. Value: BridgeMessageEvent.
	EventBridgeMessage = "bridge_message"

	// EventEntityMessage fires for every recorded entity telemetry message.
	// Value: EntityMessageEvent.
	EventEntityMessage = "entity_message"

	// EventConnect fires when the MQTT connection is (re)established.
	// Value: nil.
	EventConnect = "connect"
)

// StateEvent is the value carried by EventBridgeState.
type StateEvent struct {
	Topic  string
	Online bool
}

// BridgeMessageEvent is the generic notification carried by EventBridgeMessage.
type BridgeMessageEvent struct {
	Topic   string
	Payload string
}

// EntityMessageEvent is the value carried by EventEntityMessage. Device and
// Group are resolved by topic and may each be nil.
type EntityMessageEvent struct {
	Topic   string
	Payload any
	Device  *Device
	Group   *Group
}

// Event pairs an event name with its value, for persistent subscribers.
type Event struct {
	Name  string
	Value any
}

// Bus is the event correlator: a broadcast registry of named internal events
// with one-shot awaiters and persistent subscribers.
//
// The fire-and-forget command topics have no native request/response
// protocol; callers correlate a published command with its later effect by
// awaiting the event the router raises when that effect arrives. Every await
// is bounded by a timeout, and both resolution paths deregister the waiter,
// so no listener or timer outlives its call.
//
// Thread Safety: all methods are safe for concurrent use.
type Bus struct {
	mu      sync.Mutex
	waiters map[string][]chan any
	subs    map[string][]chan Event
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		waiters: make(map[string][]chan any),
		subs:    make(map[string][]chan Event),
	}
}

// Emit delivers value to every waiter and subscriber currently registered
// for name. Waiters are one-shot and removed; subscribers persist. Delivery
// to a subscriber whose channel is full is dropped rather than blocking the
// dispatch path.
func (b *Bus) Emit(name string, value any) {
	b.mu.Lock()
	waiting := b.waiters[name]
	delete(b.waiters, name)
	subs := b.subs[name]
	b.mu.Unlock()

	for _, ch := range waiting {
		// Waiter channels are buffered with capacity 1 and only ever
		// written once, so this never blocks.
		ch <- value
	}

	for _, ch := range subs {
		select {
		case ch <- Event{Name: name, Value: value}:
		default:
		}
	}
}

// Pending is a registered interest in one or more named events. It must be
// resolved with Wait exactly once; Wait deregisters everything on both the
// success and the timeout path.
type Pending struct {
	bus   *Bus
	names []string
	chans []chan any
}

// Expect registers interest in each named event before returning, so an
// emission between Expect and Wait is never missed. Call Wait to collect.
//
// Registering before publishing a command closes the race between the
// command's effect arriving and the caller starting to listen for it.
func (b *Bus) Expect(names ...string) *Pending {
	p := &Pending{
		bus:   b,
		names: names,
		chans: make([]chan any, len(names)),
	}

	b.mu.Lock()
	for i, name := range names {
		ch := make(chan any, 1)
		p.chans[i] = ch
		b.waiters[name] = append(b.waiters[name], ch)
	}
	b.mu.Unlock()

	return p
}

// Wait blocks until every expected event has fired at least once since
// Expect, the timeout elapses, or ctx is cancelled. Values are returned in
// the order the names were passed to Expect.
//
// On timeout the error wraps ErrTimeout and every remaining registration is
// removed.
func (p *Pending) Wait(ctx context.Context, timeout time.Duration) ([]any, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	values := make([]any, len(p.chans))
	for i, ch := range p.chans {
		select {
		case v := <-ch:
			values[i] = v
		case <-timer.C:
			p.cancel()
			return nil, fmt.Errorf("%w: no %q event within %v", ErrTimeout, p.names[i], timeout)
		case <-ctx.Done():
			p.cancel()
			return nil, ctx.Err()
		}
	}
	return values, nil
}

// cancel removes any remaining waiter registrations.
func (p *Pending) cancel() {
	p.bus.mu.Lock()
	defer p.bus.mu.Unlock()

	for i, name := range p.names {
		waiting := p.bus.waiters[name]
		for j, ch := range waiting {
			if ch == p.chans[i] {
				p.bus.waiters[name] = append(waiting[:j], waiting[j+1:]...)
				break
			}
		}
		if len(p.bus.waiters[name]) == 0 {
			delete(p.bus.waiters, name)
		}
	}
}

// Await resolves with the first value emitted under name after the call
// begins, or fails with ErrTimeout. Multiple concurrent callers awaiting the
// same name all receive the same emission.
func (b *Bus) Await(ctx context.Context, name string, timeout time.Duration) (any, error) {
	values, err := b.Expect(name).Wait(ctx, timeout)
	if err != nil {
		return nil, err
	}
	return values[0], nil
}

// AwaitAll resolves once every named event has fired at least once after the
// call begins, or fails with ErrTimeout as a whole.
func (b *Bus) AwaitAll(ctx context.Context, names []string, timeout time.Duration) ([]any, error) {
	return b.Expect(names...).Wait(ctx, timeout)
}

// Subscription is a persistent listener registered with Subscribe.
type Subscription struct {
	// C receives every emission of the subscribed event. Slow consumers
	// miss events rather than blocking the dispatcher.
	C <-chan Event

	bus  *Bus
	name string
	ch   chan Event
	once sync.Once
}

// Subscribe registers a persistent listener for name. The returned
// subscription receives every subsequent emission until Close is called.
// buffer controls how many undelivered events may queue before drops occur.
func (b *Bus) Subscribe(name string, buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	s := &Subscription{C: ch, bus: b, name: name, ch: ch}

	b.mu.Lock()
	b.subs[name] = append(b.subs[name], ch)
	b.mu.Unlock()

	return s
}

// Close deregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		subs := s.bus.subs[s.name]
		for i, ch := range subs {
			if ch == s.ch {
				s.bus.subs[s.name] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(s.bus.subs[s.name]) == 0 {
			delete(s.bus.subs, s.name)
		}
		s.bus.mu.Unlock()
	})
}

// waiterCount reports the number of registered one-shot waiters for name.
// Used by tests to verify cleanup.
func (b *Bus) waiterCount(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.waiters[name])
}
