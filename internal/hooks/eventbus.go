package hooks

import (
	"context"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// queueSize bounds PublishAsync. Events beyond it are dropped with a warning.
const queueSize = 1000

// Subscription is a handle for a registered subscriber.
type Subscription struct {
	ID          string
	Event       HookEvent
	Callback    func(*EventContext)
	Filter      func(*EventContext) bool
	Unsubscribe func()
}

// EventBus manages event distribution to subscribers.
// A nil *EventBus accepts and discards every event.
type EventBus struct {
	subscribers  map[HookEvent][]*Subscription
	mu           sync.RWMutex
	eventQueue   chan *EventContext
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
	done         chan struct{}
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	ctx, cancel := context.WithCancel(context.Background())
	bus := &EventBus{
		subscribers: make(map[HookEvent][]*Subscription),
		eventQueue:  make(chan *EventContext, queueSize),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	go bus.processQueue()

	return bus
}

// Subscribe registers a callback for a specific event type.
func (b *EventBus) Subscribe(event HookEvent, callback func(*EventContext)) *Subscription {
	return b.SubscribeWithFilter(event, callback, nil)
}

// SubscribeWithFilter registers a callback with an optional filter function.
func (b *EventBus) SubscribeWithFilter(event HookEvent, callback func(*EventContext), filter func(*EventContext) bool) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		ID:       uuid.NewString(),
		Event:    event,
		Callback: callback,
		Filter:   filter,
	}
	sub.Unsubscribe = func() {
		b.unsubscribe(sub)
	}

	b.subscribers[event] = append(b.subscribers[event], sub)
	return sub
}

func (b *EventBus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[sub.Event]
	for i, s := range subs {
		if s.ID == sub.ID {
			b.subscribers[sub.Event] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
}

// Subscribers returns the number of subscribers for event.
func (b *EventBus) Subscribers(event HookEvent) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[event])
}

// Publish distributes an event to all subscribers synchronously.
// A panicking subscriber is logged and does not affect the others.
func (b *EventBus) Publish(ctx *EventContext) {
	if b == nil || ctx == nil {
		return
	}
	b.mu.RLock()
	subs := b.subscribers[ctx.Event]
	activeSubs := make([]*Subscription, len(subs))
	copy(activeSubs, subs)
	b.mu.RUnlock()

	for _, sub := range activeSubs {
		if sub.Filter == nil || sub.Filter(ctx) {
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Errorf("Panic in event subscriber for %s: %v", ctx.Event, r)
					}
				}()
				sub.Callback(ctx)
			}()
		}
	}
}

// PublishAsync distributes an event asynchronously via the queue.
func (b *EventBus) PublishAsync(ctx *EventContext) {
	if b == nil || ctx == nil {
		return
	}
	select {
	case <-b.ctx.Done():
		return
	default:
	}

	select {
	case b.eventQueue <- ctx:
	default:
		log.Warnf("Event queue full, dropping event: %s", ctx.Event)
	}
}

func (b *EventBus) processQueue() {
	defer close(b.done)
	for {
		select {
		case <-b.ctx.Done():
			return
		case event := <-b.eventQueue:
			b.Publish(event)
		}
	}
}

// Shutdown stops queue processing and waits for the in-flight event to finish.
// Queued events that were not yet delivered are discarded.
func (b *EventBus) Shutdown() {
	if b == nil {
		return
	}
	b.shutdownOnce.Do(func() {
		b.cancel()
		<-b.done
	})
}
