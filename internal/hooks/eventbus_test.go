package hooks

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_PublishSync(t *testing.T) {
	bus := NewEventBus()
	defer bus.Shutdown()

	var got []string
	bus.Subscribe(EventProviderFailed, func(ctx *EventContext) {
		got = append(got, ctx.Provider)
	})
	bus.Subscribe(EventCredentialCooling, func(ctx *EventContext) {
		t.Fatal("wrong event delivered")
	})

	bus.Publish(&EventContext{Event: EventProviderFailed, Provider: "groq"})
	bus.Publish(&EventContext{Event: EventProviderFailed, Provider: "gemini"})

	assert.Equal(t, []string{"groq", "gemini"}, got)
}

func TestEventBus_Filter(t *testing.T) {
	bus := NewEventBus()
	defer bus.Shutdown()

	var count int
	bus.SubscribeWithFilter(EventDispatchFailed, func(*EventContext) { count++ }, func(ctx *EventContext) bool {
		return ctx.Action == "shell_command"
	})

	bus.Publish(&EventContext{Event: EventDispatchFailed, Action: "open_app"})
	bus.Publish(&EventContext{Event: EventDispatchFailed, Action: "shell_command"})
	assert.Equal(t, 1, count)
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Shutdown()

	var a, b int
	subA := bus.Subscribe(EventActionDispatched, func(*EventContext) { a++ })
	subB := bus.Subscribe(EventActionDispatched, func(*EventContext) { b++ })
	assert.NotEqual(t, subA.ID, subB.ID)
	assert.Equal(t, 2, bus.Subscribers(EventActionDispatched))

	subA.Unsubscribe()
	bus.Publish(&EventContext{Event: EventActionDispatched})

	assert.Equal(t, 0, a)
	assert.Equal(t, 1, b)
	assert.Equal(t, 1, bus.Subscribers(EventActionDispatched))
}

func TestEventBus_PanicIsolated(t *testing.T) {
	bus := NewEventBus()
	defer bus.Shutdown()

	var after bool
	bus.Subscribe(EventValidationFailed, func(*EventContext) { panic("boom") })
	bus.Subscribe(EventValidationFailed, func(*EventContext) { after = true })

	assert.NotPanics(t, func() {
		bus.Publish(&EventContext{Event: EventValidationFailed})
	})
	assert.True(t, after)
}

func TestEventBus_Async(t *testing.T) {
	bus := NewEventBus()
	defer bus.Shutdown()

	received := make(chan *EventContext, 1)
	bus.Subscribe(EventProvidersExhausted, func(ctx *EventContext) {
		received <- ctx
	})

	bus.PublishAsync(NewEvent(EventProvidersExhausted, map[string]any{"attempts": 3}))

	select {
	case ctx := <-received:
		assert.Equal(t, 3, ctx.Data["attempts"])
		assert.False(t, ctx.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("Async event not received")
	}
}

func TestEventBus_ShutdownDropsLateEvents(t *testing.T) {
	bus := NewEventBus()
	var count atomic.Int32
	bus.Subscribe(EventProviderFailed, func(*EventContext) { count.Add(1) })

	bus.Shutdown()
	bus.Shutdown()
	bus.PublishAsync(&EventContext{Event: EventProviderFailed})

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), count.Load())
}

func TestEventBus_NilSafe(t *testing.T) {
	var bus *EventBus
	assert.NotPanics(t, func() {
		bus.Publish(&EventContext{Event: EventProviderFailed})
		bus.PublishAsync(&EventContext{Event: EventProviderFailed})
		bus.Shutdown()
	})
}

func TestEventBus_ConcurrentSubscribePublish(t *testing.T) {
	bus := NewEventBus()
	defer bus.Shutdown()

	var delivered atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub := bus.Subscribe(EventCredentialExhausted, func(*EventContext) { delivered.Add(1) })
			if sub == nil {
				t.Error("nil subscription")
			}
		}()
		go func() {
			defer wg.Done()
			bus.Publish(&EventContext{Event: EventCredentialExhausted})
		}()
	}
	wg.Wait()
	require.Equal(t, 20, bus.Subscribers(EventCredentialExhausted))
}
