package eventbus

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/spotlight/internal/domain"
)

func event(line string) domain.UIEvent {
	payload, _ := json.Marshal(line)
	return domain.UIEvent{Name: "message", Payload: payload}
}

func TestBus_FanOut(t *testing.T) {
	bus := New(zap.NewNop())
	a, cancelA := bus.Subscribe()
	defer cancelA()
	b, cancelB := bus.Subscribe()
	defer cancelB()

	bus.Emit(event("hello"))

	for _, ch := range []<-chan domain.UIEvent{a, b} {
		select {
		case got := <-ch:
			assert.Equal(t, `"hello"`, string(got.Payload))
		default:
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBus_PreservesOrderPerSubscriber(t *testing.T) {
	bus := New(zap.NewNop())
	ch, cancel := bus.Subscribe()
	defer cancel()

	for _, line := range []string{"1", "2", "3"} {
		bus.Emit(event(line))
	}

	for _, want := range []string{`"1"`, `"2"`, `"3"`} {
		assert.Equal(t, want, string((<-ch).Payload))
	}
}

func TestBus_DropsWhenFull(t *testing.T) {
	bus := NewWithDepth(zap.NewNop(), 2)
	ch, cancel := bus.Subscribe()
	defer cancel()

	for i := 0; i < 5; i++ {
		bus.Emit(event("x"))
	}

	assert.Len(t, ch, 2)
	emitted, dropped := bus.Counts()
	assert.Equal(t, 5, emitted)
	assert.Equal(t, 3, dropped)
}

func TestBus_CancelClosesAndUnregisters(t *testing.T) {
	bus := New(zap.NewNop())
	ch, cancel := bus.Subscribe()
	require.Equal(t, 1, bus.Subscribers())

	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Zero(t, bus.Subscribers())
	bus.Emit(event("after cancel"))
}

func TestBus_NoSubscribers(t *testing.T) {
	bus := New(nil)
	bus.Emit(event("nobody listening"))

	emitted, dropped := bus.Counts()
	assert.Equal(t, 1, emitted)
	assert.Zero(t, dropped)
}
