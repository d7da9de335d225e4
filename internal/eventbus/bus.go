// Package eventbus fans UI events out to subscribers.
package eventbus

import (
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/spotlight/internal/domain"
)

// DefaultDepth is the per-subscriber buffer size.
const DefaultDepth = 256

// Bus implements domain.EventSink. Every subscriber gets every event;
// a subscriber whose buffer is full misses the event instead of blocking
// the publisher.
type Bus struct {
	mu      sync.Mutex
	subs    map[chan domain.UIEvent]struct{}
	depth   int
	logger  *zap.Logger
	emitted int
	dropped int
}

// New constructs a Bus.
func New(logger *zap.Logger) *Bus {
	return NewWithDepth(logger, DefaultDepth)
}

// NewWithDepth constructs a Bus with a custom subscriber buffer size.
func NewWithDepth(logger *zap.Logger, depth int) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	if depth < 1 {
		depth = 1
	}
	return &Bus{
		subs:   make(map[chan domain.UIEvent]struct{}),
		depth:  depth,
		logger: logger,
	}
}

// Subscribe registers a subscriber and returns its channel and a cancel func.
// Cancel closes the channel and is safe to call more than once.
func (b *Bus) Subscribe() (<-chan domain.UIEvent, func()) {
	ch := make(chan domain.UIEvent, b.depth)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	count := len(b.subs)
	b.mu.Unlock()
	b.logger.Debug("eventbus subscribe", zap.Int("subs", count))

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			close(ch)
			b.mu.Unlock()
			b.logger.Debug("eventbus unsubscribe")
		})
	}
}

// Emit publishes event to all subscribers without blocking.
func (b *Bus) Emit(event domain.UIEvent) {
	b.mu.Lock()
	b.emitted++
	dropped := 0
	for sub := range b.subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	b.dropped += dropped
	b.mu.Unlock()

	if dropped > 0 {
		b.logger.Warn("eventbus dropped event",
			zap.String("event", event.Name),
			zap.Int("subscribers", dropped))
	}
}

// Subscribers returns the current subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Counts returns how many events were emitted and how many deliveries were dropped.
func (b *Bus) Counts() (emitted, dropped int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.emitted, b.dropped
}

// Ensure Bus implements domain.EventSink.
var _ domain.EventSink = (*Bus)(nil)
