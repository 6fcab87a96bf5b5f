// Package broadcast delivers refreshed target snapshots to in-process
// subscribers and to any number of external broadcasters.
package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/NordCoder/uptimewatch/internal/domain/target"
)

var _ target.Broadcaster = (*Hub)(nil)

var (
	hubDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "broadcast_hub_dropped_total",
		Help: "Snapshots dropped because a subscriber buffer was full.",
	})
	hubSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "broadcast_hub_subscribers",
		Help: "Currently attached hub subscribers.",
	})
)

type Event struct {
	Topic    string        `json:"topic"`
	Snapshot target.Target `json:"snapshot"`
	At       time.Time     `json:"at"`
}

// Hub fans snapshots out to subscriber channels. Sends never block: a
// subscriber that falls behind misses events instead of stalling a loop.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]chan Event
	nextID uint64
	now    func() time.Time
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]chan Event), now: time.Now}
}

// Subscribe returns a buffered event channel and a cancel func that
// detaches and closes it. Cancel is safe to call more than once.
func (h *Hub) Subscribe(buf int) (<-chan Event, func()) {
	if buf <= 0 {
		buf = 16
	}
	ch := make(chan Event, buf)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = ch
	h.mu.Unlock()
	hubSubscribers.Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
			hubSubscribers.Dec()
		})
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) Publish(ctx context.Context, topic string, snapshot target.Target) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ev := Event{Topic: topic, Snapshot: snapshot, At: h.now().UTC()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			hubDropped.Inc()
		}
	}
	return nil
}
