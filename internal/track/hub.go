package track

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"fleettrack/internal/observability"
)

// Hub fans fleet snapshots out to every attached subscriber. A snapshot is
// serialized exactly once per publish and every subscriber receives the same
// bytes. Subscriber IDs are opaque; they carry no ordering or meaning beyond
// identity.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]*subscriber
	buffer int
	closed bool
}

// subscriber wraps one outbound stream. The channel is bounded: a consumer
// that cannot keep up loses frames instead of blocking the publisher, and a
// later frame always carries the full current snapshot anyway.
type subscriber struct {
	ch   chan []byte
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{subs: make(map[uuid.UUID]*subscriber), buffer: buffer}
}

// Attach registers a new subscriber and returns its handle plus the channel
// frames arrive on. The channel is closed on Detach or hub shutdown.
func (h *Hub) Attach() (uuid.UUID, <-chan []byte) {
	sub := &subscriber{ch: make(chan []byte, h.buffer)}
	id := uuid.New()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.close()
		return id, sub.ch
	}
	h.subs[id] = sub
	observability.Subscribers.Set(float64(len(h.subs)))
	return id, sub.ch
}

// Detach removes one subscriber and closes its channel. Idempotent: calling
// it again, or after shutdown, is a no-op.
func (h *Hub) Detach(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	sub.close()
	observability.Subscribers.Set(float64(len(h.subs)))
}

// Publish serializes snapshot once and delivers it to every live subscriber.
// A full subscriber buffer drops the frame for that subscriber only; one
// slow or dead consumer never delays the rest or the publisher.
//
// Sends happen under the read lock while closes happen under the write lock,
// so a publish can never race a channel close.
func (h *Hub) Publish(snapshot []PositionReport) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil
	}
	for _, sub := range h.subs {
		select {
		case sub.ch <- payload:
		default:
			observability.FramesDropped.Inc()
		}
	}
	observability.BroadcastsSent.Inc()
	return nil
}

// Len reports the number of attached subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close detaches every subscriber and refuses further attaches. Terminal.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		sub.close()
	}
	observability.Subscribers.Set(0)
}
