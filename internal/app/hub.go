package app

import (
	"log"
	"sync"
	"sync/atomic"

	"quizroom-service/internal/domain"
)

const defaultSubscriberBuffer = 64

// Hub fans room events out to subscribers in publish order.
// Rooms publish while holding their own lock, so every subscriber of a room
// observes that room's total order. A subscriber that cannot keep up is closed
// rather than skipped, and is expected to resubscribe and reconcile from the
// snapshot it receives first.
type Hub struct {
	buffer int

	mu    sync.RWMutex
	rooms map[string]map[*Subscription]struct{}
	taps  map[chan domain.Event]struct{}
}

// NewHub creates a hub whose subscriber queues hold buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{
		buffer: buffer,
		rooms:  make(map[string]map[*Subscription]struct{}),
		taps:   make(map[chan domain.Event]struct{}),
	}
}

// Subscription is one participant's ordered view of a room's events.
type Subscription struct {
	roomID string
	userID string
	ch     chan domain.Event
	lagged atomic.Bool
	hub    *Hub
}

// Events yields the room's events; it is closed by Close or when the subscriber lags.
func (s *Subscription) Events() <-chan domain.Event {
	return s.ch
}

// Lagged reports whether the subscription was closed because its queue overflowed.
func (s *Subscription) Lagged() bool {
	return s.lagged.Load()
}

// Close unregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Subscribe registers a subscriber for roomID. Unicast events are delivered
// only when their recipient matches userID.
func (h *Hub) Subscribe(roomID, userID string) *Subscription {
	sub := &Subscription{
		roomID: roomID,
		userID: userID,
		ch:     make(chan domain.Event, h.buffer),
		hub:    h,
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.rooms[roomID]
	if !ok {
		subs = make(map[*Subscription]struct{})
		h.rooms[roomID] = subs
	}
	subs[sub] = struct{}{}
	return sub
}

// Publish delivers ev to every matching subscriber of its room and to all taps.
func (h *Hub) Publish(ev domain.Event) {
	var lagging []*Subscription

	h.mu.RLock()
	for sub := range h.rooms[ev.RoomID] {
		if ev.Recipient != "" && ev.Recipient != sub.userID {
			continue
		}
		if sub.lagged.Load() {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			sub.lagged.Store(true)
			lagging = append(lagging, sub)
		}
	}
	for tap := range h.taps {
		select {
		case tap <- ev:
		default:
			log.Printf("hub: tap full, dropping %s event for room %s", ev.Type, ev.RoomID)
		}
	}
	h.mu.RUnlock()

	for _, sub := range lagging {
		log.Printf("hub: subscriber %s of room %s lagged, closing", sub.userID, sub.roomID)
		h.remove(sub)
	}
}

// Tap returns a channel receiving every event of every room. Taps are
// best-effort: a full tap misses events instead of closing.
func (h *Hub) Tap(buffer int) (<-chan domain.Event, func()) {
	if buffer <= 0 {
		buffer = h.buffer
	}
	ch := make(chan domain.Event, buffer)
	h.mu.Lock()
	h.taps[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.taps[ch]; ok {
			delete(h.taps, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// CloseRoom closes every subscription of roomID.
func (h *Hub) CloseRoom(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.rooms[roomID] {
		close(sub.ch)
	}
	delete(h.rooms, roomID)
}

// Subscribers returns the number of live subscriptions for roomID.
func (h *Hub) Subscribers(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.rooms[sub.roomID]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	close(sub.ch)
	if len(subs) == 0 {
		delete(h.rooms, sub.roomID)
	}
}

// deliver places ev on a freshly registered subscription before any publish can reach it.
func (s *Subscription) deliver(ev domain.Event) {
	select {
	case s.ch <- ev:
	default:
	}
}
