package store

import (
	"context"
	"sync"
)

// subscriberBuffer is the number of undelivered events a subscriber may
// hold. Events beyond it are dropped for that subscriber.
const subscriberBuffer = 64

// Hub fans committed changes out to in-process subscribers
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscriber
}

type subscriber struct {
	table string
	where Filter
	ch    chan Event
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[int]*subscriber)}
}

// Subscribe registers a subscriber until ctx is done
func (h *Hub) Subscribe(ctx context.Context, table string, where Filter) <-chan Event {
	sub := &subscriber{table: table, where: where, ch: make(chan Event, subscriberBuffer)}

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = sub
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		close(sub.ch)
		h.mu.Unlock()
	}()

	return sub.ch
}

// Publish delivers an event to every matching subscriber without blocking
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		if sub.table != ev.Table || !sub.where.Match(ev.Record) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// Len returns the number of live subscribers
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
