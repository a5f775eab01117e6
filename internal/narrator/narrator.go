package narrator

import (
	"sync"

	"github.com/google/uuid"

	"github.com/taranp/isolab/pkg/logger"
)

// observerBuffer bounds how many undelivered lines a single
// observer may lag behind before new lines are dropped for it.
const observerBuffer = 64

// Hub fans narration lines out to every attached observer.
// Broadcast never blocks and never reports failure to the caller:
// a slow observer loses lines, it does not slow the scenario down.
type Hub struct {
	mu        sync.RWMutex
	observers map[uuid.UUID]chan string
	closed    bool
	log       logger.Logger
}

func New(log logger.Logger) *Hub {
	return &Hub{
		observers: make(map[uuid.UUID]chan string),
		log:       log.With("narrator"),
	}
}

// Attach registers a new observer and returns its id together with
// the channel narration lines arrive on. Lines broadcast before the
// call are gone; a late observer only sees the future.
func (h *Hub) Attach() (uuid.UUID, <-chan string) {
	ch := make(chan string, observerBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(ch)
		return uuid.Nil, ch
	}

	id := uuid.New()
	h.observers[id] = ch
	h.log.Debugf("observer %s attached", id)
	return id, ch
}

// Detach removes the observer and closes its channel. Detaching an
// unknown id is a no-op.
func (h *Hub) Detach(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.observers[id]
	if !ok {
		return
	}

	delete(h.observers, id)
	close(ch)
	h.log.Debugf("observer %s detached", id)
}

// Broadcast delivers one line to every observer that has room for it.
func (h *Hub) Broadcast(message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}

	for id, ch := range h.observers {
		select {
		case ch <- message:
		default:
			h.log.Warnf("observer %s is lagging, line dropped", id)
		}
	}
}

// Close shuts the hub down: all observer channels are closed and
// subsequent Broadcast calls become no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for id, ch := range h.observers {
		delete(h.observers, id)
		close(ch)
	}
}
