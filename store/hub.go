package store

import (
	"context"
	"sync"
)

// DefaultHubBuffer is the per-subscriber channel capacity used by NewHub
// when a non-positive size is given.
const DefaultHubBuffer = 64

// Hub fans change notifications out to in-process watchers. Publish never
// blocks: a watcher whose buffer is full misses the notification, so
// consumers must treat a change as a hint to re-read, not as a delta.
type Hub struct {
	mu     sync.Mutex
	subs   map[*watcher]struct{}
	buffer int
	closed bool
	done   chan struct{}
}

type watcher struct {
	ch    chan Change
	match func(Topic) bool
}

// NewHub creates a hub with the given per-watcher buffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultHubBuffer
	}
	return &Hub{subs: make(map[*watcher]struct{}), buffer: buffer, done: make(chan struct{})}
}

// Subscribe registers a watcher that is removed and closed when ctx is done
// or the hub is closed. Subscribing to a closed hub yields a closed channel.
func (h *Hub) Subscribe(ctx context.Context, topics ...Topic) <-chan Change {
	w := &watcher{ch: make(chan Change, h.buffer), match: TopicFilter(topics...)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(w.ch)
		return w.ch
	}
	h.subs[w] = struct{}{}
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			h.remove(w)
		case <-h.done:
		}
	}()

	return w.ch
}

// Publish delivers changes to every matching watcher without blocking.
func (h *Hub) Publish(changes ...Change) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for w := range h.subs {
		for _, c := range changes {
			if !w.match(c.Topic) {
				continue
			}
			select {
			case w.ch <- c:
			default:
			}
		}
	}
}

// Close closes every watcher channel. Later Subscribe calls get closed channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	close(h.done)
	for w := range h.subs {
		close(w.ch)
		delete(h.subs, w)
	}
}

// Len returns the number of active watchers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) remove(w *watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[w]; !ok {
		return
	}
	delete(h.subs, w)
	close(w.ch)
}
