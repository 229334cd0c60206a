package upload

import (
	"io"
	"sync"
)

// Event is one progress notification for a session.
type Event struct {
	SessionID string  `json:"session_id"`
	Status    Status  `json:"status"`
	Progress  float64 `json:"progress"`
	Error     string  `json:"error,omitempty"`
	NodeID    string  `json:"node_id,omitempty"`
}

// Hub fans progress events out to per-session subscribers.
//
// Publishing never blocks: a subscriber that stops draining its channel
// misses intermediate events but always has room for the next one thanks
// to channel buffering plus drop-oldest semantics. A terminal event is
// always the last one a subscriber sees for its session.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers for a session's events. The returned cancel
// function must be called to release the subscription.
func (h *Hub) Subscribe(sessionID string) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[chan Event]struct{})
	}
	h.subs[sessionID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[sessionID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, sessionID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber of its session.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[ev.SessionID] {
		select {
		case ch <- ev:
		default:
			// Full buffer: drop the oldest queued event to make room so
			// the freshest state always lands.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// progressReader reports forwarded bytes through a callback as a backend
// upload consumes the spooled file.
type progressReader struct {
	r        io.Reader
	total    int64
	read     int64
	onChange func(fraction float64)
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 && p.total > 0 {
		p.read += int64(n)
		p.onChange(float64(p.read) / float64(p.total))
	}
	return n, err
}
