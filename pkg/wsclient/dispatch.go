package wsclient

import (
	"sync"

	"github.com/yanun0323/logs"
)

// Handler wraps an event callback. Registrations are identified by pointer,
// so the exact Handler passed to On must be passed to Off to remove it.
type Handler struct {
	fn func(Event)
}

// NewHandler builds a Handler around fn.
func NewHandler(fn func(Event)) *Handler {
	return &Handler{fn: fn}
}

// registry maps event names to handlers. Invocation order for one name is
// registration order.
type registry struct {
	mu     sync.RWMutex
	events map[string][]*Handler
}

func newRegistry() *registry {
	return &registry{events: make(map[string][]*Handler)}
}

func (r *registry) add(name string, h *Handler) {
	if h == nil || h.fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.events[name]
	for _, existing := range list {
		if existing == h {
			return
		}
	}
	r.events[name] = append(list, h)
}

func (r *registry) remove(name string, h *Handler) {
	if h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.events[name]
	for i, existing := range list {
		if existing == h {
			list = append(list[:i:i], list[i+1:]...)
			if len(list) == 0 {
				delete(r.events, name)
			} else {
				r.events[name] = list
			}
			return
		}
	}
}

func (r *registry) dispatch(event Event, onPanic func()) {
	r.mu.RLock()
	list := append([]*Handler(nil), r.events[event.Name]...)
	r.mu.RUnlock()
	for _, h := range list {
		invokeHandler(h, event, onPanic)
	}
}

// invokeHandler isolates one handler call; a panicking handler must not stop
// its siblings or the dispatch loop.
func invokeHandler(h *Handler, event Event, onPanic func()) {
	defer func() {
		if rec := recover(); rec != nil {
			if onPanic != nil {
				onPanic()
			}
			logs.Errorf("wsclient: handler panic on %q: %+v", event.Name, rec)
		}
	}()
	h.fn(event)
}
