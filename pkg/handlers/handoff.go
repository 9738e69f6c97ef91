package handlers

import (
	"sync"
	"time"

	"flashdeck/pkg/auth"
	"flashdeck/pkg/decks"
)

// DefaultHandoffTTL is how long a parked view waits for its live socket.
const DefaultHandoffTTL = 30 * time.Second

type parkedView struct {
	store *auth.Store
	view  *decks.View
	timer *time.Timer
}

// Handoff keeps the dashboard view of a page served while still loading, so
// the live socket that page opens continues the same fetch instead of
// issuing another one. One view is parked per browser session.
type Handoff struct {
	mutex sync.Mutex
	views map[string]*parkedView
	ttl   time.Duration
}

// NewHandoff creates a Handoff whose parked views are closed after ttl.
func NewHandoff(ttl time.Duration) *Handoff {
	if ttl <= 0 {
		ttl = DefaultHandoffTTL
	}
	return &Handoff{
		views: make(map[string]*parkedView),
		ttl:   ttl,
	}
}

// Park keeps view for the session's next live socket. A view parked earlier
// for the same session is closed.
func (h *Handoff) Park(s *auth.Session, view *decks.View) {
	if h == nil {
		view.Close()
		return
	}

	pv := &parkedView{store: s.Store, view: view}

	h.mutex.Lock()
	old := h.views[s.ID]
	h.views[s.ID] = pv
	pv.timer = time.AfterFunc(h.ttl, func() {
		h.mutex.Lock()
		if h.views[s.ID] != pv {
			h.mutex.Unlock()
			return
		}
		delete(h.views, s.ID)
		h.mutex.Unlock()
		view.Close()
	})
	h.mutex.Unlock()

	if old != nil {
		old.timer.Stop()
		old.view.Close()
	}
}

// Take returns the view parked for the session, or nil. A view parked for a
// Store the session no longer has is closed and not returned.
func (h *Handoff) Take(s *auth.Session) *decks.View {
	if h == nil {
		return nil
	}

	h.mutex.Lock()
	pv := h.views[s.ID]
	delete(h.views, s.ID)
	h.mutex.Unlock()

	if pv == nil {
		return nil
	}
	pv.timer.Stop()
	if pv.store != s.Store {
		pv.view.Close()
		return nil
	}
	return pv.view
}

// Len reports how many views are parked.
func (h *Handoff) Len() int {
	if h == nil {
		return 0
	}
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.views)
}

// Close closes every parked view.
func (h *Handoff) Close() {
	if h == nil {
		return
	}
	h.mutex.Lock()
	views := h.views
	h.views = make(map[string]*parkedView)
	h.mutex.Unlock()

	for _, pv := range views {
		pv.timer.Stop()
		pv.view.Close()
	}
}
