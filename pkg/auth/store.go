package auth

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"flashdeck/pkg/models"
)

// State is what readers see of a Store. While Loading is true User must not
// be trusted for queries.
type State struct {
	User    *models.User
	Loading bool
}

// EventKind names an auth-state transition reported by a Collaborator.
type EventKind string

const (
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
)

// Event is one notification from a Collaborator. Session is nil on sign-out.
type Event struct {
	Kind    EventKind
	Session *models.AuthSession
}

// Collaborator is the external auth service as the Store sees it.
type Collaborator interface {
	// GetCurrentSession returns nil, nil when nobody is signed in.
	GetCurrentSession(ctx context.Context) (*models.AuthSession, error)
	// OnSessionChange registers fn for every later transition and returns
	// a function that unregisters it.
	OnSessionChange(fn func(Event)) (unsubscribe func())
	SignOut(ctx context.Context) error
}

type subscriber struct {
	id string
	fn func(State)
}

// Store holds who is signed in for one browser session. It starts out
// resolving, resolves exactly once (from the initial lookup or the first
// notification, whichever lands first) and after that only notifications
// change the user.
type Store struct {
	collab Collaborator
	logger *slog.Logger

	// deliverMu keeps state changes and their delivery in one order.
	deliverMu sync.Mutex

	mu          sync.RWMutex
	user        *models.User
	loading     bool
	initStarted bool
	closed      bool
	subs        []subscriber
	detach      func()
	resolved    chan struct{}
}

// NewStore creates a store and registers with the collaborator right away so
// no transition after construction is missed.
func NewStore(collab Collaborator, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		collab:   collab,
		logger:   logger,
		loading:  true,
		resolved: make(chan struct{}),
	}
	s.detach = collab.OnSessionChange(s.handleEvent)
	return s
}

// Initialize performs the one-time lookup of the current session. Failures
// resolve to signed out. Calls after the first are no-ops.
func (s *Store) Initialize(ctx context.Context) {
	s.mu.Lock()
	if s.initStarted || s.closed {
		s.mu.Unlock()
		return
	}
	s.initStarted = true
	s.mu.Unlock()

	sess, err := s.collab.GetCurrentSession(ctx)
	if err != nil {
		s.logger.Warn("session lookup failed, treating as signed out", slog.String("error", err.Error()))
		sess = nil
	}

	s.apply(func() bool {
		if !s.loading {
			// A notification resolved the store first and is newer.
			return false
		}
		s.resolveLocked(userOf(sess))
		return true
	})
}

func (s *Store) handleEvent(ev Event) {
	s.apply(func() bool {
		next := userOf(ev.Session)
		changed := s.loading || !sameUser(s.user, next)
		if s.loading {
			s.resolveLocked(next)
		} else {
			s.user = next
		}
		return changed
	})
}

// resolveLocked leaves the resolving state. Must hold mu.
func (s *Store) resolveLocked(u *models.User) {
	s.user = u
	s.loading = false
	close(s.resolved)
}

// apply runs mutate under the state lock and, if it reports a change, hands
// the new state to every subscriber in registration order.
func (s *Store) apply(mutate func() bool) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	changed := mutate()
	state := s.stateLocked()
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	if !changed {
		return
	}
	for _, sub := range subs {
		sub.fn(state)
	}
}

func (s *Store) stateLocked() State {
	st := State{Loading: s.loading}
	if s.user != nil {
		u := *s.user
		st.User = &u
	}
	return st
}

// State returns the current user and loading flag.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

// Subscribe registers fn for every later state change. fn runs on the
// goroutine that caused the change and must not call back into the Store's
// mutating methods.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	id := uuid.NewString()

	s.mu.Lock()
	if !s.closed {
		s.subs = append(s.subs, subscriber{id: id, fn: fn})
	}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					break
				}
			}
			s.mu.Unlock()
		})
	}
}

// Resolved is closed once the store has left the resolving state.
func (s *Store) Resolved() <-chan struct{} {
	return s.resolved
}

// WaitResolved blocks until the store resolves or ctx ends.
func (s *Store) WaitResolved(ctx context.Context) (State, error) {
	select {
	case <-s.resolved:
		return s.State(), nil
	case <-ctx.Done():
		return s.State(), ctx.Err()
	}
}

// SignOut asks the collaborator to end the session. Failures are logged and
// not returned; the sign-out notification is what clears the user.
func (s *Store) SignOut(ctx context.Context) {
	if err := s.collab.SignOut(ctx); err != nil {
		s.logger.Warn("sign out failed", slog.String("error", err.Error()))
	}
}

// Close detaches from the collaborator and drops all subscribers.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.subs = nil
	detach := s.detach
	s.detach = nil
	s.mu.Unlock()

	if detach != nil {
		detach()
	}
}

func userOf(sess *models.AuthSession) *models.User {
	if sess == nil || sess.User.ID == "" {
		return nil
	}
	u := sess.User
	return &u
}

func sameUser(a, b *models.User) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
