// Package decks drives the signed-in user's deck list: it follows a Session
// Store, fetches the owner's decks whenever the user changes and exposes a
// snapshot that says what to render.
package decks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"flashdeck/pkg/auth"
	"flashdeck/pkg/errors"
	"flashdeck/pkg/metrics"
	"flashdeck/pkg/models"
)

// Query selects the decks to list.
type Query struct {
	OwnerID    string
	OrderBy    string
	Descending bool
	CountCards bool
}

// Source lists decks. Implementations return them in the order to render.
type Source interface {
	ListDecks(ctx context.Context, q Query) ([]models.Deck, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, q Query) ([]models.Deck, error)

func (f SourceFunc) ListDecks(ctx context.Context, q Query) ([]models.Deck, error) {
	return f(ctx, q)
}

// SessionSource is the read side of an auth.Store.
type SessionSource interface {
	State() auth.State
	Subscribe(fn func(auth.State)) (unsubscribe func())
}

// RenderState says which of the mutually exclusive page states applies.
type RenderState string

const (
	RenderAuthLoading  RenderState = "auth-loading"
	RenderRedirect     RenderState = "redirect"
	RenderDecksLoading RenderState = "decks-loading"
	RenderEmpty        RenderState = "empty"
	RenderGrid         RenderState = "grid"
)

// ErrClosed is returned by Wait and Await once the view is closed.
var ErrClosed = errors.New(errors.ErrTypeApp, "VIEW_CLOSED", "deck view closed")

// Snapshot is a consistent copy of the view.
type Snapshot struct {
	State        RenderState
	User         *models.User
	Decks        []models.Deck
	DecksLoading bool
	// FetchErr is the error of the last fetch for the current user, if it failed.
	FetchErr error
	Version  uint64
}

// Settled reports whether nothing is pending any more.
func (s Snapshot) Settled() bool {
	return s.State != RenderAuthLoading && s.State != RenderDecksLoading
}

// Options tunes a View.
type Options struct {
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	CountCards bool
	// OnRedirect runs once, when the view learns nobody is signed in.
	OnRedirect func()
}

// View is the deck list for one page. A new user id starts a fresh fetch;
// responses for an older user are dropped. Once it has redirected the view
// does nothing more.
type View struct {
	id      string
	src     Source
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics

	ctx  context.Context
	stop context.CancelFunc

	mu           sync.Mutex
	authLoading  bool
	redirected   bool
	user         *models.User
	decks        []models.Deck
	decksLoading bool
	fetchErr     error
	generation   uint64
	cancelFetch  context.CancelFunc
	version      uint64
	changed      chan struct{}
	closed       bool
	unsubscribe  func()
}

// NewView binds a view to a session and reacts to its current state at once.
func NewView(session SessionSource, src Source, opts Options) *View {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	ctx, stop := context.WithCancel(context.Background())

	v := &View{
		id:          id,
		src:         src,
		opts:        opts,
		logger:      logger.With(slog.String("view", id)),
		metrics:     opts.Metrics,
		ctx:         ctx,
		stop:        stop,
		authLoading: true,
		changed:     make(chan struct{}),
	}

	// Holding mu until the current state is applied keeps an early
	// notification from being overtaken by the older State() read.
	v.mu.Lock()
	v.unsubscribe = session.Subscribe(v.onSession)
	redirect := v.applyLocked(session.State())
	v.mu.Unlock()

	if redirect {
		v.fireRedirect()
	}
	return v
}

// ID identifies the view in logs.
func (v *View) ID() string {
	return v.id
}

func (v *View) onSession(st auth.State) {
	v.mu.Lock()
	redirect := v.applyLocked(st)
	v.mu.Unlock()

	if redirect {
		v.fireRedirect()
	}
}

func (v *View) fireRedirect() {
	v.metrics.Redirect()
	v.logger.Debug("no signed-in user, redirecting")
	if v.opts.OnRedirect != nil {
		v.opts.OnRedirect()
	}
}

// applyLocked moves the view to match st and reports whether it just
// redirected. Must hold mu.
func (v *View) applyLocked(st auth.State) bool {
	if v.closed || v.redirected {
		return false
	}
	if st.Loading {
		return false
	}

	v.authLoading = false

	if st.User == nil {
		v.redirected = true
		v.stopFetchLocked()
		v.user = nil
		v.decks = nil
		v.decksLoading = false
		v.bumpLocked()
		return true
	}

	if v.user != nil && v.user.ID == st.User.ID {
		if *v.user != *st.User {
			u := *st.User
			v.user = &u
			v.bumpLocked()
		}
		return false
	}

	u := *st.User
	v.user = &u
	v.generation++
	v.stopFetchLocked()

	ctx, cancel := context.WithCancel(v.ctx)
	v.cancelFetch = cancel
	v.decks = nil
	v.decksLoading = true
	v.fetchErr = nil
	v.bumpLocked()

	q := Query{
		OwnerID:    u.ID,
		OrderBy:    "created_at",
		Descending: true,
		CountCards: v.opts.CountCards,
	}
	go v.fetch(ctx, v.generation, q)
	return false
}

func (v *View) fetch(ctx context.Context, gen uint64, q Query) {
	start := time.Now()
	decks, err := v.src.ListDecks(ctx, q)
	took := time.Since(start)

	v.mu.Lock()
	if v.closed || gen != v.generation {
		v.mu.Unlock()
		v.metrics.DeckFetch(metrics.FetchStale, took)
		v.logger.Debug("dropping stale deck response", slog.String("owner_id", q.OwnerID))
		return
	}

	result := metrics.FetchOK
	if err != nil {
		result = metrics.FetchError
		v.decks = []models.Deck{}
		v.fetchErr = err
		if appErr, ok := errors.As(err); ok {
			appErr.Log(v.logger)
		} else {
			v.logger.Error("deck fetch failed", slog.String("error", err.Error()))
		}
	} else {
		v.decks = make([]models.Deck, len(decks))
		copy(v.decks, decks)
		v.fetchErr = nil
	}
	v.decksLoading = false
	v.stopFetchLocked()
	v.bumpLocked()
	v.mu.Unlock()

	v.metrics.DeckFetch(result, took)
}

func (v *View) stopFetchLocked() {
	if v.cancelFetch != nil {
		v.cancelFetch()
		v.cancelFetch = nil
	}
}

func (v *View) bumpLocked() {
	v.version++
	close(v.changed)
	v.changed = make(chan struct{})
}

func (v *View) snapshotLocked() Snapshot {
	s := Snapshot{
		DecksLoading: v.decksLoading,
		FetchErr:     v.fetchErr,
		Version:      v.version,
	}
	if v.user != nil {
		u := *v.user
		s.User = &u
	}
	if v.decks != nil {
		s.Decks = make([]models.Deck, len(v.decks))
		copy(s.Decks, v.decks)
	}

	switch {
	case v.authLoading:
		s.State = RenderAuthLoading
	case v.redirected:
		s.State = RenderRedirect
	case v.decksLoading:
		s.State = RenderDecksLoading
	case len(v.decks) == 0:
		s.State = RenderEmpty
	default:
		s.State = RenderGrid
	}
	return s
}

// Snapshot returns the current view.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

// Wait blocks until the view's version differs from since, the view is
// closed, or ctx ends.
func (v *View) Wait(ctx context.Context, since uint64) (Snapshot, error) {
	for {
		v.mu.Lock()
		snap := v.snapshotLocked()
		closed := v.closed
		ch := v.changed
		v.mu.Unlock()

		if closed {
			return snap, ErrClosed
		}
		if snap.Version != since {
			return snap, nil
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

// Await blocks until the view has settled: auth is resolved and no fetch is
// pending. A redirect counts as settled.
func (v *View) Await(ctx context.Context) (Snapshot, error) {
	snap := v.Snapshot()
	for !snap.Settled() {
		var err error
		snap, err = v.Wait(ctx, snap.Version)
		if err != nil {
			return snap, err
		}
	}
	return snap, nil
}

// Close detaches the view from its session and abandons any fetch in flight.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.stopFetchLocked()
	v.stop()
	unsubscribe := v.unsubscribe
	v.unsubscribe = nil
	v.bumpLocked()
	v.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}
