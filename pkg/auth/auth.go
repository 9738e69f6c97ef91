package auth

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"sync"
	"time"

	"flashdeck/pkg/metrics"
	"flashdeck/pkg/models"
	"flashdeck/pkg/storage"
	"flashdeck/pkg/utils"
)

const (
	SessionTimeout = 30 * time.Minute
	CookieName     = "flashdeck_session"

	initTimeout = 10 * time.Second
)

// Session ids are 32 random bytes, base64url encoded.
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{43}=?$`)

// Session ties one browser to its auth collaborator and Session Store.
type Session struct {
	ID     string
	Remote *Remote
	Store  *Store

	lastSeen  time.Time
	lastTouch time.Time
	holds     int
}

// Options configures a Manager.
type Options struct {
	API          TokenAPI
	Records      storage.SessionStore
	Timeout      time.Duration
	CookieSecure bool
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

// Manager keeps a Session per browser, keyed by the session cookie, and
// drops the ones left idle for longer than the timeout.
type Manager struct {
	api          TokenAPI
	records      storage.SessionStore
	timeout      time.Duration
	cookieSecure bool
	logger       *slog.Logger
	metrics      *metrics.Metrics
	now          func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	sessions      map[string]*Session
	sessionsMutex sync.Mutex
}

// NewManager creates a new browser session manager
func NewManager(opts Options) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = SessionTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		api:          opts.API,
		records:      opts.Records,
		timeout:      opts.Timeout,
		cookieSecure: opts.CookieSecure,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		now:          time.Now,
		ctx:          ctx,
		cancel:       cancel,
		sessions:     make(map[string]*Session),
	}
}

// GetSession returns the Session named by the request's cookie, or nil when
// the request carries none. A cookie this process has not seen only gets a
// Session when a persisted record backs it.
func (m *Manager) GetSession(r *http.Request) *Session {
	return m.lookup(r, false)
}

// HoldSession is GetSession for long-lived connections. The Session is not
// evicted until release is called.
func (m *Manager) HoldSession(r *http.Request) (s *Session, release func()) {
	s = m.lookup(r, true)
	if s == nil {
		return nil, func() {}
	}
	var once sync.Once
	return s, func() {
		once.Do(func() {
			m.sessionsMutex.Lock()
			s.holds--
			s.lastSeen = m.now()
			m.sessionsMutex.Unlock()
		})
	}
}

func (m *Manager) lookup(r *http.Request, hold bool) *Session {
	cookie, err := r.Cookie(CookieName)
	if err != nil || !sessionIDPattern.MatchString(cookie.Value) {
		return nil
	}
	id := cookie.Value
	if s := m.session(id, false, hold); s != nil {
		return s
	}

	rec, err := m.records.Load(r.Context(), id)
	if err != nil {
		m.logger.Warn("failed to load session record", slog.String("error", err.Error()))
		return nil
	}
	if rec == nil {
		return nil
	}
	return m.session(id, true, hold)
}

// EnsureSession returns the request's Session, issuing a new cookie first
// when there is none. Auth actions use it; pages that only read the session
// use GetSession.
func (m *Manager) EnsureSession(w http.ResponseWriter, r *http.Request) *Session {
	if s := m.GetSession(r); s != nil {
		return s
	}
	id := utils.GenerateSessionID()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return m.session(id, true, false)
}

// session looks up the Session for id, creating it when create is set. New
// sessions start resolving their auth state in the background straight away.
func (m *Manager) session(id string, create, hold bool) *Session {
	now := m.now()

	m.sessionsMutex.Lock()
	s, exists := m.sessions[id]
	if !exists {
		if !create {
			m.sessionsMutex.Unlock()
			return nil
		}
		remote := NewRemote(id, m.api, m.records, m.timeout, m.logger, m.metrics)
		s = &Session{
			ID:        id,
			Remote:    remote,
			Store:     NewStore(remote, m.logger),
			lastTouch: now,
		}
		m.sessions[id] = s
		m.metrics.SetSessions(len(m.sessions))
	}
	s.lastSeen = now
	if hold {
		s.holds++
	}
	touch := now.Sub(s.lastTouch) > m.timeout/2
	if touch {
		s.lastTouch = now
	}
	m.sessionsMutex.Unlock()

	if !exists {
		go func() {
			ctx, cancel := context.WithTimeout(m.ctx, initTimeout)
			defer cancel()
			s.Store.Initialize(ctx)
		}()
	}
	if touch {
		m.touch(s)
	}
	return s
}

func (m *Manager) touch(s *Session) {
	go func() {
		if err := s.Remote.Touch(m.ctx); err != nil {
			m.logger.Warn("failed to extend session record", slog.String("error", err.Error()))
		}
	}()
}

// DeleteSession forgets a browser session and its persisted record.
func (m *Manager) DeleteSession(ctx context.Context, id string) {
	m.sessionsMutex.Lock()
	s, exists := m.sessions[id]
	delete(m.sessions, id)
	m.metrics.SetSessions(len(m.sessions))
	m.sessionsMutex.Unlock()

	if exists {
		s.Store.Close()
	}
	if err := m.records.Delete(ctx, id); err != nil {
		m.logger.Warn("failed to delete session record", slog.String("error", err.Error()))
	}
}

// IsAuthenticated returns the signed-in user for the request's browser
// session, waiting for the session to resolve if it has not yet.
func (m *Manager) IsAuthenticated(r *http.Request) *models.User {
	s := m.GetSession(r)
	if s == nil {
		return nil
	}
	state, err := s.Store.WaitResolved(r.Context())
	if err != nil {
		return nil
	}
	return state.User
}

// Sweep drops sessions idle for longer than the timeout. Their persisted
// records expire on their own. Held sessions stay, and their records are
// extended.
func (m *Manager) Sweep() int {
	now := m.now()
	cutoff := now.Add(-m.timeout)

	var idle, held []*Session
	m.sessionsMutex.Lock()
	for id, s := range m.sessions {
		if s.holds > 0 {
			if now.Sub(s.lastTouch) > m.timeout/2 {
				s.lastTouch = now
				held = append(held, s)
			}
			continue
		}
		if s.lastSeen.Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.metrics.SetSessions(len(m.sessions))
	m.sessionsMutex.Unlock()

	for _, s := range held {
		m.touch(s)
	}
	for _, s := range idle {
		s.Store.Close()
	}
	if len(idle) > 0 {
		m.logger.Debug("evicted idle browser sessions", slog.Int("count", len(idle)))
	}
	return len(idle)
}

// Run sweeps idle sessions every interval until ctx ends.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Len reports how many browser sessions are held.
func (m *Manager) Len() int {
	m.sessionsMutex.Lock()
	defer m.sessionsMutex.Unlock()
	return len(m.sessions)
}

// Close stops background lookups and closes every session.
func (m *Manager) Close() {
	m.cancel()

	m.sessionsMutex.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.sessionsMutex.Unlock()

	for _, s := range sessions {
		s.Store.Close()
	}
}
