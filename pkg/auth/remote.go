package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"flashdeck/pkg/errors"
	"flashdeck/pkg/metrics"
	"flashdeck/pkg/models"
	"flashdeck/pkg/storage"
)

// refreshLeeway is how close to expiry an access token gets refreshed.
const refreshLeeway = 60 * time.Second

// TokenAPI is the part of the hosted auth service a Remote talks to.
type TokenAPI interface {
	RefreshSession(ctx context.Context, refreshToken string) (*models.AuthSession, error)
	SignOut(ctx context.Context, accessToken string) error
}

type listener struct {
	id string
	fn func(Event)
}

// Remote is the auth collaborator for one browser session. It keeps the
// token pair in a storage.SessionStore and tells listeners about every
// sign-in, sign-out and refresh.
type Remote struct {
	id      string
	api     TokenAPI
	records storage.SessionStore
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	// mu orders record updates with the events they produce.
	mu sync.Mutex

	lmu       sync.Mutex
	listeners []listener
}

// NewRemote binds a browser session id to its persisted record.
func NewRemote(id string, api TokenAPI, records storage.SessionStore, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *Remote {
	if logger == nil {
		logger = slog.Default()
	}
	return &Remote{
		id:      id,
		api:     api,
		records: records,
		ttl:     ttl,
		logger:  logger.With(slog.String("component", "auth.remote")),
		metrics: m,
		now:     time.Now,
	}
}

// ID returns the browser session id.
func (r *Remote) ID() string {
	return r.id
}

// OnSessionChange registers fn for every later event.
func (r *Remote) OnSessionChange(fn func(Event)) func() {
	id := uuid.NewString()
	r.lmu.Lock()
	r.listeners = append(r.listeners, listener{id: id, fn: fn})
	r.lmu.Unlock()

	return func() {
		r.lmu.Lock()
		defer r.lmu.Unlock()
		for i, l := range r.listeners {
			if l.id == id {
				r.listeners = append(r.listeners[:i:i], r.listeners[i+1:]...)
				return
			}
		}
	}
}

func (r *Remote) emit(kind EventKind, sess *models.AuthSession) {
	r.metrics.AuthEvent(string(kind))

	r.lmu.Lock()
	ls := make([]listener, len(r.listeners))
	copy(ls, r.listeners)
	r.lmu.Unlock()

	for _, l := range ls {
		l.fn(Event{Kind: kind, Session: sess})
	}
}

func (r *Remote) load(ctx context.Context) (*storage.Record, error) {
	rec, err := r.records.Load(ctx, r.id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = &storage.Record{ID: r.id}
	}
	return rec, nil
}

func (r *Remote) save(ctx context.Context, rec *storage.Record) error {
	rec.ID = r.id
	rec.UpdatedAt = r.now().UTC()
	return r.records.Save(ctx, rec, r.ttl)
}

// Establish stores a freshly issued session and announces the sign-in.
func (r *Remote) Establish(ctx context.Context, sess *models.AuthSession) error {
	if sess == nil || sess.User.ID == "" {
		return errors.From(errors.ErrNotAuthenticated, nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.load(ctx)
	if err != nil {
		return err
	}
	rec.Session = sess
	rec.Verifier = ""
	if err := r.save(ctx, rec); err != nil {
		return err
	}

	r.logger.Info("signed in", slog.String("user_id", sess.User.ID))
	r.emit(EventSignedIn, sess)
	return nil
}

// GetCurrentSession returns the stored session, refreshing it first when
// the access token is about to expire. A refresh token the service rejects
// signs the browser out.
func (r *Remote) GetCurrentSession(ctx context.Context) (*models.AuthSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.records.Load(ctx, r.id)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Session == nil {
		return nil, nil
	}

	sess := rec.Session
	now := r.now()
	if !sess.ExpiresWithin(now, refreshLeeway) {
		return sess, nil
	}

	refreshed, err := r.api.RefreshSession(ctx, sess.RefreshToken)
	if err != nil {
		if appErr, ok := errors.As(err); ok && appErr.Type == errors.ErrTypeAuth {
			r.logger.Info("refresh token rejected, signing out", slog.String("user_id", sess.User.ID))
			rec.Session = nil
			if err := r.save(ctx, rec); err != nil {
				r.logger.Warn("failed to clear session record", slog.String("error", err.Error()))
			}
			r.emit(EventSignedOut, nil)
			return nil, nil
		}
		if !sess.ExpiresWithin(now, 0) {
			r.logger.Warn("token refresh failed, using current token", slog.String("error", err.Error()))
			return sess, nil
		}
		return nil, err
	}

	rec.Session = refreshed
	if err := r.save(ctx, rec); err != nil {
		return nil, err
	}
	r.emit(EventTokenRefreshed, refreshed)
	return refreshed, nil
}

// AccessToken returns a usable access token for the signed-in user.
func (r *Remote) AccessToken(ctx context.Context) (string, error) {
	sess, err := r.GetCurrentSession(ctx)
	if err != nil {
		return "", err
	}
	if sess == nil {
		return "", errors.From(errors.ErrNotAuthenticated, nil)
	}
	return sess.AccessToken, nil
}

// SignOut clears the local session and announces it, then revokes the token
// with the service. The returned error only concerns the revoke.
func (r *Remote) SignOut(ctx context.Context) error {
	r.mu.Lock()
	rec, err := r.records.Load(ctx, r.id)
	if err != nil {
		r.logger.Warn("failed to read session record", slog.String("error", err.Error()))
	}
	if delErr := r.records.Delete(ctx, r.id); delErr != nil {
		r.logger.Warn("failed to delete session record", slog.String("error", delErr.Error()))
	}
	r.emit(EventSignedOut, nil)
	r.mu.Unlock()

	if rec == nil || rec.Session == nil {
		return nil
	}
	r.logger.Info("signed out", slog.String("user_id", rec.Session.User.ID))
	return r.api.SignOut(ctx, rec.Session.AccessToken)
}

// SetVerifier remembers the PKCE verifier of an OAuth sign-in in flight.
func (r *Remote) SetVerifier(ctx context.Context, verifier string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.load(ctx)
	if err != nil {
		return err
	}
	rec.Verifier = verifier
	return r.save(ctx, rec)
}

// TakeVerifier returns and forgets the pending PKCE verifier.
func (r *Remote) TakeVerifier(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.records.Load(ctx, r.id)
	if err != nil {
		return "", err
	}
	if rec == nil || rec.Verifier == "" {
		return "", errors.New(errors.ErrTypeAuth, "OAUTH_STATE_MISSING", "no oauth sign-in in progress").
			WithUserMessage("That sign-in link has expired. Please try again")
	}
	v := rec.Verifier
	rec.Verifier = ""
	return v, r.save(ctx, rec)
}

// Touch extends the lifetime of the persisted record.
func (r *Remote) Touch(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.records.Load(ctx, r.id)
	if err != nil || rec == nil {
		return err
	}
	return r.save(ctx, rec)
}
