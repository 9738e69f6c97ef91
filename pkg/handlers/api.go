package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"flashdeck/pkg/auth"
	"flashdeck/pkg/decks"
	"flashdeck/pkg/errors"
	"flashdeck/pkg/middleware"
	"flashdeck/pkg/models"
	"flashdeck/pkg/services"
)

// TokenVerifier resolves a bearer access token to its user.
type TokenVerifier interface {
	VerifyAccessToken(ctx context.Context, accessToken string) (*models.User, error)
}

// Authenticator admits API requests that carry either a bearer token or a
// signed-in session cookie.
type Authenticator struct {
	verifier TokenVerifier
	sessions middleware.AuthManager
	logger   *slog.Logger
}

// NewAuthenticator creates an authenticator
func NewAuthenticator(verifier TokenVerifier, sessions middleware.AuthManager, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{verifier: verifier, sessions: sessions, logger: logger}
}

// IsAuthenticated returns the request's user, or nil.
func (a *Authenticator) IsAuthenticated(r *http.Request) *models.User {
	if token := middleware.BearerToken(r); token != "" {
		u, err := a.verifier.VerifyAccessToken(r.Context(), token)
		if err != nil {
			a.logger.Debug("bearer token rejected", slog.String("error", err.Error()))
			return nil
		}
		return u
	}
	return a.sessions.IsAuthenticated(r)
}

// snapshotJSON is the wire form of a deck view snapshot, shared by the JSON
// API and the live socket.
type snapshotJSON struct {
	State        decks.RenderState     `json:"state"`
	User         *models.User          `json:"user,omitempty"`
	Decks        []models.Deck         `json:"decks"`
	DecksLoading bool                  `json:"decksLoading"`
	Error        *errors.FrontendError `json:"error,omitempty"`
	Location     string                `json:"location,omitempty"`
	Version      uint64                `json:"version"`
}

func encodeSnapshot(snap decks.Snapshot) snapshotJSON {
	out := snapshotJSON{
		State:        snap.State,
		User:         snap.User,
		Decks:        snap.Decks,
		DecksLoading: snap.DecksLoading,
		Version:      snap.Version,
	}
	if out.Decks == nil {
		out.Decks = []models.Deck{}
	}
	if snap.FetchErr != nil {
		out.Error = errors.ToFrontendError(snap.FetchErr)
	}
	if snap.State == decks.RenderRedirect {
		out.Location = "/auth"
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errors.HTTPStatus(err), errors.ToFrontendError(err))
}

// APIHandlers contains API endpoint handlers
type APIHandlers struct {
	sessions Sessions
	decks    *services.DeckService
	opts     ViewOptions
	logger   *slog.Logger
}

// NewAPIHandlers creates a new API handlers instance
func NewAPIHandlers(sessions Sessions, deckService *services.DeckService, opts ViewOptions) *APIHandlers {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &APIHandlers{
		sessions: sessions,
		decks:    deckService,
		opts:     opts,
		logger:   opts.Logger,
	}
}

// binding is the session store and token source a request runs against.
type binding struct {
	store  decks.SessionSource
	tokens services.TokenSource
	close  func()
}

// bind picks the caller's session. Bearer requests get a store of their own
// over the token; cookie requests share the browser's store.
func (h *APIHandlers) bind(r *http.Request) (binding, bool) {
	if token := middleware.BearerToken(r); token != "" {
		user := middleware.UserFrom(r.Context())
		if user == nil {
			return binding{}, false
		}
		fixed := auth.Fixed{Session: &models.AuthSession{AccessToken: token, TokenType: "bearer", User: *user}}
		store := auth.NewStore(fixed, h.logger)
		store.Initialize(r.Context())
		return binding{store: store, tokens: fixed, close: store.Close}, true
	}

	s := h.sessions.GetSession(r)
	if s == nil {
		return binding{}, false
	}
	return binding{store: s.Store, tokens: s.Remote, close: func() {}}, true
}

// SessionHandler reports who is signed in.
func (h *APIHandlers) SessionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"user": middleware.UserFrom(r.Context()),
	})
}

// DecksHandler returns the settled deck list of the caller.
func (h *APIHandlers) DecksHandler(w http.ResponseWriter, r *http.Request) {
	b, ok := h.bind(r)
	if !ok {
		writeError(w, errors.From(errors.ErrNotAuthenticated, nil))
		return
	}
	defer b.close()

	view := h.opts.open(b.store, h.decks.Source(b.tokens), nil)
	defer view.Close()

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.RenderWait)
	defer cancel()
	snap, err := view.Await(ctx)

	switch {
	case snap.State == decks.RenderRedirect:
		writeError(w, errors.From(errors.ErrNotAuthenticated, nil))
	case err != nil:
		// Not settled in time; the client polls again.
		writeJSON(w, http.StatusAccepted, encodeSnapshot(snap))
	default:
		writeJSON(w, http.StatusOK, encodeSnapshot(snap))
	}
}

// CreateDeckHandler creates a deck from a JSON body.
func (h *APIHandlers) CreateDeckHandler(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFrom(r.Context())
	b, ok := h.bind(r)
	if user == nil || !ok {
		writeError(w, errors.From(errors.ErrNotAuthenticated, nil))
		return
	}
	defer b.close()

	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(err, errors.ErrTypeValidation, "INVALID_JSON", "invalid request body").
			WithUserMessage("The request body is not valid JSON"))
		return
	}

	deck, err := h.decks.Create(r.Context(), b.tokens, user.ID, req.Title, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, deck)
}
