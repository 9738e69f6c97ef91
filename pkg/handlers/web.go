package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"flashdeck/pkg/auth"
	"flashdeck/pkg/decks"
	"flashdeck/pkg/errors"
	"flashdeck/pkg/metrics"
	"flashdeck/pkg/middleware"
	"flashdeck/pkg/services"
	"flashdeck/pkg/web"
)

// Sessions is the browser session registry the handlers work against.
type Sessions interface {
	GetSession(r *http.Request) *auth.Session
	EnsureSession(w http.ResponseWriter, r *http.Request) *auth.Session
	HoldSession(r *http.Request) (*auth.Session, func())
}

// ViewOptions are shared by every handler that opens a deck list view.
type ViewOptions struct {
	RenderWait time.Duration
	CountCards bool
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	// Handoff passes dashboard views that did not settle in time on to the
	// live socket of the page that was served. Nil disables it.
	Handoff *Handoff
}

func (o ViewOptions) open(session decks.SessionSource, src decks.Source, onRedirect func()) *decks.View {
	return decks.NewView(session, src, decks.Options{
		Logger:     o.Logger,
		Metrics:    o.Metrics,
		CountCards: o.CountCards,
		OnRedirect: onRedirect,
	})
}

// WebHandlers contains handlers for web interface
type WebHandlers struct {
	sessions Sessions
	decks    *services.DeckService
	renderer *web.Renderer
	opts     ViewOptions
	logger   *slog.Logger
}

// NewWebHandlers creates a new web handlers instance
func NewWebHandlers(sessions Sessions, deckService *services.DeckService, renderer *web.Renderer, opts ViewOptions) *WebHandlers {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &WebHandlers{
		sessions: sessions,
		decks:    deckService,
		renderer: renderer,
		opts:     opts,
		logger:   opts.Logger,
	}
}

func (h *WebHandlers) render(w http.ResponseWriter, status int, name string, data any) {
	if err := h.renderer.Render(w, status, name, data); err != nil {
		h.logger.Error("template execution failed", slog.String("template", name), slog.String("error", err.Error()))
		http.Error(w, "Template execution error", http.StatusInternalServerError)
	}
}

// IndexHandler serves the landing page
func (h *WebHandlers) IndexHandler(w http.ResponseWriter, r *http.Request) {
	var page web.LandingPage
	if s := h.sessions.GetSession(r); s != nil {
		ctx, cancel := context.WithTimeout(r.Context(), h.opts.RenderWait)
		defer cancel()
		state, _ := s.Store.WaitResolved(ctx)
		page.User = state.User
	}
	h.render(w, http.StatusOK, "landing.html", page)
}

// DashboardHandler serves the deck list. It waits up to RenderWait for the
// view to settle; if it has not by then the loading page is served, the view
// is handed off, and the browser follows along over the live socket.
func (h *WebHandlers) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.GetSession(r)
	if s == nil {
		http.Redirect(w, r, "/auth", http.StatusSeeOther)
		return
	}

	view := h.opts.open(s.Store, h.decks.Source(s.Remote), nil)

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.RenderWait)
	defer cancel()
	snap, _ := view.Await(ctx)

	if snap.Settled() {
		view.Close()
	} else {
		h.opts.Handoff.Park(s, view)
	}

	if snap.State == decks.RenderRedirect {
		http.Redirect(w, r, "/auth", http.StatusSeeOther)
		return
	}

	page := web.DashboardPage{
		Snapshot: snap,
		Error:    r.URL.Query().Get("error"),
	}
	if snap.FetchErr != nil {
		page.FetchError = errors.UserMessage(snap.FetchErr)
	}
	h.render(w, http.StatusOK, "dashboard.html", page)
}

// CreateDeckHandler handles the dashboard's new deck form.
func (h *WebHandlers) CreateDeckHandler(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFrom(r.Context())
	s := h.sessions.GetSession(r)
	if user == nil || s == nil {
		http.Redirect(w, r, "/auth", http.StatusSeeOther)
		return
	}

	_, err := h.decks.Create(r.Context(), s.Remote, user.ID, r.FormValue("title"), r.FormValue("description"))
	if err != nil {
		http.Redirect(w, r, "/dashboard?error="+url.QueryEscape(errors.UserMessage(err)), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// HealthHandler reports liveness.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}
