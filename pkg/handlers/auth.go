package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"flashdeck/pkg/errors"
	"flashdeck/pkg/services"
	"flashdeck/pkg/web"
)

// AuthHandlers contains authentication-related handlers
type AuthHandlers struct {
	sessions   Sessions
	auth       *services.AuthService
	renderer   *web.Renderer
	renderWait time.Duration
	logger     *slog.Logger
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(sessions Sessions, authService *services.AuthService, renderer *web.Renderer, renderWait time.Duration, logger *slog.Logger) *AuthHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandlers{
		sessions:   sessions,
		auth:       authService,
		renderer:   renderer,
		renderWait: renderWait,
		logger:     logger,
	}
}

func (h *AuthHandlers) renderPage(w http.ResponseWriter, status int, page web.AuthPage) {
	page.Providers = h.auth.Providers()
	if err := h.renderer.Render(w, status, "auth.html", page); err != nil {
		h.logger.Error("template execution failed", slog.String("template", "auth.html"), slog.String("error", err.Error()))
		http.Error(w, "Template execution error", http.StatusInternalServerError)
	}
}

// LoginHandler serves the sign-in page, or sends signed-in visitors on to
// their decks.
func (h *AuthHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if s := h.sessions.GetSession(r); s != nil {
		ctx, cancel := context.WithTimeout(r.Context(), h.renderWait)
		defer cancel()
		if state, err := s.Store.WaitResolved(ctx); err == nil && state.User != nil {
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
			return
		}
	}

	h.renderPage(w, http.StatusOK, web.AuthPage{
		Error:  r.URL.Query().Get("error"),
		Notice: r.URL.Query().Get("notice"),
	})
}

// SignInHandler handles the email and password form
func (h *AuthHandlers) SignInHandler(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.EnsureSession(w, r)
	email := r.FormValue("email")

	if _, err := h.auth.SignIn(r.Context(), s.Remote, email, r.FormValue("password")); err != nil {
		h.renderPage(w, errors.HTTPStatus(err), web.AuthPage{Email: email, Error: errors.UserMessage(err)})
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// SignUpHandler registers a new account from the same form
func (h *AuthHandlers) SignUpHandler(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.EnsureSession(w, r)
	email := r.FormValue("email")

	_, err := h.auth.SignUp(r.Context(), s.Remote, email, r.FormValue("password"))
	switch {
	case errors.Is(err, errors.ErrConfirmationRequired):
		h.renderPage(w, http.StatusOK, web.AuthPage{Email: email, Notice: errors.UserMessage(err)})
	case err != nil:
		h.renderPage(w, errors.HTTPStatus(err), web.AuthPage{Email: email, Error: errors.UserMessage(err)})
	default:
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
	}
}

// LogoutHandler handles sign-out requests
func (h *AuthHandlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if s := h.sessions.GetSession(r); s != nil {
		s.Store.SignOut(r.Context())
	}
	http.Redirect(w, r, "/auth", http.StatusSeeOther)
}

// OAuthStartHandler sends the browser to the provider's consent screen.
func (h *AuthHandlers) OAuthStartHandler(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.EnsureSession(w, r)

	dest, err := h.auth.BeginOAuth(r.Context(), s.Remote, chi.URLParam(r, "provider"))
	if err != nil {
		http.Redirect(w, r, "/auth?error="+url.QueryEscape(errors.UserMessage(err)), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, dest, http.StatusFound)
}

// OAuthCallbackHandler finishes a provider sign-in.
func (h *AuthHandlers) OAuthCallbackHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if desc := q.Get("error_description"); desc != "" || q.Get("error") != "" {
		h.logger.Warn("oauth provider returned an error",
			slog.String("error", q.Get("error")),
			slog.String("description", desc))
		http.Redirect(w, r, "/auth?error="+url.QueryEscape("Sign-in with that provider was cancelled or failed"), http.StatusSeeOther)
		return
	}

	s := h.sessions.GetSession(r)
	if s == nil {
		http.Redirect(w, r, "/auth?error="+url.QueryEscape("That sign-in link has expired. Please try again"), http.StatusSeeOther)
		return
	}
	if err := h.auth.CompleteOAuth(r.Context(), s.Remote, q.Get("code")); err != nil {
		http.Redirect(w, r, "/auth?error="+url.QueryEscape(errors.UserMessage(err)), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}
