package services

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"testing"

	"flashdeck/pkg/decks"
	"flashdeck/pkg/errors"
	"flashdeck/pkg/models"
	"flashdeck/pkg/supabase"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeAuthBackend struct {
	signIns   int
	sess      *models.AuthSession
	err       error
	challenge string
	code      string
	verifier  string
}

func (f *fakeAuthBackend) SignInWithPassword(_ context.Context, email, password string) (*models.AuthSession, error) {
	f.signIns++
	return f.sess, f.err
}

func (f *fakeAuthBackend) SignUp(_ context.Context, email, password string) (*models.AuthSession, error) {
	return f.sess, f.err
}

func (f *fakeAuthBackend) AuthorizeURL(provider, redirectTo, codeChallenge string) string {
	f.challenge = codeChallenge
	return "https://auth.example/authorize?" + url.Values{
		"provider":    {provider},
		"redirect_to": {redirectTo},
	}.Encode()
}

func (f *fakeAuthBackend) ExchangeCode(_ context.Context, code, verifier string) (*models.AuthSession, error) {
	f.code, f.verifier = code, verifier
	return f.sess, f.err
}

type fakeHolder struct {
	established *models.AuthSession
	verifier    string
}

func (h *fakeHolder) Establish(_ context.Context, sess *models.AuthSession) error {
	h.established = sess
	return nil
}

func (h *fakeHolder) SetVerifier(_ context.Context, v string) error {
	h.verifier = v
	return nil
}

func (h *fakeHolder) TakeVerifier(context.Context) (string, error) {
	if h.verifier == "" {
		return "", errors.New(errors.ErrTypeAuth, "OAUTH_STATE_MISSING", "no oauth sign-in in progress")
	}
	v := h.verifier
	h.verifier = ""
	return v, nil
}

func signedIn(id string) *models.AuthSession {
	return &models.AuthSession{AccessToken: "tok-" + id, User: models.User{ID: id, Email: id + "@x.io"}}
}

func TestSignInValidatesBeforeCallingBackend(t *testing.T) {
	backend := &fakeAuthBackend{sess: signedIn("u1")}
	svc := NewAuthService(backend, nil, "", quietLogger())

	tests := []struct {
		name     string
		email    string
		password string
		code     string
	}{
		{"empty email", "", "secret1", "EMAIL_EMPTY"},
		{"bad email", "not-an-email", "secret1", "EMAIL_INVALID"},
		{"empty password", "a@x.io", "", "PASSWORD_EMPTY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SignIn(context.Background(), &fakeHolder{}, tt.email, tt.password)
			appErr, ok := errors.As(err)
			if !ok || appErr.Code != tt.code {
				t.Fatalf("err = %v, want code %s", err, tt.code)
			}
		})
	}
	if backend.signIns != 0 {
		t.Fatalf("backend called %d times for invalid input", backend.signIns)
	}
}

func TestSignInEstablishesSession(t *testing.T) {
	backend := &fakeAuthBackend{sess: signedIn("u1")}
	svc := NewAuthService(backend, nil, "", quietLogger())
	holder := &fakeHolder{}

	if _, err := svc.SignIn(context.Background(), holder, "  a@x.io ", "secret1"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if holder.established == nil || holder.established.User.ID != "u1" {
		t.Fatalf("established = %+v", holder.established)
	}
}

func TestSignInRejected(t *testing.T) {
	backend := &fakeAuthBackend{err: errors.From(errors.ErrInvalidCredentials, nil)}
	svc := NewAuthService(backend, nil, "", quietLogger())
	holder := &fakeHolder{}

	_, err := svc.SignIn(context.Background(), holder, "a@x.io", "wrong-pass")
	if !errors.Is(err, errors.ErrInvalidCredentials) {
		t.Fatalf("err = %v, want invalid credentials", err)
	}
	if holder.established != nil {
		t.Fatal("session established after rejected sign in")
	}
}

func TestSignUpPasswordRules(t *testing.T) {
	svc := NewAuthService(&fakeAuthBackend{sess: signedIn("u1")}, nil, "", quietLogger())
	_, err := svc.SignUp(context.Background(), &fakeHolder{}, "a@x.io", "12345")
	if !errors.Is(err, errors.ErrPasswordTooShort) {
		t.Fatalf("err = %v, want password too short", err)
	}
}

func TestSignUpAwaitingConfirmation(t *testing.T) {
	backend := &fakeAuthBackend{err: errors.From(errors.ErrConfirmationRequired, nil)}
	svc := NewAuthService(backend, nil, "", quietLogger())
	holder := &fakeHolder{}

	_, err := svc.SignUp(context.Background(), holder, "a@x.io", "secret1")
	if !errors.Is(err, errors.ErrConfirmationRequired) {
		t.Fatalf("err = %v, want confirmation required", err)
	}
	if holder.established != nil {
		t.Fatal("session established before confirmation")
	}
}

func TestOAuthRoundTrip(t *testing.T) {
	backend := &fakeAuthBackend{sess: signedIn("u1")}
	svc := NewAuthService(backend, []string{"github"}, "https://app.example/auth/callback", quietLogger())
	holder := &fakeHolder{}
	ctx := context.Background()

	if _, err := svc.BeginOAuth(ctx, holder, "gitlab"); !errors.Is(err, errors.ErrProviderNotAllowed) {
		t.Fatalf("err = %v, want provider not allowed", err)
	}

	dest, err := svc.BeginOAuth(ctx, holder, "github")
	if err != nil {
		t.Fatalf("BeginOAuth: %v", err)
	}
	if !strings.Contains(dest, "provider=github") || !strings.Contains(dest, url.QueryEscape("https://app.example/auth/callback")) {
		t.Fatalf("authorize url = %s", dest)
	}
	if holder.verifier == "" || backend.challenge == "" || backend.challenge == holder.verifier {
		t.Fatalf("verifier %q / challenge %q not set up for S256", holder.verifier, backend.challenge)
	}
	verifier := holder.verifier

	if err := svc.CompleteOAuth(ctx, holder, "code-1"); err != nil {
		t.Fatalf("CompleteOAuth: %v", err)
	}
	if backend.code != "code-1" || backend.verifier != verifier {
		t.Fatalf("exchange got code %q verifier %q", backend.code, backend.verifier)
	}
	if holder.established == nil {
		t.Fatal("no session after oauth")
	}

	if err := svc.CompleteOAuth(ctx, holder, "code-1"); err == nil {
		t.Fatal("verifier reused")
	}
	if err := svc.CompleteOAuth(ctx, holder, ""); err == nil {
		t.Fatal("empty code accepted")
	}
}

type staticToken string

func (s staticToken) AccessToken(context.Context) (string, error) {
	return string(s), nil
}

type fakeDeckBackend struct {
	calls   int
	failFor int
	fail    error
	query   supabase.DeckQuery
	token   string
	created models.NewDeck
	decks   []models.Deck
}

func (f *fakeDeckBackend) ListDecks(_ context.Context, token string, q supabase.DeckQuery) ([]models.Deck, error) {
	f.calls++
	f.token, f.query = token, q
	if f.calls <= f.failFor {
		return nil, f.fail
	}
	return f.decks, nil
}

func (f *fakeDeckBackend) CreateDeck(_ context.Context, token string, nd models.NewDeck) (*models.Deck, error) {
	f.token, f.created = token, nd
	return &models.Deck{ID: "d-new", Title: nd.Title, Description: nd.Description}, nil
}

func TestDeckSourceTranslatesQuery(t *testing.T) {
	backend := &fakeDeckBackend{decks: []models.Deck{{ID: "d2"}, {ID: "d1"}}}
	svc := NewDeckService(backend, 1, quietLogger())
	src := svc.Source(staticToken("tok-u1"))

	got, err := src.ListDecks(context.Background(), decks.Query{OwnerID: "u1", OrderBy: "created_at", Descending: true, CountCards: true})
	if err != nil {
		t.Fatalf("ListDecks: %v", err)
	}
	want := supabase.DeckQuery{OwnerID: "u1", OrderBy: "created_at", Descending: true, CountCards: true}
	if backend.query != want || backend.token != "tok-u1" {
		t.Fatalf("backend got %+v with %q", backend.query, backend.token)
	}
	if len(got) != 2 || got[0].ID != "d2" {
		t.Fatalf("decks = %+v", got)
	}
}

func TestDeckListRetriesTransientFailures(t *testing.T) {
	outage := errors.New(errors.ErrTypeNetwork, "SUPABASE_UNAVAILABLE", "503").WithRetryable(true)

	backend := &fakeDeckBackend{failFor: 1, fail: outage, decks: []models.Deck{{ID: "d1"}}}
	svc := NewDeckService(backend, 3, quietLogger())
	if _, err := svc.List(context.Background(), staticToken("t"), decks.Query{OwnerID: "u1"}); err != nil {
		t.Fatalf("List: %v", err)
	}
	if backend.calls != 2 {
		t.Fatalf("calls = %d, want 2", backend.calls)
	}

	single := &fakeDeckBackend{failFor: 5, fail: outage}
	svc = NewDeckService(single, 1, quietLogger())
	_, err := svc.List(context.Background(), staticToken("t"), decks.Query{OwnerID: "u1"})
	if err != outage || single.calls != 1 {
		t.Fatalf("err = %v after %d calls, want the outage after 1", err, single.calls)
	}
}

func TestDeckListDoesNotRetryQueryErrors(t *testing.T) {
	denied := errors.New(errors.ErrTypeQuery, "DECKS_QUERY_FAILED", "permission denied")
	backend := &fakeDeckBackend{failFor: 5, fail: denied}
	svc := NewDeckService(backend, 3, quietLogger())

	if _, err := svc.List(context.Background(), staticToken("t"), decks.Query{OwnerID: "u1"}); err == nil {
		t.Fatal("expected error")
	}
	if backend.calls != 1 {
		t.Fatalf("calls = %d, want 1", backend.calls)
	}
}

func TestCreateDeck(t *testing.T) {
	backend := &fakeDeckBackend{}
	svc := NewDeckService(backend, 1, quietLogger())
	ctx := context.Background()

	if _, err := svc.Create(ctx, staticToken("t"), "u1", "   ", ""); !errors.Is(err, errors.ErrDeckTitleEmpty) {
		t.Fatalf("err = %v, want empty title", err)
	}
	if _, err := svc.Create(ctx, staticToken("t"), "u1", strings.Repeat("x", 121), ""); err == nil {
		t.Fatal("long title accepted")
	}
	if _, err := svc.Create(ctx, staticToken("t"), "", "Spanish", ""); !errors.Is(err, errors.ErrNotAuthenticated) {
		t.Fatalf("err = %v, want not authenticated", err)
	}

	deck, err := svc.Create(ctx, staticToken("tok"), "u1", " Spanish verbs ", " irregulars ")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if backend.created.OwnerID != "u1" || backend.created.Title != "Spanish verbs" || backend.created.Description != "irregulars" {
		t.Fatalf("created = %+v", backend.created)
	}
	if deck.ID != "d-new" || backend.token != "tok" {
		t.Fatalf("deck = %+v token %q", deck, backend.token)
	}
}
