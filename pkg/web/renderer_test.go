package web

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"flashdeck/pkg/decks"
	"flashdeck/pkg/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func render(t *testing.T, r *Renderer, name string, data any) string {
	t.Helper()
	rec := httptest.NewRecorder()
	if err := r.Render(rec, http.StatusOK, name, data); err != nil {
		t.Fatalf("Render(%s): %v", name, err)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content type = %q", ct)
	}
	return rec.Body.String()
}

func TestEmbeddedPages(t *testing.T) {
	r, err := NewRenderer("", quietLogger())
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	user := &models.User{ID: "u1", Email: "a@x.com"}

	landing := render(t, r, "landing.html", LandingPage{User: user})
	if !strings.Contains(landing, "a@x.com") || !strings.Contains(landing, `href="/dashboard"`) {
		t.Errorf("landing page missing signed-in content")
	}

	authPage := render(t, r, "auth.html", AuthPage{Error: "Invalid email or password", Providers: []string{"github"}})
	if !strings.Contains(authPage, "Invalid email or password") || !strings.Contains(authPage, "/auth/oauth/github") {
		t.Errorf("auth page missing error or provider link")
	}
}

func TestDashboardStates(t *testing.T) {
	r, err := NewRenderer("", quietLogger())
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	user := &models.User{ID: "u1", Email: "a@x.com"}
	created := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		page    DashboardPage
		want    []string
		wantNot []string
	}{
		{
			name:    "auth loading",
			page:    DashboardPage{Snapshot: decks.Snapshot{State: decks.RenderAuthLoading}},
			want:    []string{"Checking your session", `data-live="/dashboard/live"`, `<template id="new-deck">`},
			wantNot: []string{"<h1>Your decks</h1>", "location.reload"},
		},
		{
			name:    "decks loading",
			page:    DashboardPage{Snapshot: decks.Snapshot{State: decks.RenderDecksLoading, User: user}},
			want:    []string{"Loading your decks", "new WebSocket"},
			wantNot: []string{`class="grid"`, "<h1>Your decks</h1>"},
		},
		{
			name:    "empty",
			page:    DashboardPage{Snapshot: decks.Snapshot{State: decks.RenderEmpty, User: user}},
			want:    []string{"No decks yet", "Create New Deck"},
			wantNot: []string{"Loading your decks", "new WebSocket"},
		},
		{
			name: "empty after failure",
			page: DashboardPage{
				Snapshot:   decks.Snapshot{State: decks.RenderEmpty, User: user},
				FetchError: "We couldn't load your decks",
			},
			want: []string{"We couldn&#39;t load your decks", "No decks yet"},
		},
		{
			name: "grid",
			page: DashboardPage{Snapshot: decks.Snapshot{State: decks.RenderGrid, User: user, Decks: []models.Deck{
				{ID: "d2", Title: "Kanji", CardsCount: 1, CreatedAt: created},
				{ID: "d1", Title: "Verbs", CardsCount: 12},
			}}},
			want: []string{"Kanji", "1 card", "Feb 1, 2024", "Verbs", "12 cards"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := render(t, r, "dashboard.html", tt.page)
			for _, s := range tt.want {
				if !strings.Contains(body, s) {
					t.Errorf("missing %q", s)
				}
			}
			for _, s := range tt.wantNot {
				if strings.Contains(body, s) {
					t.Errorf("unexpected %q", s)
				}
			}
		})
	}

	body := render(t, r, "dashboard.html", tests[4].page)
	if strings.Index(body, "Kanji") > strings.Index(body, "Verbs") {
		t.Error("decks not rendered in response order")
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	r, err := NewRenderer("", quietLogger())
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	rec := httptest.NewRecorder()
	if err := r.Render(rec, http.StatusOK, "missing.html", nil); err == nil {
		t.Fatal("expected error")
	}
	if rec.Body.Len() != 0 {
		t.Fatal("partial output written")
	}
}

func writePage(t *testing.T, dir, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "landing.html"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDirectoryTemplatesReload(t *testing.T) {
	dir := t.TempDir()
	writePage(t, dir, "v1")

	r, err := NewRenderer(dir, quietLogger())
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	if got := render(t, r, "landing.html", nil); got != "v1" {
		t.Fatalf("body = %q", got)
	}

	writePage(t, dir, "{{.Broken")
	if err := r.Reload(); err == nil {
		t.Fatal("expected parse error")
	}
	if got := render(t, r, "landing.html", nil); got != "v1" {
		t.Fatalf("failed reload replaced templates: %q", got)
	}
}

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	writePage(t, dir, "before")

	r, err := NewRenderer(dir, quietLogger())
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Watch(ctx); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	writePage(t, dir, "after")

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if render(t, r, "landing.html", nil) == "after" {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("templates not reloaded after change")
}

func TestWatchWithoutDirectory(t *testing.T) {
	r, err := NewRenderer("", quietLogger())
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	if err := r.Watch(context.Background()); err != nil {
		t.Fatalf("Watch: %v", err)
	}
}
