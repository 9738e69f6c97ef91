package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"flashdeck/pkg/decks"
	"flashdeck/pkg/services"
)

const liveWriteTimeout = 10 * time.Second

// LiveHandlers streams dashboard snapshots over a websocket. The deck view
// lives exactly as long as the connection, the way a dashboard tab would.
type LiveHandlers struct {
	sessions Sessions
	decks    *services.DeckService
	opts     ViewOptions
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewLiveHandlers creates the live dashboard handler. The upgrader's default
// origin check is kept so other sites cannot ride the session cookie.
func NewLiveHandlers(sessions Sessions, deckService *services.DeckService, opts ViewOptions) *LiveHandlers {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &LiveHandlers{
		sessions: sessions,
		decks:    deckService,
		opts:     opts,
		logger:   opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// DashboardLiveHandler handles /dashboard/live.
func (h *LiveHandlers) DashboardLiveHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	h.opts.Metrics.LiveOpened()
	defer h.opts.Metrics.LiveClosed()

	// Held so the Store the view follows outlives idle eviction.
	s, release := h.sessions.HoldSession(r)
	defer release()
	if s == nil {
		h.send(conn, encodeSnapshot(decks.Snapshot{State: decks.RenderRedirect}))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The browser never sends anything; reading only notices it going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	view := h.opts.Handoff.Take(s)
	if view == nil {
		view = h.opts.open(s.Store, h.decks.Source(s.Remote), nil)
	}
	defer view.Close()

	snap := view.Snapshot()
	for {
		if err := h.send(conn, encodeSnapshot(snap)); err != nil {
			return
		}
		if snap.State == decks.RenderRedirect {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "signed out"),
				time.Now().Add(time.Second))
			return
		}

		snap, err = view.Wait(ctx, snap.Version)
		if err != nil {
			return
		}
	}
}

func (h *LiveHandlers) send(conn *websocket.Conn, msg snapshotJSON) error {
	conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Debug("live write failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}
