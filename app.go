package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"flashdeck/pkg/auth"
	"flashdeck/pkg/config"
	"flashdeck/pkg/crypto"
	"flashdeck/pkg/handlers"
	"flashdeck/pkg/metrics"
	"flashdeck/pkg/middleware"
	"flashdeck/pkg/services"
	"flashdeck/pkg/storage"
	"flashdeck/pkg/supabase"
	"flashdeck/pkg/web"
)

const (
	cleanupInterval = 5 * time.Minute
	shutdownTimeout = 10 * time.Second
)

// App struct
type App struct {
	ctx    context.Context
	cancel context.CancelFunc

	config  *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	supabase    *supabase.Client
	records     storage.SessionStore
	memory      *storage.MemoryStore
	redis       *redis.Client
	authManager *auth.Manager
	handoff     *handlers.Handoff
	renderer    *web.Renderer

	authService *services.AuthService
	deckService *services.DeckService

	server *http.Server
}

// NewApp creates a new App application struct
func NewApp(cfg *config.Config, logger *slog.Logger) *App {
	return &App{config: cfg, logger: logger}
}

// newLogger builds the process logger: text for terminals, JSON when
// format is "json".
func newLogger(format string, w io.Writer, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// callbackURL is where OAuth providers return the browser to.
func callbackURL(cfg *config.Config) string {
	base := strings.TrimRight(cfg.PublicURL, "/")
	if base == "" {
		host, port, err := net.SplitHostPort(cfg.ListenAddr)
		if err != nil || host == "" || host == "0.0.0.0" || host == "::" {
			host = "localhost"
		}
		if port == "" {
			port = "8080"
		}
		base = "http://" + net.JoinHostPort(host, port)
	}
	return base + "/auth/callback"
}

// newBackend builds the hosted backend client and the services over it.
func newBackend(cfg *config.Config, logger *slog.Logger) (*supabase.Client, *services.AuthService, *services.DeckService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}
	client, err := supabase.New(supabase.Options{
		URL:       cfg.SupabaseURL,
		AnonKey:   cfg.SupabaseAnonKey,
		JWTSecret: cfg.SupabaseJWTSecret,
		Timeout:   time.Duration(cfg.HTTPTimeout),
	})
	if err != nil {
		return nil, nil, nil, err
	}
	authService := services.NewAuthService(client, cfg.OAuthProviders, callbackURL(cfg), logger)
	deckService := services.NewDeckService(client, cfg.FetchAttempts, logger)
	return client, authService, deckService, nil
}

// startup builds every component. Nothing listens until serve is called.
func (a *App) startup(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)
	cfg := a.config

	client, authService, deckService, err := newBackend(cfg, a.logger)
	if err != nil {
		return err
	}
	a.supabase, a.authService, a.deckService = client, authService, deckService

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(reg)

	if err := a.openRecords(); err != nil {
		return err
	}

	a.authManager = auth.NewManager(auth.Options{
		API:          client,
		Records:      a.records,
		Timeout:      time.Duration(cfg.SessionTimeout),
		CookieSecure: cfg.CookieSecure,
		Logger:       a.logger,
		Metrics:      a.metrics,
	})

	a.renderer, err = web.NewRenderer(cfg.TemplatesDir, a.logger)
	if err != nil {
		return err
	}
	if err := a.renderer.Watch(a.ctx); err != nil {
		a.logger.Warn("template hot reload disabled", slog.String("error", err.Error()))
	}

	// Start background session cleanup
	go a.authManager.Run(a.ctx, cleanupInterval)
	if a.memory != nil {
		go a.startRecordCleanup()
	}

	a.server = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.logger.Info("flashdeck initialized",
		slog.String("config_file", cfg.Path()),
		slog.String("supabase_url", cfg.SupabaseURL),
		slog.String("listen", cfg.ListenAddr),
		slog.Bool("redis", a.redis != nil),
		slog.String("templates", templatesSource(cfg.TemplatesDir)))
	return nil
}

func templatesSource(dir string) string {
	if dir == "" {
		return "embedded"
	}
	return dir
}

// openRecords picks where browser session records live.
func (a *App) openRecords() error {
	cfg := a.config
	if cfg.RedisAddr == "" {
		a.memory = storage.NewMemoryStore()
		a.records = a.memory
		return nil
	}

	client, err := storage.Connect(a.ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	a.redis = client

	var sealer storage.Sealer
	if cfg.SessionSecret != "" {
		s, err := crypto.NewSealer(cfg.SessionSecret)
		if err != nil {
			return err
		}
		sealer = s
	} else {
		a.logger.Warn("FLASHDECK_SESSION_SECRET not set, session tokens are stored in redis unencrypted")
	}
	a.records = storage.NewRedisStore(client, sealer)
	return nil
}

// routes builds the HTTP router.
func (a *App) routes() http.Handler {
	a.handoff = handlers.NewHandoff(handlers.DefaultHandoffTTL)
	viewOpts := handlers.ViewOptions{
		RenderWait: time.Duration(a.config.RenderWait),
		CountCards: a.config.CountCards,
		Logger:     a.logger,
		Metrics:    a.metrics,
		Handoff:    a.handoff,
	}
	webHandlers := handlers.NewWebHandlers(a.authManager, a.deckService, a.renderer, viewOpts)
	authHandlers := handlers.NewAuthHandlers(a.authManager, a.authService, a.renderer, viewOpts.RenderWait, a.logger)
	apiHandlers := handlers.NewAPIHandlers(a.authManager, a.deckService, viewOpts)
	liveHandlers := handlers.NewLiveHandlers(a.authManager, a.deckService, viewOpts)
	authenticator := handlers.NewAuthenticator(a.supabase, a.authManager, a.logger)

	r := chi.NewRouter()

	// Add middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Tracing())
	r.Use(middleware.Metrics(a.metrics))

	r.Get("/healthz", handlers.HealthHandler)
	r.Handle("/metrics", a.metrics.Handler())

	// Pages
	r.Get("/", webHandlers.IndexHandler)
	r.Get("/dashboard", webHandlers.DashboardHandler)
	r.Get("/dashboard/live", liveHandlers.DashboardLiveHandler)
	r.With(middleware.RequireAuth(a.authManager)).Post("/decks", webHandlers.CreateDeckHandler)

	// Authentication routes (no auth required)
	r.Route("/auth", func(r chi.Router) {
		r.Get("/", authHandlers.LoginHandler)
		r.Post("/sign-in", authHandlers.SignInHandler)
		r.Post("/sign-up", authHandlers.SignUpHandler)
		r.Post("/sign-out", authHandlers.LogoutHandler)
		r.Get("/oauth/{provider}", authHandlers.OAuthStartHandler)
		r.Get("/callback", authHandlers.OAuthCallbackHandler)
	})

	// Protected API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RequireAuthAPI(authenticator))
		r.Get("/session", apiHandlers.SessionHandler)
		r.Get("/decks", apiHandlers.DecksHandler)
		r.Post("/decks", apiHandlers.CreateDeckHandler)
	})

	return r
}

// serve listens until ctx ends, then shuts down gracefully.
func (a *App) serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", slog.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		a.shutdown()
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down gracefully")
	a.shutdown()
	return <-errCh
}

// shutdown stops the server and background work and releases connections.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Warn("http shutdown", slog.String("error", err.Error()))
		}
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.handoff.Close()
	if a.authManager != nil {
		a.authManager.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis close", slog.String("error", err.Error()))
		}
	}
}

// startRecordCleanup drops expired in-memory session records.
func (a *App) startRecordCleanup() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := a.memory.Sweep(); n > 0 {
				a.logger.Debug("expired session records removed", slog.Int("count", n))
			}
		case <-a.ctx.Done():
			return
		}
	}
}
