package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/kpmd/internal/auth"
	"github.com/mattjoyce/kpmd/internal/events"
	"github.com/mattjoyce/kpmd/internal/hook"
	"github.com/mattjoyce/kpmd/internal/kpm"
	"github.com/mattjoyce/kpmd/internal/metrics"
	"github.com/mattjoyce/kpmd/internal/usermem"
)

const shutdownGrace = 5 * time.Second

// HookRegistry reports slot state.
type HookRegistry interface {
	Status() []hook.SlotStatus
	Attached() int
}

// EventStream is the subset of events.Hub the SSE endpoint needs.
type EventStream interface {
	Subscribe(topics ...string) (<-chan events.Event, func())
	SnapshotSince(lastID int64) []events.Event
}

// Config configures the API server.
type Config struct {
	Listen string
	// APIKey is the single bearer token with full access.
	APIKey string
	// Tokens is an optional list of scoped bearer tokens.
	Tokens []auth.TokenConfig
	// AddressLimit bounds the caller address space built per request.
	AddressLimit usermem.Addr
	// CallTimeout bounds one command, backend included. Zero means none.
	CallTimeout time.Duration
}

// Server serves the KPM HTTP API.
type Server struct {
	config    Config
	keyring   *auth.Keyring
	caller    kpm.Invoker
	hooks     HookRegistry
	events    EventStream
	metrics   *metrics.Metrics
	logger    *slog.Logger
	startedAt time.Time
}

// New creates a new API server instance. m may be nil, in which case
// /metrics is not served.
func New(config Config, caller kpm.Invoker, hooks HookRegistry, stream EventStream, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		keyring:   auth.NewKeyring(config.APIKey, config.Tokens),
		caller:    caller,
		hooks:     hooks,
		events:    stream,
		metrics:   m,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start listens on Config.Listen and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts on ln until ctx is cancelled, then drains in-flight
// requests for up to shutdownGrace. It returns ctx.Err() after a clean
// shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: /events streams for the life of the client.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	shutdownErr := make(chan error, 1)
	stop := context.AfterFunc(ctx, func() {
		s.logger.Info("API server shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		shutdownErr <- srv.Shutdown(sctx)
	})
	defer stop()

	s.logger.Info("API server listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	if err := <-shutdownErr; err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return ctx.Err()
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

// routes mounts the unauthenticated ops endpoints at the root and
// everything else behind bearer auth.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, s.accessLog, middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware, s.requireScopes(auth.ScopeRead, auth.ScopeWrite))
		r.Get("/v1/hooks", s.handleHooks)
		r.Post("/v1/kpm/{command}", s.handleCall)
		r.Get("/events", s.handleEvents)
		r.Get("/openapi.json", s.handleOpenAPI)
	})
	return r
}

// authMiddleware resolves the bearer token into a Principal.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.ExtractBearerToken(r)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		principal, ok := s.keyring.Lookup(token)
		if !ok {
			s.writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	})
}

// requireScopes rejects principals that hold none of scopes.
func (s *Server) requireScopes(scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, _ := auth.PrincipalFromContext(r.Context())
			if !principal.Allows(scopes...) {
				s.writeError(w, http.StatusForbidden, "insufficient scope")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// accessLog writes one record per request once the handler returns.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func(start time.Time) {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}(time.Now())
		next.ServeHTTP(ww, r)
	})
}
