package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/roach88/area/internal/catalog"
	"github.com/roach88/area/internal/engine"
	"github.com/roach88/area/internal/ir"
	"github.com/roach88/area/internal/metrics"
	"github.com/roach88/area/internal/store"
	"github.com/roach88/area/internal/tasks"
)

// Defaults for Server options.
const (
	DefaultMaxBodyBytes = 1 << 20
	DefaultRateLimit    = 50
	DefaultBurst        = 100

	// APIPrefix is the path prefix of every API route.
	APIPrefix = "/api/v1"

	shutdownTimeout = 10 * time.Second
)

// Server is the HTTP surface of the engine.
type Server struct {
	engine  *engine.Engine
	store   *store.Store
	tasks   *tasks.Service
	catalog *catalog.Catalog
	metrics *metrics.Metrics

	limiter       *rate.Limiter
	maxBodyBytes  int64
	webhookSecret string

	router *mux.Router
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics exposes m on /metrics and counts rate-limited requests.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithRateLimit limits event ingestion to rps requests per second with the
// given burst. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithGitHubWebhookSecret enables the GitHub webhook listener, verifying
// deliveries against secret.
func WithGitHubWebhookSecret(secret string) Option {
	return func(s *Server) {
		s.webhookSecret = secret
	}
}

// New creates a Server.
func New(eng *engine.Engine, st *store.Store, svc *tasks.Service, opts ...Option) *Server {
	s := &Server{
		engine:       eng,
		store:        st,
		tasks:        svc,
		catalog:      svc.Catalog(),
		limiter:      rate.NewLimiter(DefaultRateLimit, DefaultBurst),
		maxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	// Full paths on the root router keep a method mismatch reporting 405.
	p := func(path string) string { return APIPrefix + path }

	r.Handle(p("/events"), s.limit(http.HandlerFunc(s.handleEvent))).Methods(http.MethodPost)
	r.HandleFunc(p("/events"), s.handleListEvents).Methods(http.MethodGet)
	r.HandleFunc(p("/events/last"), s.handleLastEvent).Methods(http.MethodGet)
	r.HandleFunc(p("/events/list_messages"), s.handleListMessages).Methods(http.MethodGet)

	r.HandleFunc(p("/tasks"), s.handleTasksForService).Methods(http.MethodGet)
	r.HandleFunc(p("/tasks"), s.handleCreateTask).Methods(http.MethodPost)
	r.HandleFunc(p("/tasks/services"), s.handleServices).Methods(http.MethodGet)
	r.HandleFunc(p("/tasks/services/reactions"), s.handleServicesWithReactions).Methods(http.MethodGet)
	r.HandleFunc(p("/tasks/services/events"), s.handleServicesWithTriggers).Methods(http.MethodGet)
	r.HandleFunc(p("/tasks/reactions"), s.handleAllReactions).Methods(http.MethodGet)
	r.HandleFunc(p("/tasks/reactions/{service}"), s.handleReactionsOf).Methods(http.MethodGet)
	r.HandleFunc(p("/tasks/events/{service}"), s.handleTriggersOf).Methods(http.MethodGet)
	r.HandleFunc(p("/tasks/params/event/{event}"), s.handleTriggerParams).Methods(http.MethodGet)
	r.HandleFunc(p("/tasks/params/reaction/{reaction}"), s.handleReactionParams).Methods(http.MethodGet)
	r.HandleFunc(p("/tasks/user/{user_id:[0-9]+}"), s.handleTasksForOwner).Methods(http.MethodGet)
	r.HandleFunc(p("/tasks/{task_id:[0-9]+}"), s.handleGetTask).Methods(http.MethodGet)
	r.HandleFunc(p("/tasks/{task_id:[0-9]+}"), s.handleReplaceTask).Methods(http.MethodPut)
	r.HandleFunc(p("/tasks/{task_id:[0-9]+}"), s.handlePatchTask).Methods(http.MethodPatch)
	r.HandleFunc(p("/tasks/{task_id:[0-9]+}"), s.handleDeleteTask).Methods(http.MethodDelete)

	r.HandleFunc(p("/users"), s.handleListIdentities).Methods(http.MethodGet)
	r.HandleFunc(p("/users"), s.handleCreateIdentity).Methods(http.MethodPost)
	r.HandleFunc(p("/users/{user_id:[0-9]+}"), s.handleGetIdentity).Methods(http.MethodGet)
	r.HandleFunc(p("/users/{user_id:[0-9]+}"), s.handleDeleteIdentity).Methods(http.MethodDelete)
	r.HandleFunc(p("/users/{user_id:[0-9]+}/tokens/{provider}"), s.handlePutToken).Methods(http.MethodPut)

	if s.webhookSecret != "" {
		r.Handle(p("/webhooks/github"), s.limit(http.HandlerFunc(s.handleGitHubWebhook))).Methods(http.MethodPost)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "no route for "+r.URL.Path)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, codeBadRequest, r.Method+" not allowed on "+r.URL.Path)
	})
	return r
}

// limit rejects requests beyond the ingestion rate with 429.
func (s *Server) limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			s.metrics.ObserveRateLimited()
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, codeRateLimited, "event rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// readBody reads a size-capped request body.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &ValidationError{Problems: []string{fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit)}}
		}
		return nil, err
	}
	return body, nil
}

// pathID parses a numeric route variable.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil {
		return 0, &ValidationError{Problems: []string{name + ": must be an integer"}}
	}
	return id, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "version": ir.EngineVersion})
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	slog.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
