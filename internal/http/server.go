// Package http exposes the notification API over JSON.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"finsight/internal/amqp"
	"finsight/internal/cache"
	"finsight/internal/core"
	"finsight/internal/log"
	"finsight/internal/middleware/ratelimit"
	"finsight/internal/middleware/security"
	"finsight/internal/middleware/trace"
	"finsight/internal/worker"
)

type (
	// Generator runs a synchronous generation pass.
	Generator interface {
		GenerateForUser(ctx context.Context, userID int64) int
	}

	ReadState interface {
		List(ctx context.Context, userID int64, unreadOnly bool) ([]core.Insight, error)
		MarkRead(ctx context.Context, userID, id int64) error
		MarkAllRead(ctx context.Context, userID int64) (int64, error)
	}

	// EventPublisher forwards transaction events to the worker.
	EventPublisher interface {
		PublishTransactionChanged(ctx context.Context, msg *amqp.TransactionChangedMessage) error
	}

	Pinger interface {
		Ping(ctx context.Context) error
	}
)

// Deps are the collaborators behind the API. Events and Dispatch are both
// optional; with neither, transaction events are rejected.
type Deps struct {
	Generator Generator
	ReadState ReadState
	Events    EventPublisher
	Dispatch  worker.Submitter
	Ready     Pinger
}

// Options tunes the server's ambient behaviour.
type Options struct {
	// RateLimitPerMinute caps requests per client IP (default: 60)
	RateLimitPerMinute int

	// ListCacheTTL is how long listing results are reused; zero disables the cache
	ListCacheTTL time.Duration

	// ListCacheSize bounds cached listings (default: 1000)
	ListCacheSize int
}

func DefaultOptions() Options {
	return Options{
		RateLimitPerMinute: 60,
		ListCacheTTL:       5 * time.Second,
		ListCacheSize:      1000,
	}
}

type Server struct {
	http.Server
	deps    Deps
	logger  *log.Logger
	limiter *ratelimit.Limiter
	janitor *cache.Janitor

	// listings is nil when caching is disabled
	listings cache.Cache[[]notificationJSON]

	shutdownOnce sync.Once
}

func NewServer(addr string, deps Deps, opts Options, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Discard()
	}
	if opts.ListCacheSize <= 0 {
		opts.ListCacheSize = DefaultOptions().ListCacheSize
	}

	s := &Server{
		deps:    deps,
		logger:  logger.WithComponent(log.ComponentHTTP),
		limiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
	}
	if opts.ListCacheTTL > 0 {
		lru := cache.NewLRUCache[[]notificationJSON](opts.ListCacheSize, opts.ListCacheTTL)
		s.listings = lru
		s.janitor = cache.NewJanitor(logger)
		s.janitor.Register(lru)
		s.janitor.Start(time.Minute)
	}

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(trace.NewMiddleware(security.ClientIP, s.logger).Middleware)
	r.Use(middleware.Recoverer)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api/user", func(r chi.Router) {
		r.Use(s.limiter.Middleware(security.ClientIP, s.handleRateLimited))
		r.Use(requireUser)

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", s.handleListNotifications)
			r.Post("/generate", s.handleGenerate)
			r.Put("/read-all", s.handleMarkAllRead)
			r.Put("/{id}/read", s.handleMarkRead)
		})
		r.Post("/transactions/events", s.handleTransactionEvent)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, messageResponse{Success: false, Message: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, messageResponse{Success: false, Message: "method not allowed"})
	})
	return r
}

// Shutdown stops background cleanup and gracefully drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		if s.janitor != nil {
			s.janitor.Stop()
		}
		err = s.Server.Shutdown(ctx)
	})
	return err
}
