// Package httpapi exposes the gateway, image generation and builder agent
// over HTTP. Every failure surfaces as a classified error mapped to a
// stable status code.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/avrebarra/lumora/internal/metrics"
	"github.com/avrebarra/lumora/pkg/builder"
	"github.com/avrebarra/lumora/pkg/gateway"
	"github.com/avrebarra/lumora/pkg/imagine"
	"github.com/avrebarra/lumora/pkg/ledger"
	"github.com/avrebarra/lumora/pkg/llm"
	"github.com/rs/zerolog"
)

// accountHeader identifies the calling account on every request.
const accountHeader = "X-Account-ID"

// ServerOptions configures the HTTP server.
type ServerOptions struct {
	Host               string
	Port               int
	RateLimitPerMinute int
}

// Server is the public HTTP server.
type Server struct {
	options        ServerOptions
	server         *http.Server
	gateway        *gateway.Gateway
	imagine        *imagine.Service
	runner         *builder.Runner
	gate           *ledger.Gate
	conversations  builder.ConversationStore
	rateLimiter    *RateLimiter
	metrics        *metrics.Metrics
	logger         zerolog.Logger
	startTime      time.Time
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// Dependencies holds everything the server serves.
type Dependencies struct {
	Gateway       *gateway.Gateway
	Imagine       *imagine.Service
	Runner        *builder.Runner
	Gate          *ledger.Gate
	Conversations builder.ConversationStore
	Metrics       *metrics.Metrics
	Logger        zerolog.Logger
}

// NewServer creates the HTTP server.
func NewServer(options ServerOptions, deps Dependencies) (*Server, error) {
	if options.Port == 0 {
		options.Port = 8080
	}
	if options.Host == "" {
		options.Host = "0.0.0.0"
	}
	if options.RateLimitPerMinute == 0 {
		options.RateLimitPerMinute = 100
	}

	if deps.Gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if deps.Imagine == nil {
		return nil, fmt.Errorf("image service is required")
	}
	if deps.Runner == nil {
		return nil, fmt.Errorf("builder runner is required")
	}
	if deps.Gate == nil {
		return nil, fmt.Errorf("ledger gate is required")
	}
	if deps.Conversations == nil {
		return nil, fmt.Errorf("conversation store is required")
	}

	return &Server{
		options:       options,
		gateway:       deps.Gateway,
		imagine:       deps.Imagine,
		runner:        deps.Runner,
		gate:          deps.Gate,
		conversations: deps.Conversations,
		rateLimiter:   NewRateLimiter(options.RateLimitPerMinute),
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		startTime:     time.Now(),
	}, nil
}

// Handler builds the route table. Exposed separately so tests can drive
// the mux without a listening socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/chat", s.guard(s.handleChat))
	mux.HandleFunc("/v1/images", s.guard(s.handleImages))
	mux.HandleFunc("/v1/builder", s.guard(s.handleBuilder))
	mux.HandleFunc("/v1/builder/stream", s.guard(s.handleBuilderStream))

	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}

	return mux
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.options.Host, s.options.Port),
		Handler: s.Handler(),
	}

	s.logger.Info().
		Str("host", s.options.Host).
		Int("port", s.options.Port).
		Msg("Starting HTTP server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Stop gracefully stops the server, waiting for in-flight requests.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down HTTP server")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	s.rateLimiter.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
	}

	s.logger.Info().Msg("HTTP server stopped")
	return nil
}

// guard wraps billable handlers with shutdown, identity and rate checks.
type accountHandler func(w http.ResponseWriter, r *http.Request, accountID string)

func (s *Server) guard(next accountHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.shutdownMu.RLock()
		if s.isShuttingDown {
			s.shutdownMu.RUnlock()
			http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
			return
		}
		s.shutdownMu.RUnlock()

		s.inFlightReqs.Add(1)
		defer s.inFlightReqs.Done()

		accountID := r.Header.Get(accountHeader)
		if accountID == "" {
			writeError(w, llm.NewError(llm.KindAuthError, "missing account identity"))
			return
		}

		if !s.rateLimiter.CheckLimit(accountID) {
			retryAfter := s.rateLimiter.GetRetryAfter(accountID)
			s.logger.Warn().
				Str("account_id", accountID).
				Str("path", r.URL.Path).
				Int("retryAfter", retryAfter).
				Msg("Rate limit exceeded")
			writeError(w, &llm.Error{
				Kind:       llm.KindRateLimited,
				Message:    "too many requests",
				RetryAfter: time.Duration(retryAfter) * time.Second,
			})
			return
		}

		start := time.Now()
		next(w, r, accountID)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int64("duration", time.Since(start).Milliseconds()).
			Msg("Request completed")
	}
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"uptime":    time.Since(s.startTime).Seconds(),
		"timestamp": time.Now().UnixMilli(),
	})
}
