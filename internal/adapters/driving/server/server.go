// Package server is the relay's HTTP surface: the REST document API, the
// per-document websocket endpoint and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/custodia-labs/formsync/internal/core/domain"
	"github.com/custodia-labs/formsync/internal/logger"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Options tunes the server.
type Options struct {
	// RateLimit is the sustained inbound websocket messages per second per
	// connection. Bursts of twice the rate are allowed.
	RateLimit float64

	// AllowedOrigins restricts browser websocket origins. Empty allows all.
	AllowedOrigins []string
}

// Server serves the relay.
type Server struct {
	ports    *Ports
	opts     Options
	router   *mux.Router
	upgrader websocket.Upgrader
	metrics  *metrics
}

// NewServer creates a relay server.
func NewServer(ports *Ports, opts Options) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = domain.DefaultAppSettings().Server.RateLimit
	}

	s := &Server{
		ports:   ports,
		opts:    opts,
		router:  mux.NewRouter(),
		metrics: newMetrics(ports.Stats),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})).
		Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.authenticate)
	api.HandleFunc("/documents", s.handleList).Methods(http.MethodGet)
	api.HandleFunc("/documents", s.handleCreate).Methods(http.MethodPost)
	api.HandleFunc("/documents/{id}", s.handleGet).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}", s.handlePatch).Methods(http.MethodPatch)
	api.HandleFunc("/documents/{id}/members/{user}", s.handleGrant).Methods(http.MethodPut)

	ws := s.router.PathPrefix("/ws").Subrouter()
	ws.Use(s.authenticate)
	ws.HandleFunc("/documents/{id}", s.handleSocket).Methods(http.MethodGet)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          logger.StdLog(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		httpServer.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	logger.Info("relay listening on %s", addr)
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}
	return false
}

type identityKey struct{}

// authenticate resolves the bearer token into an identity on the context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := s.ports.Tokens.Verify(bearerToken(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey{}, *identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken reads the Authorization header, falling back to the
// access_token query parameter for websocket clients that cannot set headers.
func bearerToken(r *http.Request) string {
	const prefix = "bearer "
	if h := r.Header.Get("Authorization"); len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return r.URL.Query().Get("access_token")
}

func identityFrom(ctx context.Context) domain.Identity {
	id, _ := ctx.Value(identityKey{}).(domain.Identity)
	return id
}
