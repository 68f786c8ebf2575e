// Package api exposes the item store and process probes over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"itemsvc/internal/metrics"
	"itemsvc/internal/store"
)

const defaultReadyTimeout = 2 * time.Second

// Options wires the router to its collaborators.
type Options struct {
	Store   store.Store
	Metrics *metrics.Registry // optional
	Logger  zerolog.Logger

	Service     string
	Version     string
	Environment string

	// Production hides internal error detail and stack traces from clients.
	Production bool

	// APIKeys enables bearer authentication on /api when non-empty.
	APIKeys map[string]struct{}

	// RateLimit is the sustained requests per second allowed per client on
	// /api; zero disables limiting.
	RateLimit float64
	RateBurst int

	ReadyTimeout time.Duration
}

// Handler serves every endpoint of the service.
type Handler struct {
	store   store.Store
	metrics *metrics.Registry
	logger  zerolog.Logger
	opts    Options
}

// New builds the HTTP handler. Every request, matched or not, passes through
// request accounting before anything else. A nil Metrics gets a private
// registry.
func New(opts Options) http.Handler {
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = defaultReadyTimeout
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(opts.Service)
	}
	h := &Handler{
		store:   opts.Store,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		opts:    opts,
	}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(h.routeNotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(h.methodNotAllowed)

	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", h.handleReady).Methods(http.MethodGet)
	r.HandleFunc("/metrics", h.handleMetrics).Methods(http.MethodGet)
	r.Handle("/metrics/prometheus", opts.Metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.NotFoundHandler = r.NotFoundHandler
	api.MethodNotAllowedHandler = r.MethodNotAllowedHandler
	if len(opts.APIKeys) > 0 {
		api.Use(authMiddleware(opts.APIKeys))
	}
	if opts.RateLimit > 0 {
		api.Use(newRateLimiter(opts.RateLimit, opts.RateBurst, opts.Logger).Handler)
	}

	api.HandleFunc("/items", h.handleListItems).Methods(http.MethodGet)
	api.HandleFunc("/items", h.handleCreateItem).Methods(http.MethodPost)
	api.HandleFunc("/items/bulk", h.handleBulkCreate).Methods(http.MethodPost)
	api.HandleFunc("/items/{id}", h.handleGetItem).Methods(http.MethodGet)
	api.HandleFunc("/items/{id}", h.handleUpdateItem).Methods(http.MethodPut)
	api.HandleFunc("/items/{id}", h.handleDeleteItem).Methods(http.MethodDelete)

	return accountingMiddleware(opts.Metrics, opts.Logger)(recoverMiddleware(opts.Logger, opts.Production)(r))
}

func (h *Handler) routeNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResponse{
		Error: "Route not found",
		Path:  r.URL.Path,
	})
}

func (h *Handler) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{
		Error: "Method not allowed",
		Path:  r.URL.Path,
	})
}
