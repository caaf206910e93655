// Package api is the REST and WebSocket surface. It is a thin
// collaborator: handlers validate input, call the scheduler, rules
// engine or event bus, and map errors to status codes. No domain logic
// lives here.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/grabby/grabbyd/internal/engine"
	"github.com/grabby/grabbyd/internal/event"
	"github.com/grabby/grabbyd/internal/log"
	"github.com/grabby/grabbyd/internal/queue"
	"github.com/grabby/grabbyd/internal/rules"
)

// EngineLister reports adapter availability for the engines endpoint.
type EngineLister interface {
	Engines() []engine.Descriptor
}

// RuleStore is the rules surface the API mutates.
type RuleStore interface {
	List() []rules.Rule
	Replace([]rules.Rule) error
	Statistics() rules.Stats
}

// Server wires the HTTP surface to its collaborators.
type Server struct {
	sched     *queue.Scheduler
	bus       *event.Bus
	engines   EngineLister
	rules     RuleStore
	rulesPath string
	rateLimit int
	logger    zerolog.Logger
}

// Config carries the server's collaborator set.
type Config struct {
	Scheduler *queue.Scheduler
	Bus       *event.Bus
	Engines   EngineLister
	Rules     RuleStore
	// RulesPath, when set, persists rule updates accepted over PUT.
	RulesPath string
	// RateLimit is requests per minute per client IP; zero disables.
	RateLimit int
}

func NewServer(cfg Config) *Server {
	return &Server{
		sched:     cfg.Scheduler,
		bus:       cfg.Bus,
		engines:   cfg.Engines,
		rules:     cfg.Rules,
		rulesPath: cfg.RulesPath,
		rateLimit: cfg.RateLimit,
		logger:    log.WithComponent("api"),
	}
}

// Router builds the chi mux with the full route table.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	if s.rateLimit > 0 {
		r.Use(httprate.LimitByIP(s.rateLimit, time.Minute))
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/queue", func(r chi.Router) {
			r.Get("/", s.handleQueueStatus)
			r.Post("/", s.handleQueueAdd)
			r.Post("/playlist", s.handlePlaylistAdd)
			r.Post("/purge", s.handlePurge)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleItemGet)
				r.Delete("/", s.handleItemCancel)
				r.Post("/pause", s.handleItemPause)
				r.Post("/resume", s.handleItemResume)
			})
		})
		r.Get("/events/history", s.handleEventHistory)
		r.Get("/engines", s.handleEngines)
		r.Route("/rules", func(r chi.Router) {
			r.Get("/", s.handleRulesGet)
			r.Put("/", s.handleRulesPut)
		})
	})
	r.Get("/ws", s.handleWS())
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/healthz", s.handleHealthz)
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
