// Package api serves the REST interface: filing feed and detail, community
// interactions, watchlists, and operator endpoints.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-monitor/internal/resilience"
	"github.com/sells-group/edgar-monitor/internal/scheduler"
	"github.com/sells-group/edgar-monitor/internal/store"
)

// SchedulerControl is the slice of the scheduler the API needs.
// *scheduler.Scheduler satisfies this.
type SchedulerControl interface {
	TriggerNow() bool
	Stats() scheduler.Counters
}

// Options configures the HTTP server.
type Options struct {
	JWTSecret      string
	FreeDailyViews int
	CORSOrigins    []string

	// Breakers, when set, exposes circuit breaker states on /stats.
	Breakers *resilience.ServiceBreakers
}

// Server holds the handler dependencies.
type Server struct {
	store store.Store
	sched SchedulerControl
	opts  Options
}

func NewServer(st store.Store, sched SchedulerControl, opts Options) *Server {
	if opts.FreeDailyViews <= 0 {
		opts.FreeDailyViews = 3
	}
	return &Server{store: st, sched: sched, opts: opts}
}

// Router builds the chi routing tree. Everything under /api/v1 requires a
// bearer token; /health does not.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/stats", s.handleStats)
		r.Get("/filings", s.handleListFilings)
		r.Get("/filings/{accession}", s.handleGetFiling)
		r.Post("/filings/{accession}/vote", s.handleVote)
		r.Get("/filings/{accession}/comments", s.handleListComments)
		r.Post("/filings/{accession}/comments", s.handleAddComment)
		r.Get("/watchlist", s.handleListWatchlist)
		r.Post("/watchlist", s.handleAddWatch)
		r.Delete("/watchlist/{ticker}", s.handleRemoveWatch)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/scan", s.handleTriggerScan)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("encode response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requestLogger logs each request at debug with method, path and duration.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)))
	})
}
