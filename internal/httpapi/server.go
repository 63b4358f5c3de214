package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hamed0406/poolwatch/internal/domain"
	apimw "github.com/hamed0406/poolwatch/internal/httpapi/middleware"
	"github.com/hamed0406/poolwatch/internal/scheduler"
)

// CycleRunner is the part of scheduler.Runner the API needs.
type CycleRunner interface {
	TryRun(ctx context.Context) (domain.CycleResult, error)
	Last() (domain.CycleResult, bool)
}

// Targets is the configured target list, served as-is.
type Targets struct {
	Webs     []domain.WebTarget     `json:"webs"`
	Stratums []domain.StratumTarget `json:"stratums"`
}

type Server struct {
	Logger   *zap.Logger
	Runner   CycleRunner
	Targets  Targets
	Gatherer prometheus.Gatherer
}

func NewServer(l *zap.Logger, r CycleRunner, t Targets, g prometheus.Gatherer) *Server {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return &Server{Logger: l, Runner: r, Targets: t, Gatherer: g}
}

// Router wires public read routes and the admin trigger. rpm <= 0 disables
// rate limiting; empty origins allows any.
func (s *Server) Router(keys apimw.Keys, origins []string, rpm, burst int) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	if len(origins) == 0 {
		r.Use(cors.AllowAll().Handler)
	} else {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(apimw.RateLimit(rpm, burst))

		r.Group(func(r chi.Router) {
			r.Use(apimw.RequireAny(keys))
			r.Get("/status", s.handleStatus)
			r.Get("/targets", s.handleTargets)
		})
		r.Group(func(r chi.Router) {
			r.Use(apimw.RequireAdmin(keys))
			r.Post("/cycles", s.handleRunCycle)
		})
	})

	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	res, ok := s.Runner.Last()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTargets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Targets)
}

// handleRunCycle runs a cycle synchronously. A client that disconnects
// cancels the cycle, which then skips remediation.
func (s *Server) handleRunCycle(w http.ResponseWriter, r *http.Request) {
	res, err := s.Runner.TryRun(r.Context())
	switch {
	case errors.Is(err, scheduler.ErrCycleInProgress):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	case err != nil:
		s.Logger.Error("manual_cycle_failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cycle failed"})
		return
	}

	s.Logger.Info("manual_cycle",
		zap.Bool("healthy", res.Healthy()),
		zap.Int("actions", len(res.Actions)),
		zap.Bool("aborted", res.Aborted),
	)
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
