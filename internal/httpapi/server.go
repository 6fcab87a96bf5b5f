// Package httpapi is the control surface of the monitor: ad-hoc probes,
// target listing, loop (re)scheduling, downtime history and a live
// snapshot stream.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/NordCoder/uptimewatch/internal/broadcast"
	"github.com/NordCoder/uptimewatch/internal/domain/target"
	"github.com/NordCoder/uptimewatch/internal/obs"
	"github.com/NordCoder/uptimewatch/internal/probe"
)

type Monitor interface {
	ProbeOnce(ctx context.Context, t target.Target) probe.Outcome
	Reschedule(ctx context.Context, id string) (bool, error)
	Remove(id string) bool
	Active() []string
}

type Subscriber interface {
	Subscribe(buf int) (<-chan broadcast.Event, func())
}

type Server struct {
	Logger      *zap.Logger
	Monitor     Monitor
	Downtime    target.DowntimeLister
	Targets     target.Catalog
	Hub         Subscriber
	Health      func(context.Context) error
	CORSOrigins []string

	// Heartbeat is the idle interval between SSE keep-alive comments.
	Heartbeat time.Duration
	now       func() time.Time
}

func NewServer(l *zap.Logger, m Monitor, dl target.DowntimeLister, hub Subscriber) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{
		Logger:    l.With(zap.String("component", "httpapi")),
		Monitor:   m,
		Downtime:  dl,
		Hub:       hub,
		Heartbeat: 15 * time.Second,
		now:       time.Now,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	origins := s.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", obs.HealthHandler(s.Health))

	r.Group(func(r chi.Router) {
		r.Use(otelhttp.NewMiddleware("uptimewatch.api"))
		r.Post("/v1/probe", s.handleProbe)
		r.Get("/v1/targets", s.handleListTargets)
		r.Delete("/v1/targets/{id}", s.handleDeleteTarget)
		r.Put("/v1/targets/{id}/schedule", s.handleSchedule)
		r.Delete("/v1/targets/{id}/schedule", s.handleUnschedule)
		r.Get("/v1/targets/{id}/downtime", s.handleDowntime)
		r.Get("/v1/loops", s.handleLoops)
	})

	// long-lived, kept out of request tracing
	r.Get("/v1/stream", s.handleStream)

	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}
