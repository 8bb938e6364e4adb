package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"lastmile/internal/buildinfo"
	"lastmile/internal/config"
	"lastmile/internal/dispatch"
	"lastmile/internal/metrics"
	"lastmile/internal/reconcile"
	"lastmile/internal/routing"
	"lastmile/internal/session"
	"lastmile/internal/store"
	"lastmile/internal/upstream"
)

// Server wires the engine components behind the interactive HTTP
// surface used by the route-building UI.
type Server struct {
	Store      store.Store
	Broker     EventBroker
	Resolver   routing.Resolver
	Optimizer  routing.Optimizer
	Reconciler *reconcile.Reconciler
	Finalizer  *dispatch.Finalizer
	Log        zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session.Session
}

// NewServer assembles a Server from config. Without DATABASE_URL the
// store is in-memory; without REDIS_URL events stay node-local;
// without provider URLs the mock resolver keeps local runs usable.
func NewServer(cfg config.Config, log zerolog.Logger) (*Server, error) {
	metrics.RegisterDefault()

	var st store.Store
	if cfg.DatabaseURL == "" {
		st = store.NewMemory()
	} else {
		pg, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(context.Background()); err != nil {
			return nil, err
		}
		st = pg
	}

	var broker EventBroker
	var counts upstream.CountCache = upstream.NewMemoryCounts()
	if cfg.RedisURL != "" {
		rb, err := NewRedisBroker(cfg.RedisURL, log)
		if err != nil {
			return nil, err
		}
		broker = rb
		rc, err := upstream.NewRedisCounts(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		counts = rc
	} else {
		broker = NewBroker()
	}

	var resolver routing.Resolver
	var optimizer routing.Optimizer
	if cfg.Routing.BaseURL != "" {
		resolver = routing.NewClient(cfg.Routing.Routing(), log)
	} else {
		log.Warn().Msg("no routing provider configured, using mock resolver")
		resolver = &routing.Mock{}
	}
	if cfg.Optimizer.BaseURL != "" {
		optimizer = routing.NewOptimizerClient(cfg.Optimizer.Routing(), log)
	} else {
		optimizer = &routing.Mock{}
	}

	var source upstream.StopSource
	if cfg.Upstream.BaseURL != "" {
		source = upstream.NewHTTPSource(cfg.Upstream.BaseURL, time.Duration(cfg.Upstream.TimeoutSeconds)*time.Second)
	}

	s := &Server{
		Store:     st,
		Broker:    broker,
		Resolver:  resolver,
		Optimizer: optimizer,
		Finalizer: nil,
		Log:       log,
		sessions:  map[string]*session.Session{},
	}
	s.Finalizer = dispatch.New(st, log, func(event string, data map[string]any) {
		if sid, ok := data["batchId"].(string); ok {
			broker.Publish("batch:"+sid, Event{Type: event, Data: data})
		}
	})
	if source != nil {
		s.Reconciler = reconcile.New(st, source, counts, log)
	}
	return s, nil
}

// Mux returns the route table for the server.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sessions", s.SessionsHandler)
	mux.HandleFunc("/v1/sessions/", s.SessionByIDHandler)
	mux.HandleFunc("/v1/routes", s.RoutesIndexHandler)
	mux.HandleFunc("/v1/routes/", s.RouteByIDHandler)
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	return mux
}

// HealthHandler reports liveness and build info.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "build": buildinfo.Info()})
}

func (s *Server) getSession(id string) (*session.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Server) putSession(sess *session.Session) {
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
}

func (s *Server) dropSession(id string) (*session.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	return sess, ok
}
