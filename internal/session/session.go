// Package session holds the mutable state of one interactive
// route-organization session: the segments being built and the pool of
// unassigned stops. All state is owned by the Session value; nothing
// here touches persisted routes.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lastmile/internal/model"
	"lastmile/internal/partition"
	"lastmile/internal/routing"
)

// Event is a session-scoped notification for live UIs.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// EventFunc receives session events. May be nil.
type EventFunc func(Event)

// Config assembles a new session.
type Config struct {
	BatchID     string
	Origin      model.GeoPoint
	Stops       []model.Stop
	Segments    int // desired number of sub-routes (k)
	Resolver    routing.Resolver
	Optimizer   routing.Optimizer
	Partitioner *partition.Partitioner
	Logger      zerolog.Logger
	Events      EventFunc
}

// Session owns segments and the unassigned pool for one batch. A stop
// lives in exactly one segment or the pool, never both; membership is
// keyed by id or order number.
type Session struct {
	ID      string
	BatchID string
	Origin  model.GeoPoint

	mu       sync.Mutex
	segments []*segmentState
	byKey    map[string]*segmentState
	pool     []model.Stop

	resolver  routing.Resolver
	optimizer routing.Optimizer
	log       zerolog.Logger
	emit      EventFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type segmentState struct {
	seg model.RouteSegment
	// gen increments on every order change; a resolve result is only
	// applied when its generation still matches, so responses for
	// superseded orders are discarded.
	gen   uint64
	stale bool
}

var segmentColors = []string{"#e6194b", "#3cb44b", "#4363d8", "#f58231", "#911eb4", "#46f0f0", "#f032e6", "#bcf60c"}

// New partitions the input stops and returns a ready session. Stops
// without coordinates are not clustered; they start in the pool.
// Duplicate stops (same id or order number) collapse to their first
// occurrence, which is the most upstream-authoritative copy.
func New(cfg Config) (*Session, error) {
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("session: resolver is required")
	}
	if cfg.Partitioner == nil {
		cfg.Partitioner = partition.New()
	}
	if cfg.Segments < 1 {
		cfg.Segments = 1
	}

	seen := model.NewKeySet()
	var valid, invalid []model.Stop
	for _, s := range cfg.Stops {
		if seen.Has(s) {
			cfg.Logger.Warn().Str("stop", s.ID).Str("order", s.OrderNumber).
				Msg("duplicate stop in session input, keeping first copy")
			continue
		}
		seen.Add(s)
		if s.HasCoordinates() {
			valid = append(valid, s)
		} else {
			invalid = append(invalid, s)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		ID:        "ses_" + uuid.NewString(),
		BatchID:   cfg.BatchID,
		Origin:    cfg.Origin,
		byKey:     map[string]*segmentState{},
		pool:      invalid,
		resolver:  cfg.Resolver,
		optimizer: cfg.Optimizer,
		log:       cfg.Logger.With().Str("component", "session").Str("batch", cfg.BatchID).Logger(),
		emit:      cfg.Events,
		ctx:       ctx,
		cancel:    cancel,
	}

	groups := cfg.Partitioner.Partition(cfg.Origin, valid, cfg.Segments)
	for i, g := range groups {
		st := &segmentState{
			seg: model.RouteSegment{
				Key:      fmt.Sprintf("seg_%02d", i+1),
				Name:     fmt.Sprintf("Route %d", i+1),
				OriginID: cfg.Origin.ID,
				Stops:    g,
				Color:    segmentColors[i%len(segmentColors)],
				Visible:  true,
			},
			stale: true,
		}
		sess.segments = append(sess.segments, st)
		sess.byKey[st.seg.Key] = st
	}
	return sess, nil
}

// Segments returns a snapshot of all segments in order.
func (s *Session) Segments() []model.RouteSegment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.RouteSegment, len(s.segments))
	for i, st := range s.segments {
		out[i] = st.snapshot()
	}
	return out
}

// Segment returns one segment by key.
func (s *Session) Segment(key string) (model.RouteSegment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.byKey[key]
	if !ok {
		return model.RouteSegment{}, false
	}
	return st.snapshot(), true
}

// Pool returns a snapshot of the unassigned pool.
func (s *Session) Pool() []model.Stop {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Stop(nil), s.pool...)
}

// ReplacePool swaps the unassigned pool, dropping any stop already
// placed on a segment so the exclusivity invariant holds. Used after a
// reconcile pass.
func (s *Session) ReplacePool(stops []model.Stop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	placed := model.NewKeySet()
	for _, st := range s.segments {
		for _, stop := range st.seg.Stops {
			placed.Add(stop)
		}
	}
	pool := make([]model.Stop, 0, len(stops))
	seen := model.NewKeySet()
	for _, stop := range stops {
		if placed.Has(stop) || seen.Has(stop) {
			continue
		}
		seen.Add(stop)
		pool = append(pool, stop)
	}
	s.pool = pool
	s.notify(Event{Type: "pool.updated", Data: map[string]any{"size": len(pool)}})
}

// Close cancels in-flight provider calls and waits for them to drain.
func (s *Session) Close() {
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until all currently running resolves finish.
func (s *Session) Wait() {
	s.wg.Wait()
}

func (s *Session) notify(e Event) {
	if s.emit != nil {
		s.emit(e)
	}
}

// snapshot copies the segment for callers outside the lock, stamping
// the staleness of its metrics into the view.
func (st *segmentState) snapshot() model.RouteSegment {
	out := st.seg
	out.Stops = append([]model.Stop(nil), st.seg.Stops...)
	out.Polyline = append([]byte(nil), st.seg.Polyline...)
	out.MetricsStale = st.stale
	return out
}
