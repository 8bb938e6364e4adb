package session

import (
	"fmt"

	"lastmile/internal/metrics"
	"lastmile/internal/model"
)

// ResolveAll kicks off metric resolution for every segment. Segments
// are independent, so their provider calls run concurrently.
func (s *Session) ResolveAll() {
	s.mu.Lock()
	for _, st := range s.segments {
		s.resolveLocked(st)
	}
	s.mu.Unlock()
}

// Reorder moves a stop within a segment from one index to another. The
// in-memory order changes immediately; metrics stay at their last
// known-good values and are marked stale until the provider answers
// for the new order.
func (s *Session) Reorder(segmentKey string, from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.byKey[segmentKey]
	if !ok {
		return fmt.Errorf("unknown segment %q", segmentKey)
	}
	n := len(st.seg.Stops)
	if from < 0 || from >= n || to < 0 || to >= n {
		return fmt.Errorf("reorder %q: index out of range (%d -> %d of %d)", segmentKey, from, to, n)
	}
	if from == to {
		return nil
	}
	stops := st.seg.Stops
	moved := stops[from]
	stops = append(stops[:from], stops[from+1:]...)
	stops = append(stops[:to], append([]model.Stop{moved}, stops[to:]...)...)
	st.seg.Stops = stops

	s.notify(Event{Type: "segment.reordered", Data: map[string]any{"segment": segmentKey}})
	s.resolveLocked(st)
	return nil
}

// MoveStop relocates a stop between positions. Moves across two
// segments are not supported and fail with ErrCrossSegmentMove so the
// caller can tell this apart from a validation problem.
func (s *Session) MoveStop(fromSegment, toSegment string, from, to int) error {
	if fromSegment != toSegment {
		return model.ErrCrossSegmentMove
	}
	return s.Reorder(fromSegment, from, to)
}

// OptimizeOrder asks the external sequence optimizer for a better
// visiting order and applies it. Stops the optimizer omits keep their
// current slots; a stop is never dropped because the optimizer forgot
// it.
func (s *Session) OptimizeOrder(segmentKey string) error {
	if s.optimizer == nil {
		return fmt.Errorf("no sequence optimizer configured")
	}
	s.mu.Lock()
	st, ok := s.byKey[segmentKey]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown segment %q", segmentKey)
	}
	snapshot := append([]model.Stop(nil), st.seg.Stops...)
	s.mu.Unlock()

	if len(snapshot) < 2 {
		return nil
	}
	order, err := s.optimizer.OptimizeOrder(s.ctx, s.Origin, snapshot)
	if err != nil {
		s.log.Warn().Err(err).Str("segment", segmentKey).Msg("sequence optimization failed, keeping current order")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st.seg.Stops = applyPermutation(st.seg.Stops, order)
	s.notify(Event{Type: "segment.optimized", Data: map[string]any{"segment": segmentKey}})
	s.resolveLocked(st)
	return nil
}

// Assign moves a stop from the pool onto the end of a segment.
func (s *Session) Assign(segmentKey, stopID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.byKey[segmentKey]
	if !ok {
		return fmt.Errorf("unknown segment %q", segmentKey)
	}
	idx := -1
	for i, p := range s.pool {
		if p.ID == stopID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("stop %q is not in the unassigned pool", stopID)
	}
	stop := s.pool[idx]
	if !stop.HasCoordinates() {
		return &model.MalformedStopError{StopID: stopID, Reason: "missing coordinates"}
	}
	s.pool = append(s.pool[:idx], s.pool[idx+1:]...)
	st.seg.Stops = append(st.seg.Stops, stop)
	s.notify(Event{Type: "segment.stop_assigned", Data: map[string]any{"segment": segmentKey, "stop": stopID}})
	s.resolveLocked(st)
	return nil
}

// Unassign removes a stop from a segment back into the pool.
func (s *Session) Unassign(segmentKey, stopID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.byKey[segmentKey]
	if !ok {
		return fmt.Errorf("unknown segment %q", segmentKey)
	}
	idx := -1
	for i, stop := range st.seg.Stops {
		if stop.ID == stopID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("stop %q is not on segment %q", stopID, segmentKey)
	}
	stop := st.seg.Stops[idx]
	st.seg.Stops = append(st.seg.Stops[:idx], st.seg.Stops[idx+1:]...)
	s.pool = append(s.pool, stop)
	s.notify(Event{Type: "segment.stop_unassigned", Data: map[string]any{"segment": segmentKey, "stop": stopID}})
	s.resolveLocked(st)
	return nil
}

// resolveLocked bumps the segment's order generation and starts an
// asynchronous resolve for the current order. Callers hold s.mu.
func (s *Session) resolveLocked(st *segmentState) {
	st.gen++
	st.stale = true
	gen := st.gen
	key := st.seg.Key
	order := append([]model.Stop(nil), st.seg.Stops...)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		m, err := s.resolver.Resolve(s.ctx, s.Origin, order)

		s.mu.Lock()
		defer s.mu.Unlock()
		if st.gen != gen {
			// A newer order superseded this request; applying the
			// response would resurrect a stale sequence.
			metrics.ResolveCalls.WithLabelValues("stale").Inc()
			return
		}
		if err != nil {
			// Keep last known-good metrics; the order change stands.
			s.log.Warn().Err(err).Str("segment", key).Msg("resolve failed, keeping previous metrics")
			s.notify(Event{Type: "segment.resolve_failed", Data: map[string]any{"segment": key, "error": err.Error()}})
			return
		}
		st.seg.DistanceMeters = m.DistanceMeters
		st.seg.DurationSeconds = m.DurationSeconds
		st.seg.Polyline = m.Polyline
		st.stale = false
		s.notify(Event{Type: "segment.updated", Data: map[string]any{
			"segment":         key,
			"distanceMeters":  m.DistanceMeters,
			"durationSeconds": m.DurationSeconds,
		}})
	}()
}

// applyPermutation reorders stops so that the ones named in order are
// visited in that order, each taking one of the slots those stops
// already occupied. Unnamed stops keep their exact positions.
func applyPermutation(stops []model.Stop, order []string) []model.Stop {
	rank := make(map[string]int, len(order))
	for i, id := range order {
		rank[id] = i
	}
	var slots []int
	var included []model.Stop
	for i, s := range stops {
		if _, ok := rank[s.ID]; ok {
			slots = append(slots, i)
			included = append(included, s)
		}
	}
	// Stable sort of the included stops by optimizer rank.
	for i := 1; i < len(included); i++ {
		for j := i; j > 0 && rank[included[j].ID] < rank[included[j-1].ID]; j-- {
			included[j], included[j-1] = included[j-1], included[j]
		}
	}
	out := append([]model.Stop(nil), stops...)
	for i, slot := range slots {
		out[slot] = included[i]
	}
	return out
}
