package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"lastmile/internal/model"
	"lastmile/internal/session"
	"lastmile/internal/store"
)

type sessionView struct {
	ID       string               `json:"id"`
	BatchID  string               `json:"batchId"`
	Origin   model.GeoPoint       `json:"origin"`
	Segments []model.RouteSegment `json:"segments"`
	Pool     []model.Stop         `json:"pool"`
}

func viewOf(sess *session.Session) sessionView {
	return sessionView{
		ID:       sess.ID,
		BatchID:  sess.BatchID,
		Origin:   sess.Origin,
		Segments: sess.Segments(),
		Pool:     sess.Pool(),
	}
}

// SessionsHandler handles POST /v1/sessions: partition the batch's
// stops and start resolving every segment concurrently.
func (s *Server) SessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		BatchID  string         `json:"batchId"`
		Origin   model.GeoPoint `json:"origin"`
		Stops    []model.Stop   `json:"stops"`
		Segments int            `json:"segments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if req.BatchID == "" || len(req.Stops) == 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid session request", "batchId and stops are required", r.URL.Path)
		return
	}
	if req.Origin.Lat == 0 && req.Origin.Lng == 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid session request", "origin coordinates are required", r.URL.Path)
		return
	}

	var sess *session.Session
	sess, err := session.New(session.Config{
		BatchID:   req.BatchID,
		Origin:    req.Origin,
		Stops:     req.Stops,
		Segments:  req.Segments,
		Resolver:  s.Resolver,
		Optimizer: s.Optimizer,
		Logger:    s.Log,
		Events: func(e session.Event) {
			s.Broker.Publish(sess.ID, Event{Type: e.Type, Data: e.Data})
		},
	})
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Session creation failed", err.Error(), r.URL.Path)
		return
	}
	s.putSession(sess)
	sess.ResolveAll()
	writeJSON(w, http.StatusCreated, viewOf(sess))
}

// SessionByIDHandler dispatches /v1/sessions/{id} and its actions:
// reorder, move, optimize, assign, unassign, reconcile, commit, events.
func (s *Server) SessionByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}
	sess, ok := s.getSession(id)
	if !ok {
		writeProblem(w, http.StatusNotFound, "Session not found", id, r.URL.Path)
		return
	}

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, viewOf(sess))
		case http.MethodDelete:
			if dropped, ok := s.dropSession(id); ok {
				dropped.Close()
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case "reorder":
		s.handleReorder(w, r, sess)
	case "move":
		s.handleMove(w, r, sess)
	case "optimize":
		s.handleOptimize(w, r, sess)
	case "assign", "unassign":
		s.handleAssignment(w, r, sess, action)
	case "reconcile":
		s.handleReconcile(w, r, sess)
	case "commit":
		s.handleCommit(w, r, sess)
	case "events":
		s.StreamHandler(w, r, sess.ID)
	default:
		writeProblem(w, http.StatusNotFound, "Unknown action", action, r.URL.Path)
	}
}

func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Segment string `json:"segment"`
		From    int    `json:"from"`
		To      int    `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := sess.Reorder(req.Segment, req.From, req.To); err != nil {
		writeProblem(w, http.StatusUnprocessableEntity, "Reorder failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		FromSegment string `json:"fromSegment"`
		ToSegment   string `json:"toSegment"`
		From        int    `json:"from"`
		To          int    `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := sess.MoveStop(req.FromSegment, req.ToSegment, req.From, req.To); err != nil {
		if errors.Is(err, model.ErrCrossSegmentMove) {
			writeProblem(w, http.StatusUnprocessableEntity, "Cross-segment move unsupported", err.Error(), r.URL.Path)
			return
		}
		writeProblem(w, http.StatusUnprocessableEntity, "Move failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Segment string `json:"segment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := sess.OptimizeOrder(req.Segment); err != nil {
		// The order is unchanged; the caller may retry later.
		writeProblem(w, http.StatusBadGateway, "Optimization failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

func (s *Server) handleAssignment(w http.ResponseWriter, r *http.Request, sess *session.Session, action string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Segment string `json:"segment"`
		StopID  string `json:"stopId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	var err error
	if action == "assign" {
		err = sess.Assign(req.Segment, req.StopID)
	} else {
		err = sess.Unassign(req.Segment, req.StopID)
	}
	if err != nil {
		writeProblem(w, http.StatusUnprocessableEntity, "Assignment failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.Reconciler == nil {
		writeProblem(w, http.StatusServiceUnavailable, "Reconciliation unavailable", "no upstream stop source configured", r.URL.Path)
		return
	}
	result, err := s.Reconciler.Reconcile(r.Context(), sess.BatchID)
	if err != nil {
		writeProblem(w, http.StatusBadGateway, "Reconciliation failed", err.Error(), r.URL.Path)
		return
	}
	sess.ReplacePool(result.Unassigned)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Assignments map[string]model.DriverInfo `json:"assignments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	routes, err := s.Finalizer.Commit(r.Context(), sess.BatchID, sess.Segments(), req.Assignments)
	if err != nil {
		var md *model.MissingDriverError
		if errors.As(err, &md) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":           "missing driver assignment",
				"missingSegments": md.SegmentKeys,
			})
			return
		}
		var pc *model.PartialCommitError
		if errors.As(err, &pc) {
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":     pc.Error(),
				"committed": routes,
				"succeeded": pc.Succeeded,
				"total":     pc.Total,
			})
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Commit failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"routes": routes})
}

// RoutesIndexHandler handles GET /v1/routes?batchId=...
func (s *Server) RoutesIndexHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	batchID := r.URL.Query().Get("batchId")
	if batchID == "" {
		writeProblem(w, http.StatusBadRequest, "Missing batchId", "batchId query parameter is required", r.URL.Path)
		return
	}
	routes, err := s.Store.ListRoutesByBatch(r.Context(), batchID)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List routes failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": routes})
}

// RouteByIDHandler handles GET /v1/routes/{id}.
func (s *Server) RouteByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/routes/")
	route, err := s.Store.GetRoute(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Route not found", id, r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Get route failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, route)
}
