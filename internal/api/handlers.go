package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/speechviz/voicemap/internal/log"
	"github.com/speechviz/voicemap/internal/projection"
	"github.com/speechviz/voicemap/internal/ratings"
	"github.com/speechviz/voicemap/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.healthManager.ServeHealth(w, r)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.healthManager.ServeReady(w, r)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	status := s.status
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, status)
}

// handleRefresh recomputes the projections. Only one refresh runs at a time;
// concurrent triggers get 409.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")

	if !s.refreshing.CompareAndSwap(false, true) {
		logger.Warn().Str("event", "refresh.busy").Msg("refresh already in progress")
		writeConflict(w, "refresh already in progress")
		return
	}
	defer s.refreshing.Store(false)

	s.mu.RLock()
	cfg := projection.Config{
		DataDir:     s.cfg.DataDir,
		RatingsPath: s.cfg.RatingsPath,
		Dimensions:  s.cfg.Dimensions,
		MaxIter:     s.cfg.MDSMaxIter,
		Eps:         s.cfg.MDSEps,
	}
	s.mu.RUnlock()

	var rec projection.Recorder
	if s.runs != nil {
		rec = s.runs
	}

	doc, status, err := s.refreshFn(r.Context(), cfg, rec)
	if err != nil {
		logger.Error().Err(err).Str("event", "refresh.failed").Msg("refresh failed")
		s.mu.Lock()
		s.status.Error = err.Error()
		s.mu.Unlock()
		writeError(w, err)
		return
	}

	s.ApplyStatus(doc, status)
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleProjections(w http.ResponseWriter, r *http.Request) {
	doc := s.document()
	if doc == nil {
		writeServiceUnavailable(w, "no projections computed yet")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleProjectionGroup(w http.ResponseWriter, r *http.Request) {
	doc := s.document()
	if doc == nil {
		writeServiceUnavailable(w, "no projections computed yet")
		return
	}

	group, err := ratings.ParseGroup(chi.URLParam(r, "group"))
	if err != nil {
		writeNotFound(w)
		return
	}

	gp := doc.Group(group)
	if gp == nil {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, gp)
}

// pointResponse augments a point with its playback URL.
type pointResponse struct {
	projection.Point
	AudioURL string `json:"audio_url,omitempty"`
}

func (s *Server) handlePoint(w http.ResponseWriter, r *http.Request) {
	doc := s.document()
	if doc == nil {
		writeServiceUnavailable(w, "no projections computed yet")
		return
	}

	p := doc.Point(chi.URLParam(r, "label"))
	if p == nil {
		writeNotFound(w)
		return
	}

	resp := pointResponse{Point: *p}
	if p.Audio != "" {
		resp.AudioURL = "/audio/" + p.Audio
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeServiceUnavailable(w, "run history disabled")
		return
	}

	runs, err := s.runs.ListRuns(r.Context(), 20)
	if err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Msg("failed to list runs")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if runs == nil {
		runs = []store.Run{} // keep the JSON an array, not null
	}
	writeJSON(w, http.StatusOK, runs)
}
