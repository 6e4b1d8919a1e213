package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/treefix50/trainingtime/internal/tracker"
)

type createSessionRequest struct {
	ViewerID string `json:"viewerId"`
}

type eventsRequest struct {
	SurfaceEvent
	Events []SurfaceEvent `json:"events"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lib.Get(chi.URLParam(r, "videoID"))
	if !ok {
		writeError(w, http.StatusNotFound, "video not found")
		return
	}
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	viewer := req.ViewerID
	if viewer == "" {
		viewer = viewerFrom(r)
	}

	resume := 0
	if s.store != nil {
		p, found, err := s.store.GetProgress(v.ID, viewer)
		if err != nil {
			s.logger.Warn().Err(err).Str("video", v.ID).Msg("resume lookup failed")
		} else if found {
			resume = p.ResumeSeconds()
		}
	}

	source := ""
	if videoAvailable(v) {
		source = "/videos/" + v.ID
	}
	ws, err := newWatchSession(v, viewer, sessionOptions{
		Source:            source,
		ResumeSeconds:     resume,
		ResumeUnlocksSeek: s.opts.ResumeUnlocksSeek,
		Clock:             s.now,
	})
	if err != nil {
		if errors.Is(err, tracker.ErrNoSource) {
			writeError(w, http.StatusNotFound, "video unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to open session")
		return
	}
	s.sessions.Add(ws)
	sessionsOpened.Inc()
	s.logger.Debug().
		Str("session", ws.ID).
		Str("video", v.ID).
		Str("viewer", viewer).
		Int("resume", resume).
		Msg("watch session opened")

	ws.mu.Lock()
	view := ws.viewLocked()
	ws.mu.Unlock()
	writeJSON(w, http.StatusCreated, view)
}

// lockSession returns the session with its mutex held, or writes a 404.
func (s *Server) lockSession(w http.ResponseWriter, r *http.Request) (*WatchSession, bool) {
	ws, err := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	ws.mu.Lock()
	if ws.closed {
		ws.mu.Unlock()
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return ws, true
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.lockSession(w, r)
	if !ok {
		return
	}
	view := ws.viewLocked()
	ws.mu.Unlock()
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	var req eventsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	events := req.Events
	if len(events) == 0 {
		if req.Type == "" {
			writeError(w, http.StatusBadRequest, "missing event type")
			return
		}
		events = []SurfaceEvent{req.SurfaceEvent}
	}

	ws, ok := s.lockSession(w, r)
	if !ok {
		return
	}
	if err := ws.applyLocked(events); err != nil {
		ws.mu.Unlock()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.flushLocked(ws, ws.mustFlush)
	view := ws.viewLocked()
	ws.mu.Unlock()
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSessionToggle(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.lockSession(w, r)
	if !ok {
		return
	}
	if err := ws.tracker.TogglePlayback(); err != nil {
		s.logger.Debug().Err(err).Str("session", ws.ID).Msg("toggle failed")
	}
	s.flushLocked(ws, ws.mustFlush)
	view := ws.viewLocked()
	ws.mu.Unlock()
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	ws, err := s.sessions.Remove(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, s.finishSession(ws, "closed"))
}

// finishSession flushes and closes ws after it left the registry.
func (s *Server) finishSession(ws *WatchSession, reason string) SessionView {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if !ws.closed {
		s.flushLocked(ws, true)
		ws.closed = true
		s.persist.Forget(ws.ID)
		sessionsClosed.WithLabelValues(reason).Inc()
		s.logger.Debug().Str("session", ws.ID).Str("reason", reason).Msg("watch session closed")
	}
	return ws.viewLocked()
}

// flushLocked writes the session's progress when it changed. Unforced
// writes are throttled per session.
func (s *Server) flushLocked(ws *WatchSession, force bool) {
	if !ws.dirty && !ws.mustFlush {
		return
	}
	if !s.storeWritable() || ws.tracker.DurationSeconds() <= 0 {
		ws.dirty, ws.mustFlush = false, false
		return
	}
	if force {
		s.persist.Mark(ws.ID)
	} else if ok, _ := s.persist.Allow(ws.ID); !ok {
		return
	}

	err := s.store.UpsertProgress(ws.progressLocked(s.now()))
	if err == nil && !ws.completedAt.IsZero() && !ws.completionSaved {
		if err = s.store.MarkCompleted(ws.VideoID, ws.ViewerID, ws.completedAt); err == nil {
			ws.completionSaved = true
		}
	}
	progressWrites.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		// dirty stays set; the next event retries.
		s.logger.Warn().Err(err).Str("session", ws.ID).Msg("persist progress failed")
		return
	}
	ws.dirty, ws.mustFlush = false, false
}
