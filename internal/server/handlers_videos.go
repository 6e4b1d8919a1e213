package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Categories)
}

// categoryParam resolves the category query parameter; "" means all.
func categoryParam(r *http.Request) (string, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("category"))
	if raw == "" {
		return "", true
	}
	c, ok := NormalizeCategory(raw)
	if !ok {
		return "", false
	}
	if c == CategoryAll {
		return "", true
	}
	return c, true
}

func (s *Server) handleListVideos(w http.ResponseWriter, r *http.Request) {
	category, ok := categoryParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown category")
		return
	}
	videos := s.lib.ByCategory(category)

	progress := map[string]Progress{}
	if s.store != nil {
		rows, err := s.store.ListProgress(viewerFrom(r))
		if err != nil {
			s.logger.Error().Err(err).Msg("list progress failed")
			writeError(w, http.StatusInternalServerError, "failed to load progress")
			return
		}
		for _, p := range rows {
			progress[p.VideoID] = p
		}
	}

	out := make([]VideoWithProgress, 0, len(videos))
	for _, v := range videos {
		item := VideoWithProgress{Video: v}
		if p, ok := progress[v.ID]; ok {
			item.Progress = &p
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lib.Get(chi.URLParam(r, "videoID"))
	if !ok {
		writeError(w, http.StatusNotFound, "video not found")
		return
	}
	item := VideoWithProgress{Video: v}
	if s.store != nil {
		p, found, err := s.store.GetProgress(v.ID, viewerFrom(r))
		if err != nil {
			s.logger.Error().Err(err).Str("video", v.ID).Msg("get progress failed")
			writeError(w, http.StatusInternalServerError, "failed to load progress")
			return
		}
		if found {
			item.Progress = p
		}
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleResetProgress(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lib.Get(chi.URLParam(r, "videoID"))
	if !ok {
		writeError(w, http.StatusNotFound, "video not found")
		return
	}
	if !s.storeWritable() {
		writeError(w, http.StatusConflict, "progress storage is read-only")
		return
	}
	if err := s.store.DeleteProgress(v.ID, viewerFrom(r)); err != nil {
		s.logger.Error().Err(err).Str("video", v.ID).Msg("reset progress failed")
		writeError(w, http.StatusInternalServerError, "failed to reset progress")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleViewerProgress(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "progress storage unavailable")
		return
	}
	rows, err := s.store.ListProgress(chi.URLParam(r, "viewerID"))
	if err != nil {
		s.logger.Error().Err(err).Msg("list progress failed")
		writeError(w, http.StatusInternalServerError, "failed to load progress")
		return
	}
	if rows == nil {
		rows = []Progress{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "progress storage unavailable")
		return
	}
	category, ok := categoryParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown category")
		return
	}
	stats, err := s.store.Stats(viewerFrom(r), category)
	if err != nil {
		s.logger.Error().Err(err).Msg("stats failed")
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
