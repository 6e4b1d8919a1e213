package server

import (
	"net/http"
	"time"
)

type LibraryStatus struct {
	Root      string        `json:"root"`
	Videos    int           `json:"videos"`
	LastScan  time.Time     `json:"lastScan"`
	Roots     []LibraryRoot `json:"roots,omitempty"`
	LatestRun *ScanRun      `json:"latestRun,omitempty"`
}

func (s *Server) libraryStatus() (LibraryStatus, error) {
	status := LibraryStatus{
		Root:     s.lib.Root(),
		Videos:   len(s.lib.All()),
		LastScan: s.lib.LastScan(),
	}
	if s.store == nil {
		return status, nil
	}
	roots, err := s.store.ListRoots()
	if err != nil {
		return LibraryStatus{}, err
	}
	status.Roots = roots
	if id := s.lib.ScanRootID(); id != "" {
		run, ok, err := s.store.LatestScanRun(id)
		if err != nil {
			return LibraryStatus{}, err
		}
		if ok {
			status.LatestRun = &run
		}
	}
	return status, nil
}

func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	status, err := s.libraryStatus()
	if err != nil {
		s.logger.Error().Err(err).Msg("library status failed")
		writeError(w, http.StatusInternalServerError, "failed to load library status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if err := s.lib.Scan(); err != nil {
		s.logger.Warn().Err(err).Msg("requested scan failed")
		writeError(w, http.StatusInternalServerError, "scan failed")
		return
	}
	s.handleLibrary(w, r)
}
