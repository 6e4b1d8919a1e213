package server

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

type progressKey struct{ video, viewer string }

// memStore is an in-memory VideoStore for handler tests.
type memStore struct {
	mu        sync.Mutex
	readOnly  bool
	roots     []LibraryRoot
	videos    map[string]Video
	progress  map[progressKey]Progress
	runs      []ScanRun
	upserts   int
	completed int
}

func newMemStore() *memStore {
	return &memStore{
		videos:   map[string]Video{},
		progress: map[progressKey]Progress{},
	}
}

func (m *memStore) ReadOnly() bool { return m.readOnly }

func (m *memStore) AddRoot(path string) (LibraryRoot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roots {
		if r.Path == path {
			return r, nil
		}
	}
	root := LibraryRoot{ID: "root-1", Path: path, CreatedAt: time.Now()}
	m.roots = append(m.roots, root)
	return root, nil
}

func (m *memStore) ListRoots() ([]LibraryRoot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LibraryRoot(nil), m.roots...), nil
}

func (m *memStore) StartScanRun(rootID string, startedAt time.Time) (ScanRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run := ScanRun{ID: fmt.Sprintf("run-%d", len(m.runs)+1), RootID: rootID, StartedAt: startedAt, Status: ScanStatusRunning}
	m.runs = append(m.runs, run)
	return run, nil
}

func (m *memStore) FinishScanRun(id string, finishedAt time.Time) error {
	return m.endRun(id, finishedAt, ScanStatusFinished, "")
}

func (m *memStore) FailScanRun(id string, finishedAt time.Time, errMsg string) error {
	return m.endRun(id, finishedAt, ScanStatusFailed, errMsg)
}

func (m *memStore) endRun(id string, finishedAt time.Time, status, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.runs {
		if m.runs[i].ID == id {
			m.runs[i].FinishedAt = finishedAt
			m.runs[i].Status = status
			m.runs[i].Error = errMsg
		}
	}
	return nil
}

func (m *memStore) LatestScanRun(rootID string) (ScanRun, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.runs) - 1; i >= 0; i-- {
		if m.runs[i].RootID == rootID {
			return m.runs[i], true, nil
		}
	}
	return ScanRun{}, false, nil
}

func (m *memStore) SaveVideos(videos []Video) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range videos {
		m.videos[v.ID] = v
	}
	return nil
}

func (m *memStore) DeleteVideos(ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.videos, id)
	}
	return nil
}

func (m *memStore) ListVideos() ([]Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Video, 0, len(m.videos))
	for _, v := range m.videos {
		out = append(out, v)
	}
	sortVideos(out)
	return out, nil
}

func (m *memStore) GetVideo(id string) (Video, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.videos[id]
	return v, ok, nil
}

func (m *memStore) UpsertProgress(p Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := progressKey{p.VideoID, p.ViewerID}
	if prev, ok := m.progress[key]; ok {
		p.CompletedAt = prev.CompletedAt
		p.PercentWatched = max(p.PercentWatched, prev.PercentWatched)
	}
	m.progress[key] = p
	m.upserts++
	return nil
}

func (m *memStore) MarkCompleted(videoID, viewerID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := progressKey{videoID, viewerID}
	p := m.progress[key]
	p.VideoID, p.ViewerID = videoID, viewerID
	if p.CompletedAt == nil {
		ts := at.Unix()
		p.CompletedAt = &ts
	}
	m.progress[key] = p
	m.completed++
	return nil
}

func (m *memStore) GetProgress(videoID, viewerID string) (*Progress, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.progress[progressKey{videoID, viewerID}]
	if !ok {
		return nil, false, nil
	}
	return &p, true, nil
}

func (m *memStore) ListProgress(viewerID string) ([]Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Progress
	for k, p := range m.progress {
		if k.viewer == viewerID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VideoID < out[j].VideoID })
	return out, nil
}

func (m *memStore) DeleteProgress(videoID, viewerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.progress, progressKey{videoID, viewerID})
	return nil
}

func (m *memStore) Stats(viewerID, category string) (TrainingStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := TrainingStats{ViewerID: viewerID, Category: category}
	var percents []float64
	for id, v := range m.videos {
		if category != "" && v.Category != category {
			continue
		}
		stats.TotalVideos++
		if p, ok := m.progress[progressKey{id, viewerID}]; ok {
			percents = append(percents, p.PercentWatched)
			if p.Completed() {
				stats.CompletedVideos++
			}
		}
	}
	stats.OverallProgress = OverallPercent(percents, stats.TotalVideos)
	return stats, nil
}

func (m *memStore) upsertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts
}

func (m *memStore) stored(videoID, viewerID string) (Progress, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.progress[progressKey{videoID, viewerID}]
	return p, ok
}
