package server

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/treefix50/trainingtime/internal/tracker"
)

var ErrSessionNotFound = errors.New("server: watch session not found")

const defaultSessionTTL = 30 * time.Minute

// WatchSession is one viewer playing one video. All access to the tracker
// and surface goes through mu.
type WatchSession struct {
	ID        string
	VideoID   string
	ViewerID  string
	CreatedAt time.Time

	lastSeen atomic.Int64

	mu              sync.Mutex
	tracker         *tracker.Tracker
	surface         *RemoteSurface
	resumeHint      int
	dirty           bool
	mustFlush       bool
	completedAt     time.Time
	completionSaved bool
	closed          bool

	now func() time.Time
}

// SurfaceEvent is a player event as reported by the client.
type SurfaceEvent struct {
	Type        string   `json:"type"`
	CurrentTime *float64 `json:"currentTime,omitempty"`
	Duration    *float64 `json:"duration,omitempty"`
}

type SessionView struct {
	ID            string           `json:"id"`
	VideoID       string           `json:"videoId"`
	ViewerID      string           `json:"viewerId"`
	ResumeSeconds int              `json:"resumeSeconds"`
	Position      float64          `json:"position"`
	Tracker       tracker.Snapshot `json:"tracker"`
	Commands      []Command        `json:"commands"`
}

type sessionOptions struct {
	Source            string
	ResumeSeconds     int
	ResumeUnlocksSeek bool
	// Clock defaults to time.Now.
	Clock func() time.Time
}

func newWatchSession(video Video, viewerID string, opts sessionOptions) (*WatchSession, error) {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	ws := &WatchSession{
		ID:         uuid.NewString(),
		VideoID:    video.ID,
		ViewerID:   viewerID,
		CreatedAt:  clock(),
		surface:    NewRemoteSurface(),
		resumeHint: opts.ResumeSeconds,
		now:        clock,
	}
	ws.touch(ws.CreatedAt)

	t, err := tracker.New(ws.surface, tracker.Options{
		Source:            opts.Source,
		ResumeHintSeconds: opts.ResumeSeconds,
		ResumeUnlocksSeek: opts.ResumeUnlocksSeek,
		Callbacks: tracker.Callbacks{
			OnProgress: func(float64, int) { ws.dirty = true },
			OnPause:    func() { ws.mustFlush = true },
			OnCompleted: func() {
				ws.completedAt = ws.now()
				ws.dirty = true
				ws.mustFlush = true
				videosCompleted.Inc()
			},
			OnSeekRejected: func(int, int) { seeksRejected.Inc() },
		},
	})
	if err != nil {
		return nil, err
	}
	ws.tracker = t
	return ws, nil
}

func (ws *WatchSession) touch(now time.Time) { ws.lastSeen.Store(now.UnixNano()) }

func (ws *WatchSession) idleSince() time.Time { return time.Unix(0, ws.lastSeen.Load()) }

// applyLocked validates every event before delivering any of them.
func (ws *WatchSession) applyLocked(events []SurfaceEvent) error {
	kinds := make([]tracker.Event, len(events))
	for i, ev := range events {
		kind, err := tracker.ParseEvent(ev.Type)
		if err != nil {
			return err
		}
		if ev.CurrentTime != nil && !finite(*ev.CurrentTime) {
			return fmt.Errorf("server: invalid currentTime for %s", ev.Type)
		}
		kinds[i] = kind
	}
	for i, ev := range events {
		ws.surface.Report(kinds[i], ev.CurrentTime, ev.Duration)
		surfaceEvents.WithLabelValues(kinds[i].String()).Inc()
	}
	return nil
}

func (ws *WatchSession) progressLocked(now time.Time) Progress {
	snap := ws.tracker.Snapshot()
	pos := ws.surface.Position()
	if !finite(pos) || pos < 0 {
		pos = 0
	}
	position := int64(math.Floor(pos))
	if d := int64(snap.DurationSeconds); d > 0 && position > d {
		position = d
	}
	return Progress{
		VideoID:         ws.VideoID,
		ViewerID:        ws.ViewerID,
		PositionSeconds: position,
		DurationSeconds: int64(snap.DurationSeconds),
		PercentWatched:  snap.WatchedPercent,
		FurthestSeconds: int64(snap.FurthestReached),
		UpdatedAt:       now.Unix(),
		LastPlayedAt:    now.Unix(),
	}
}

// viewLocked drains the pending commands into the returned view.
func (ws *WatchSession) viewLocked() SessionView {
	return SessionView{
		ID:            ws.ID,
		VideoID:       ws.VideoID,
		ViewerID:      ws.ViewerID,
		ResumeSeconds: ws.resumeHint,
		Position:      ws.surface.Position(),
		Tracker:       ws.tracker.Snapshot(),
		Commands:      ws.surface.DrainCommands(),
	}
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// SessionRegistry holds the open watch sessions and expires idle ones.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WatchSession
	ttl      time.Duration
	onExpire func(*WatchSession)
	now      func() time.Time

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewSessionRegistry starts a janitor that removes sessions idle for longer
// than ttl and hands them to onExpire. Close stops it.
func NewSessionRegistry(ttl time.Duration, onExpire func(*WatchSession)) *SessionRegistry {
	return newSessionRegistry(ttl, onExpire, time.Now)
}

func newSessionRegistry(ttl time.Duration, onExpire func(*WatchSession), now func() time.Time) *SessionRegistry {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	r := &SessionRegistry{
		sessions: make(map[string]*WatchSession),
		ttl:      ttl,
		onExpire: onExpire,
		now:      now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go r.cleanupLoop(sweepInterval(ttl))
	return r
}

func sweepInterval(ttl time.Duration) time.Duration {
	interval := ttl / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	return interval
}

func (r *SessionRegistry) Add(ws *WatchSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[ws.ID] = ws
	sessionsActive.Set(float64(len(r.sessions)))
}

// Get returns the session and marks it active.
func (r *SessionRegistry) Get(id string) (*WatchSession, error) {
	r.mu.RLock()
	ws, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	ws.touch(r.now())
	return ws, nil
}

func (r *SessionRegistry) Remove(id string) (*WatchSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	delete(r.sessions, id)
	sessionsActive.Set(float64(len(r.sessions)))
	return ws, nil
}

func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close stops the janitor and returns the sessions that were still open.
func (r *SessionRegistry) Close() []*WatchSession {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done

	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*WatchSession, 0, len(r.sessions))
	for _, ws := range r.sessions {
		out = append(out, ws)
	}
	r.sessions = make(map[string]*WatchSession)
	sessionsActive.Set(0)
	return out
}

func (r *SessionRegistry) cleanupLoop(interval time.Duration) {
	defer close(r.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.stop:
			return
		}
	}
}

// sweep removes idle sessions; onExpire runs outside the registry lock.
func (r *SessionRegistry) sweep() {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	var expired []*WatchSession
	for id, ws := range r.sessions {
		if ws.idleSince().Before(cutoff) {
			expired = append(expired, ws)
			delete(r.sessions, id)
		}
	}
	sessionsActive.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	if r.onExpire == nil {
		return
	}
	for _, ws := range expired {
		r.onExpire(ws)
	}
}
