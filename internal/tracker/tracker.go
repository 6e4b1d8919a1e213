// Package tracker measures how much of a video a viewer has actually watched
// and keeps the viewer from seeking past what they have reached by playback.
//
// A Tracker is not safe for concurrent use. Callers deliver the events of one
// playback from a single goroutine, or serialise them.
package tracker

import (
	"errors"
	"math"
	"strings"
)

// maxTrackedSeconds bounds the cell bit-vector. Longer or infinite
// durations are treated as unknown.
const maxTrackedSeconds = 1 << 22

var (
	ErrNoSource   = errors.New("tracker: no video source")
	ErrNilSurface = errors.New("tracker: nil surface")
)

// Callbacks are the signals a Tracker emits to its host. Any may be nil.
type Callbacks struct {
	OnProgress     func(watchedPercent float64, durationSeconds int)
	OnPlay         func()
	OnPause        func()
	OnCompleted    func()
	OnSeekRejected func(targetSeconds, furthestSeconds int)
}

type Options struct {
	Source            string
	ResumeHintSeconds int
	// ResumeUnlocksSeek raises the furthest reached position to the resume
	// hint when it is applied, so a returning viewer may seek up to where
	// they left off. Cells are never populated by a resume.
	ResumeUnlocksSeek bool
	Callbacks         Callbacks
}

type Tracker struct {
	surface Surface
	source  string
	cb      Callbacks

	resumeHint        int
	resumeUnlocksSeek bool
	resumeApplied     bool
	// pendingSeek is the target of a seek the tracker issued itself; the
	// seeking event it causes is not subject to the guard. -1 when none.
	pendingSeek int

	duration  int
	cells     *cellSet
	furthest  int
	state     State
	completed bool
	rejected  int
}

// New creates a tracker for one playback of source on surface. When the
// surface implements Subscriber the tracker subscribes itself.
func New(surface Surface, opts Options) (*Tracker, error) {
	if strings.TrimSpace(opts.Source) == "" {
		return nil, ErrNoSource
	}
	if surface == nil {
		return nil, ErrNilSurface
	}
	hint := opts.ResumeHintSeconds
	if hint < 0 {
		hint = 0
	}
	t := &Tracker{
		surface:           surface,
		source:            opts.Source,
		cb:                opts.Callbacks,
		resumeHint:        hint,
		resumeUnlocksSeek: opts.ResumeUnlocksSeek,
		pendingSeek:       -1,
		cells:             newCellSet(0),
		state:             StatePaused,
	}
	if sub, ok := surface.(Subscriber); ok {
		sub.Subscribe(t)
	}
	return t, nil
}

// HandleEvent dispatches a native surface event to its handler.
func (t *Tracker) HandleEvent(ev Event) {
	switch ev {
	case EventLoadedMetadata:
		t.HandleLoadedMetadata()
	case EventTimeUpdate:
		t.HandleTimeUpdate()
	case EventSeeking:
		t.HandleSeeking()
	case EventPlay:
		t.HandlePlay()
	case EventPause:
		t.HandlePause()
	case EventEnded:
		t.HandleEnded()
	}
}

// HandleLoadedMetadata records the duration and applies the resume hint the
// first time the duration is known.
func (t *Tracker) HandleLoadedMetadata() {
	if d := durationSeconds(t.surface.Duration()); d > 0 {
		t.duration = d
	}
	if t.resumeApplied || t.resumeHint == 0 || t.duration == 0 {
		return
	}
	t.resumeApplied = true
	if t.resumeUnlocksSeek {
		t.raiseFurthest(min(t.resumeHint, t.duration))
	}
	t.pendingSeek = t.resumeHint
	t.surface.SetPosition(float64(t.resumeHint))
}

// HandleTimeUpdate marks the current second as watched and emits progress.
func (t *Tracker) HandleTimeUpdate() {
	if t.state == StateEnded {
		return
	}
	duration := durationSeconds(t.surface.Duration())
	if duration == 0 {
		return
	}
	t.duration = duration

	if pos, ok := positionSeconds(t.surface.Position()); ok {
		// currentTime == duration on the final tick is the end, not a cell.
		if pos < duration {
			t.cells.Add(pos)
		}
		t.raiseFurthest(min(pos, duration))
	}

	if t.cb.OnProgress != nil {
		t.cb.OnProgress(t.percent(), duration)
	}
}

// HandleSeeking intercepts a seek before the surface moves and pulls forward
// skips back to the furthest reached position. The exemption for the
// tracker's own resume seek lasts until the next seeking event, whatever
// time updates arrive in between.
func (t *Tracker) HandleSeeking() {
	target, _ := positionSeconds(t.surface.Position())
	if t.pendingSeek >= 0 {
		own := t.pendingSeek
		t.pendingSeek = -1
		if target == own {
			return
		}
	}
	if target <= t.furthest {
		return
	}
	t.rejected++
	t.surface.SetPosition(float64(t.furthest))
	if t.cb.OnSeekRejected != nil {
		t.cb.OnSeekRejected(target, t.furthest)
	}
}

// TogglePlayback pauses a playing surface or starts a paused one. It does
// nothing once playback has ended. A failing Play leaves the state unchanged.
func (t *Tracker) TogglePlayback() error {
	switch t.state {
	case StateEnded:
		return nil
	case StatePlaying:
		t.surface.Pause()
		t.transition(StatePaused)
	default:
		if err := t.surface.Play(); err != nil {
			return err
		}
		t.transition(StatePlaying)
	}
	return nil
}

// HandlePlay mirrors a play event raised by the surface itself.
func (t *Tracker) HandlePlay() { t.transition(StatePlaying) }

// HandlePause mirrors a pause event raised by the surface itself.
func (t *Tracker) HandlePause() { t.transition(StatePaused) }

// HandleEnded moves the session to its terminal state and reports completion
// once.
func (t *Tracker) HandleEnded() {
	if t.completed {
		return
	}
	t.completed = true
	t.state = StateEnded
	if t.cb.OnCompleted != nil {
		t.cb.OnCompleted()
	}
}

func (t *Tracker) transition(next State) {
	if t.state == StateEnded || t.state == next {
		return
	}
	t.state = next
	switch next {
	case StatePlaying:
		if t.cb.OnPlay != nil {
			t.cb.OnPlay()
		}
	case StatePaused:
		if t.cb.OnPause != nil {
			t.cb.OnPause()
		}
	}
}

func (t *Tracker) raiseFurthest(pos int) {
	if pos > t.furthest {
		t.furthest = pos
	}
}

func (t *Tracker) percent() float64 {
	if t.duration <= 0 {
		return 0
	}
	return float64(t.cells.CountBelow(t.duration)) * 100 / float64(t.duration)
}

func (t *Tracker) Source() string { return t.source }
func (t *Tracker) State() State { return t.state }
func (t *Tracker) IsPlaying() bool { return t.state == StatePlaying }
func (t *Tracker) FurthestReached() int { return t.furthest }
func (t *Tracker) DurationSeconds() int { return t.duration }
func (t *Tracker) RejectedSeeks() int { return t.rejected }
func (t *Tracker) Watched(second int) bool { return t.cells.Has(second) }

// WatchedPercent reports coverage; ok is false while the duration is unknown.
func (t *Tracker) WatchedPercent() (percent float64, ok bool) {
	if t.duration <= 0 {
		return 0, false
	}
	return t.percent(), true
}

// Snapshot is a point-in-time view of a tracker.
type Snapshot struct {
	Source          string  `json:"source"`
	State           State   `json:"state"`
	DurationSeconds int     `json:"durationSeconds"`
	WatchedSeconds  int     `json:"watchedSeconds"`
	WatchedPercent  float64 `json:"watchedPercent"`
	FurthestReached int     `json:"furthestReached"`
	ResumeApplied   bool    `json:"resumeApplied"`
	RejectedSeeks   int     `json:"rejectedSeeks"`
}

func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		Source:          t.source,
		State:           t.state,
		DurationSeconds: t.duration,
		WatchedSeconds:  t.cells.CountBelow(t.duration),
		WatchedPercent:  t.percent(),
		FurthestReached: t.furthest,
		ResumeApplied:   t.resumeApplied,
		RejectedSeeks:   t.rejected,
	}
}

// durationSeconds floors v; NaN, infinite, negative and oversized durations
// are unknown and become 0.
func durationSeconds(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0
	}
	f := math.Floor(v)
	if f >= maxTrackedSeconds {
		return 0
	}
	return int(f)
}

// positionSeconds floors v and saturates at maxTrackedSeconds, which is past
// every tracked duration. NaN and negative positions read as 0 with ok false.
func positionSeconds(v float64) (sec int, ok bool) {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0, false
	case v >= maxTrackedSeconds:
		return maxTrackedSeconds, true
	}
	return int(math.Floor(v)), true
}
