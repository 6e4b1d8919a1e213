package tracker

import (
	"fmt"
	"strings"
)

// Surface is the playback primitive the tracker drives. Positions and
// durations are in seconds and may be fractional, NaN or infinite.
type Surface interface {
	Position() float64
	Duration() float64
	SetPosition(seconds float64)
	Play() error
	Pause()
}

// Listener receives native surface events.
type Listener interface {
	HandleEvent(ev Event)
}

// Subscriber is implemented by surfaces that push their own events.
type Subscriber interface {
	Subscribe(l Listener)
}

// Event is a native surface event.
type Event int

const (
	EventLoadedMetadata Event = iota + 1
	EventTimeUpdate
	EventSeeking
	EventPlay
	EventPause
	EventEnded
)

var eventNames = map[Event]string{
	EventLoadedMetadata: "loadedmetadata",
	EventTimeUpdate:     "timeupdate",
	EventSeeking:        "seeking",
	EventPlay:           "play",
	EventPause:          "pause",
	EventEnded:          "ended",
}

func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return "unknown"
}

// ParseEvent maps a DOM-style media event name to an Event.
func ParseEvent(name string) (Event, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for ev, n := range eventNames {
		if n == normalized {
			return ev, nil
		}
	}
	return 0, fmt.Errorf("tracker: unknown event %q", name)
}
