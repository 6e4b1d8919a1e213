package tracker

import "fmt"

// State is the playback state of a watch session.
type State int

const (
	StatePaused State = iota
	StatePlaying
	// StateEnded is terminal for the session.
	StateEnded
)

func (s State) String() string {
	switch s {
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// MarshalText lets the state render as its name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for _, candidate := range []State{StatePaused, StatePlaying, StateEnded} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("tracker: unknown state %q", text)
}
