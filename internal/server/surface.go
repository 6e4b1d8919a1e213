package server

import (
	"math"

	"github.com/treefix50/trainingtime/internal/tracker"
)

// Command is an instruction for the client-side player, produced when the
// tracker acts on the surface.
type Command struct {
	Type     string   `json:"type"`
	Position *float64 `json:"position,omitempty"`
}

const (
	CommandSeek  = "seek"
	CommandPlay  = "play"
	CommandPause = "pause"
)

// RemoteSurface is a tracker.Surface whose real player runs in the client.
// The client reports position and duration with each event; anything the
// tracker does to the surface is queued as a Command for the client.
type RemoteSurface struct {
	position float64
	duration float64
	commands []Command
	listener tracker.Listener
}

func NewRemoteSurface() *RemoteSurface {
	return &RemoteSurface{duration: math.NaN()}
}

var _ tracker.Subscriber = (*RemoteSurface)(nil)

func (r *RemoteSurface) Position() float64 { return r.position }
func (r *RemoteSurface) Duration() float64 { return r.duration }

func (r *RemoteSurface) SetPosition(seconds float64) {
	r.position = seconds
	pos := seconds
	r.commands = append(r.commands, Command{Type: CommandSeek, Position: &pos})
}

func (r *RemoteSurface) Play() error {
	r.commands = append(r.commands, Command{Type: CommandPlay})
	return nil
}

func (r *RemoteSurface) Pause() {
	r.commands = append(r.commands, Command{Type: CommandPause})
}

func (r *RemoteSurface) Subscribe(l tracker.Listener) { r.listener = l }

// Report records what the client player observed and forwards the event to
// the subscribed tracker. Nil values keep the previous observation.
func (r *RemoteSurface) Report(ev tracker.Event, currentTime, duration *float64) {
	if currentTime != nil {
		r.position = *currentTime
	}
	if duration != nil {
		r.duration = *duration
	}
	if r.listener != nil {
		r.listener.HandleEvent(ev)
	}
}

// DrainCommands returns and clears the queued commands.
func (r *RemoteSurface) DrainCommands() []Command {
	out := r.commands
	r.commands = nil
	if out == nil {
		out = []Command{}
	}
	return out
}
