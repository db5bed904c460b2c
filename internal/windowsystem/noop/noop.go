// Package noop provides a reference CommandSink/EventSource pair so
// cmd/tessera can start the plugin host and idle cleanly without a real
// X11 connection attached. It is a stand-in for the out-of-scope
// X11-specific window manager loop (spec §1), not a competing
// implementation of it: every window-control call is logged and reports
// ErrWindowNotFound, since no window system is actually tracking windows.
package noop

import (
	"github.com/tessera-wm/tessera/internal/corelog"
	"github.com/tessera-wm/tessera/internal/windowsystem"
	"github.com/tessera-wm/tessera/internal/wire"
)

// Source is an EventSource that never produces events.
type Source struct {
	events chan wire.Event
}

func NewSource() *Source {
	return &Source{events: make(chan wire.Event)}
}

func (s *Source) Events() <-chan wire.Event { return s.events }

// Sink is a CommandSink that logs every call it receives and reports
// windows as never found, so guest window-control host-calls observe a
// consistent -4 without a real X server to ask.
type Sink struct {
	commands chan windowsystem.Command
}

func NewSink() *Sink {
	sink := &Sink{commands: make(chan windowsystem.Command, windowsystem.CommandChannelCapacity)}
	go sink.drain()
	return sink
}

// drain discards commands so that Subscribe/Unsubscribe emission from the
// Subscription Index never blocks the dispatcher goroutine against a
// sink nobody is reading from.
func (s *Sink) drain() {
	for cmd := range s.commands {
		corelog.WithComponent("windowsystem.noop").Debug().
			Int("kind", int(cmd.Kind)).
			Uint32("window_id", cmd.WindowID).
			Msg("command received by noop sink")
	}
}

func (s *Sink) Commands() chan<- windowsystem.Command { return s.commands }

func (s *Sink) ConfigureWindow(id uint32, x, y *int16, width, height *uint16) error {
	corelog.WithComponent("windowsystem.noop").Debug().Uint32("window_id", id).Msg("configure_window")
	return windowsystem.ErrWindowNotFound
}

func (s *Sink) FocusWindow(id uint32) error {
	corelog.WithComponent("windowsystem.noop").Debug().Uint32("window_id", id).Msg("focus_window")
	return windowsystem.ErrWindowNotFound
}

func (s *Sink) CloseWindow(id uint32) error {
	corelog.WithComponent("windowsystem.noop").Debug().Uint32("window_id", id).Msg("close_window")
	return windowsystem.ErrWindowNotFound
}

func (s *Sink) WindowGeometry(id uint32) (wire.Geometry, error) {
	corelog.WithComponent("windowsystem.noop").Debug().Uint32("window_id", id).Msg("window_geometry")
	return wire.Geometry{}, windowsystem.ErrWindowNotFound
}
