// Package windowsystem defines the boundary between the plugin host core
// and the X11-specific window manager loop. The window manager's pointer
// grabbing, reparenting and layout computation are out of scope for this
// repository (spec §1) — they are an external collaborator reached only
// through the interfaces declared here.
package windowsystem

import "github.com/tessera-wm/tessera/internal/wire"

// CommandKind discriminates the Command union.
type CommandKind int

const (
	CommandSubscribe CommandKind = iota
	CommandUnsubscribe
	CommandConfigureWindow
)

// Command is a host-to-consumer message: Subscribe/Unsubscribe request a
// start/stop of event production for a SubscriptionEvent; ConfigureWindow
// carries an optional partial geometry update (nil fields are left
// unchanged by the consumer).
type Command struct {
	Kind CommandKind

	// Valid when Kind is CommandSubscribe or CommandUnsubscribe.
	SubscriptionEvent wire.SubscriptionEvent

	// Valid when Kind is CommandConfigureWindow.
	WindowID uint32
	X        *int16
	Y        *int16
	Width    *uint16
	Height   *uint16
}

func SubscribeCommand(ev wire.SubscriptionEvent) Command {
	return Command{Kind: CommandSubscribe, SubscriptionEvent: ev}
}

func UnsubscribeCommand(ev wire.SubscriptionEvent) Command {
	return Command{Kind: CommandUnsubscribe, SubscriptionEvent: ev}
}

// EventSource is the producer side of the boundary: an external component
// (the X11 event loop) translates raw events into wire.Event values and
// makes them available on an unbounded channel, per spec §6.
type EventSource interface {
	Events() <-chan wire.Event
}

// CommandSink is the consumer side of the boundary. Two equivalent
// back-ends are permitted by spec §4.4.2: a synchronous X-server client
// (the direct method calls below), or an asynchronous bounded Commands()
// channel. Implementations may back both with the same underlying
// connection.
type CommandSink interface {
	// Commands returns the bounded (capacity ~50) channel that
	// Subscribe/Unsubscribe transitions are sent on; sends block the
	// caller when full, per spec §5.
	Commands() chan<- Command

	// ConfigureWindow applies a partial geometry update. Nil fields are
	// left unchanged. Returns ErrWindowNotFound if id does not exist.
	ConfigureWindow(id uint32, x, y *int16, width, height *uint16) error

	// FocusWindow raises the window (stack-mode above) and sets input focus.
	FocusWindow(id uint32) error

	// CloseWindow sends a protocol delete-window client message.
	CloseWindow(id uint32) error

	// WindowGeometry synchronously queries a window's current geometry.
	WindowGeometry(id uint32) (wire.Geometry, error)
}

// ErrWindowNotFound is returned by CommandSink methods when the target
// window id does not exist, corresponding to guest error code -4.
var ErrWindowNotFound = windowNotFoundError{}

type windowNotFoundError struct{}

func (windowNotFoundError) Error() string { return "windowsystem: window not found" }

// CommandChannelCapacity is the bounded capacity of the external Command
// channel (spec §5's "capacity 50 is the source default").
const CommandChannelCapacity = 50
