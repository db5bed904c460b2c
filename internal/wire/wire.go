// Package wire implements the binary codec shared by the plugin host and
// its WASM guests: a fixed, tag-discriminated little-endian encoding for
// Key, Geometry, Window, Event and SubscriptionEvent. There is no version
// byte and no length prefix — every value's encoded size is a pure
// function of its discriminant, which is what lets guests size their
// stack buffers ahead of a host-call.
package wire

import (
	"encoding/binary"
	"errors"
)

// Event and SubscriptionEvent tags. Stable and exhaustive; never reuse or
// renumber these once a plugin ABI ships.
const (
	TagKeyPress        uint32 = 1
	TagKeyRelease      uint32 = 2
	TagWindowAdd       uint32 = 3
	TagWindowRemove    uint32 = 4
	TagWindowConfigure uint32 = 5
)

var (
	// ErrBufferTooSmall is returned by Encode when the destination buffer
	// cannot hold the value's EncodedSize.
	ErrBufferTooSmall = errors.New("wire: buffer too small")
	// ErrBadFormat is returned by Decode when the input is too short, the
	// tag is unknown, or an integer field is malformed.
	ErrBadFormat = errors.New("wire: bad format")
)

// Key is a modifier mask plus a keycode: modmask(u16) || keycode(u8), 3 bytes.
type Key struct {
	ModMask uint16
	Keycode uint8
}

const keySize = 3

func (k Key) EncodedSize() int { return keySize }

func (k Key) EncodeTo(buf []byte) error {
	if len(buf) < keySize {
		return ErrBufferTooSmall
	}
	binary.LittleEndian.PutUint16(buf[0:2], k.ModMask)
	buf[2] = k.Keycode
	return nil
}

func DecodeKey(buf []byte) (Key, error) {
	if len(buf) < keySize {
		return Key{}, ErrBadFormat
	}
	return Key{
		ModMask: binary.LittleEndian.Uint16(buf[0:2]),
		Keycode: buf[2],
	}, nil
}

// Geometry is x(i16) || y(i16) || width(u16) || height(u16), 8 bytes.
type Geometry struct {
	X      int16
	Y      int16
	Width  uint16
	Height uint16
}

const geometrySize = 8

func (g Geometry) EncodedSize() int { return geometrySize }

func (g Geometry) EncodeTo(buf []byte) error {
	if len(buf) < geometrySize {
		return ErrBufferTooSmall
	}
	binary.LittleEndian.PutUint16(buf[0:2], uint16(g.X))
	binary.LittleEndian.PutUint16(buf[2:4], uint16(g.Y))
	binary.LittleEndian.PutUint16(buf[4:6], g.Width)
	binary.LittleEndian.PutUint16(buf[6:8], g.Height)
	return nil
}

func DecodeGeometry(buf []byte) (Geometry, error) {
	if len(buf) < geometrySize {
		return Geometry{}, ErrBadFormat
	}
	return Geometry{
		X:      int16(binary.LittleEndian.Uint16(buf[0:2])),
		Y:      int16(binary.LittleEndian.Uint16(buf[2:4])),
		Width:  binary.LittleEndian.Uint16(buf[4:6]),
		Height: binary.LittleEndian.Uint16(buf[6:8]),
	}, nil
}

// Window is id(u32) || Geometry, 12 bytes.
type Window struct {
	ID       uint32
	Geometry Geometry
}

const windowSize = 4 + geometrySize

func (w Window) EncodedSize() int { return windowSize }

func (w Window) EncodeTo(buf []byte) error {
	if len(buf) < windowSize {
		return ErrBufferTooSmall
	}
	binary.LittleEndian.PutUint32(buf[0:4], w.ID)
	return w.Geometry.EncodeTo(buf[4:windowSize])
}

func DecodeWindow(buf []byte) (Window, error) {
	if len(buf) < windowSize {
		return Window{}, ErrBadFormat
	}
	geom, err := DecodeGeometry(buf[4:windowSize])
	if err != nil {
		return Window{}, err
	}
	return Window{
		ID:       binary.LittleEndian.Uint32(buf[0:4]),
		Geometry: geom,
	}, nil
}

// Event is the tagged union delivered to plugin queues: tag(u32) || payload.
type Event struct {
	Tag      uint32
	Key      Key    // valid for TagKeyPress / TagKeyRelease
	WindowID uint32 // valid for TagWindowAdd / TagWindowRemove
	Window   Window // valid for TagWindowConfigure
}

func KeyPressEvent(k Key) Event      { return Event{Tag: TagKeyPress, Key: k} }
func KeyReleaseEvent(k Key) Event    { return Event{Tag: TagKeyRelease, Key: k} }
func WindowAddEvent(id uint32) Event { return Event{Tag: TagWindowAdd, WindowID: id} }
func WindowRemoveEvent(id uint32) Event {
	return Event{Tag: TagWindowRemove, WindowID: id}
}
func WindowConfigureEvent(w Window) Event {
	return Event{Tag: TagWindowConfigure, Window: w}
}

func (e Event) EncodedSize() int {
	switch e.Tag {
	case TagKeyPress, TagKeyRelease:
		return 4 + keySize
	case TagWindowAdd, TagWindowRemove:
		return 4 + 4
	case TagWindowConfigure:
		return 4 + windowSize
	default:
		return 4
	}
}

func (e Event) EncodeTo(buf []byte) error {
	size := e.EncodedSize()
	if len(buf) < size {
		return ErrBufferTooSmall
	}
	binary.LittleEndian.PutUint32(buf[0:4], e.Tag)
	switch e.Tag {
	case TagKeyPress, TagKeyRelease:
		return e.Key.EncodeTo(buf[4:size])
	case TagWindowAdd, TagWindowRemove:
		binary.LittleEndian.PutUint32(buf[4:8], e.WindowID)
		return nil
	case TagWindowConfigure:
		return e.Window.EncodeTo(buf[4:size])
	default:
		return ErrBadFormat
	}
}

// EncodeToSlice is a convenience wrapper that allocates exactly EncodedSize bytes.
func (e Event) EncodeToSlice() []byte {
	buf := make([]byte, e.EncodedSize())
	// Encoding a well-formed Event into an exactly-sized buffer cannot fail.
	_ = e.EncodeTo(buf)
	return buf
}

func DecodeEvent(buf []byte) (Event, error) {
	if len(buf) < 4 {
		return Event{}, ErrBadFormat
	}
	tag := binary.LittleEndian.Uint32(buf[0:4])
	switch tag {
	case TagKeyPress, TagKeyRelease:
		key, err := DecodeKey(buf[4:])
		if err != nil {
			return Event{}, err
		}
		return Event{Tag: tag, Key: key}, nil
	case TagWindowAdd, TagWindowRemove:
		if len(buf) < 8 {
			return Event{}, ErrBadFormat
		}
		return Event{Tag: tag, WindowID: binary.LittleEndian.Uint32(buf[4:8])}, nil
	case TagWindowConfigure:
		win, err := DecodeWindow(buf[4:])
		if err != nil {
			return Event{}, err
		}
		return Event{Tag: tag, Window: win}, nil
	default:
		return Event{}, ErrBadFormat
	}
}

// SubscriptionEvent mirrors Event but carries no per-instance payload for
// window-lifecycle variants: tag(u32) || payload, payload present only for
// KeyPress/KeyRelease.
type SubscriptionEvent struct {
	Tag uint32
	Key Key // valid for TagKeyPress / TagKeyRelease
}

func KeyPressSub(k Key) SubscriptionEvent   { return SubscriptionEvent{Tag: TagKeyPress, Key: k} }
func KeyReleaseSub(k Key) SubscriptionEvent { return SubscriptionEvent{Tag: TagKeyRelease, Key: k} }
func WindowAddSub() SubscriptionEvent       { return SubscriptionEvent{Tag: TagWindowAdd} }
func WindowRemoveSub() SubscriptionEvent    { return SubscriptionEvent{Tag: TagWindowRemove} }
func WindowConfigureSub() SubscriptionEvent { return SubscriptionEvent{Tag: TagWindowConfigure} }

// FromEvent projects an Event onto its SubscriptionEvent, per the total,
// order-preserving mapping in spec §4.2.
func FromEvent(e Event) SubscriptionEvent {
	switch e.Tag {
	case TagKeyPress, TagKeyRelease:
		return SubscriptionEvent{Tag: e.Tag, Key: e.Key}
	default:
		return SubscriptionEvent{Tag: e.Tag}
	}
}

func (s SubscriptionEvent) EncodedSize() int {
	switch s.Tag {
	case TagKeyPress, TagKeyRelease:
		return 4 + keySize
	default:
		return 4
	}
}

func (s SubscriptionEvent) EncodeTo(buf []byte) error {
	size := s.EncodedSize()
	if len(buf) < size {
		return ErrBufferTooSmall
	}
	binary.LittleEndian.PutUint32(buf[0:4], s.Tag)
	switch s.Tag {
	case TagKeyPress, TagKeyRelease:
		return s.Key.EncodeTo(buf[4:size])
	default:
		return nil
	}
}

func (s SubscriptionEvent) EncodeToSlice() []byte {
	buf := make([]byte, s.EncodedSize())
	_ = s.EncodeTo(buf)
	return buf
}

func DecodeSubscriptionEvent(buf []byte) (SubscriptionEvent, error) {
	if len(buf) < 4 {
		return SubscriptionEvent{}, ErrBadFormat
	}
	tag := binary.LittleEndian.Uint32(buf[0:4])
	switch tag {
	case TagKeyPress, TagKeyRelease:
		key, err := DecodeKey(buf[4:])
		if err != nil {
			return SubscriptionEvent{}, err
		}
		return SubscriptionEvent{Tag: tag, Key: key}, nil
	case TagWindowAdd, TagWindowRemove, TagWindowConfigure:
		return SubscriptionEvent{Tag: tag}, nil
	default:
		return SubscriptionEvent{}, ErrBadFormat
	}
}

// SubscriptionFilter is structurally reserved: v1's filter vocabulary is
// empty, so only the zero-length filter group is ever used.
type SubscriptionFilter struct{}

// SubscriptionFilterGroup is an ordered, conjunctively-combined sequence of
// filters. Equality is by value (two groups of the same filters in the
// same order are equal), which is what Index.Unsubscribe relies on to drop
// one matching filter group at a time.
type SubscriptionFilterGroup []SubscriptionFilter

// Equal reports whether two filter groups are the same sequence of filters.
func (g SubscriptionFilterGroup) Equal(other SubscriptionFilterGroup) bool {
	if len(g) != len(other) {
		return false
	}
	for i := range g {
		if g[i] != other[i] {
			return false
		}
	}
	return true
}

// Subscription pairs an event with its filter group. In v1 the filter
// region is always empty, so Subscription encodes identically to its
// SubscriptionEvent.
type Subscription struct {
	Event   SubscriptionEvent
	Filters SubscriptionFilterGroup
}

func (s Subscription) EncodedSize() int { return s.Event.EncodedSize() }

func (s Subscription) EncodeTo(buf []byte) error { return s.Event.EncodeTo(buf) }

func (s Subscription) EncodeToSlice() []byte { return s.Event.EncodeToSlice() }

func DecodeSubscription(buf []byte) (Subscription, error) {
	ev, err := DecodeSubscriptionEvent(buf)
	if err != nil {
		return Subscription{}, err
	}
	return Subscription{Event: ev}, nil
}
