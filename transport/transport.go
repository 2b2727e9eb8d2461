// Package transport owns the MIDI link to the device: rate-limited sends,
// request/reply correlation and dispatch of unsolicited traffic.
package transport

import (
	"errors"
	"time"

	"jdximcp/sysex"
)

var (
	ErrNotOpen        = errors.New("transport: session not open")
	ErrLink           = errors.New("transport: link error")
	ErrRequestTimeout = errors.New("transport: request timed out")
	ErrCancelled      = errors.New("transport: request cancelled")
)

// DefaultMinGap is the minimum spacing between two outbound messages. The
// JD-Xi drops SysEx that arrives faster.
const DefaultMinGap = 2 * time.Millisecond

// DefaultTimeout applies to requests issued with a zero timeout.
const DefaultTimeout = time.Second

// Link is a bidirectional message pipe to the device.
type Link interface {
	// Write sends one complete MIDI message.
	Write(data []byte) error
	// Listen starts delivering inbound messages to fn. Each call carries
	// one complete message and all calls come from a single goroutine.
	Listen(fn func(msg []byte)) error
	// Close stops delivery and releases the link.
	Close() error
}

// Class separates the correlation namespaces of the pending table.
type Class uint8

const (
	ClassParameter Class = iota
	ClassIdentity
)

// Key identifies what a pending request is waiting for.
type Key struct {
	Class Class
	Addr  sysex.Address
}

// IdentityKey is reserved for the universal identity exchange.
var IdentityKey = Key{Class: ClassIdentity}

// ParameterKey matches a DT1 reply at addr.
func ParameterKey(addr sysex.Address) Key {
	return Key{Class: ClassParameter, Addr: addr}
}

func (k Key) String() string {
	if k.Class == ClassIdentity {
		return "identity"
	}
	return "param " + k.Addr.String()
}

// Reply is what resolved a pending request.
type Reply struct {
	Message  sysex.Message       // ClassParameter
	Identity sysex.IdentityReply // ClassIdentity
	Raw      []byte
	At       time.Time
}
