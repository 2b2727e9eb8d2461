package protolog

import (
	"time"
)

// Event is one captured protocol event.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the transport session (UUID).
	SessionID string `cbor:"2,keyasint"`

	Direction Direction `cbor:"3,keyasint"`
	Kind      Kind      `cbor:"4,keyasint"`

	// Frame holds the raw bytes as written or received.
	Frame []byte `cbor:"5,keyasint,omitempty"`

	// Address is the parameter address of a parsed DT1/RQ1, e.g. "19 01 20 0C".
	Address string `cbor:"6,keyasint,omitempty"`

	// Error is set for dropped frames and failed writes.
	Error string `cbor:"7,keyasint,omitempty"`

	// Note is free text: "open" and "close" on state events, "foreign" on
	// frames dropped as another model's traffic.
	Note string `cbor:"8,keyasint,omitempty"`
}

// Notes carried by state and dropped events.
const (
	NoteOpen    = "open"
	NoteClose   = "close"
	NoteForeign = "foreign"
)

// Direction indicates the direction of message flow.
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Kind classifies the event.
type Kind uint8

const (
	// KindSysEx is a complete SysEx frame.
	KindSysEx Kind = 0
	// KindChannel is a channel voice message (CC, program change, notes).
	KindChannel Kind = 1
	// KindDropped is an inbound frame rejected by the codec.
	KindDropped Kind = 2
	// KindState is a session state change.
	KindState Kind = 3
	// KindError is a failed write.
	KindError Kind = 4
)

func (k Kind) String() string {
	switch k {
	case KindSysEx:
		return "SYSEX"
	case KindChannel:
		return "CHANNEL"
	case KindDropped:
		return "DROPPED"
	case KindState:
		return "STATE"
	case KindError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
