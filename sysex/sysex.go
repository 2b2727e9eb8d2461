// Package sysex builds and parses the Roland System Exclusive frames spoken
// by the JD-Xi: DT1 data-set writes, RQ1 data requests and the universal
// identity request/reply pair.
package sysex

import (
	"bytes"
	"errors"
	"fmt"
)

const (
	Start byte = 0xF0
	End   byte = 0xF7

	// RolandID is the Roland manufacturer byte.
	RolandID byte = 0x41

	// DefaultDeviceID is the factory device id of a JD-Xi (17 on the panel).
	DefaultDeviceID byte = 0x10

	// headerLen covers F0, manufacturer, device id, model id and command.
	headerLen = 8
	// minFrameLen is a frame with an empty payload.
	minFrameLen = headerLen + 4 + 2
)

// Command is the Roland command byte following the model id.
type Command byte

const (
	CmdRQ1 Command = 0x11
	CmdDT1 Command = 0x12
	CmdRQ2 Command = 0x41
)

func (c Command) String() string {
	switch c {
	case CmdRQ1:
		return "RQ1"
	case CmdDT1:
		return "DT1"
	case CmdRQ2:
		return "RQ2"
	default:
		return fmt.Sprintf("CMD(0x%02X)", byte(c))
	}
}

// IsRequest reports whether c asks the device to transmit data.
func (c Command) IsRequest() bool {
	return c == CmdRQ1 || c == CmdRQ2
}

// Framing errors. They only ever occur on received bytes.
var (
	ErrTruncated           = errors.New("sysex: truncated frame")
	ErrBadMarker           = errors.New("sysex: bad start/end marker")
	ErrUnknownManufacturer = errors.New("sysex: unknown manufacturer or model")
	ErrChecksumMismatch    = errors.New("sysex: checksum mismatch")
)

// ChecksumError carries both sides of a failed checksum comparison.
type ChecksumError struct {
	Want byte
	Got  byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("sysex: checksum mismatch: calculated 0x%02X, got 0x%02X", e.Want, e.Got)
}

func (e *ChecksumError) Unwrap() error { return ErrChecksumMismatch }

// Header is the fixed preamble of every vendor frame.
type Header struct {
	Manufacturer byte
	DeviceID     byte
	Model        [4]byte
}

// JDXi is the header of a JD-Xi at its default device id.
var JDXi = Header{
	Manufacturer: RolandID,
	DeviceID:     DefaultDeviceID,
	Model:        [4]byte{0x00, 0x00, 0x00, 0x0E},
}

// WithDevice returns a copy of h addressed to device id dev.
func (h Header) WithDevice(dev byte) Header {
	h.DeviceID = dev
	return h
}

// Message is a decoded vendor frame.
type Message struct {
	Header   Header
	Command  Command
	Address  Address
	Payload  []byte
	Checksum byte
}

// Size decodes the requested byte count of an RQ1 message.
func (m Message) Size() int {
	if len(m.Payload) < 4 {
		return 0
	}
	return DecodeSize(m.Payload[:4])
}

func (m Message) String() string {
	return fmt.Sprintf("%s %s % X", m.Command, m.Address, m.Payload)
}

// Frame is a complete encoded message, F0 through F7.
type Frame []byte

// Checksum returns the checksum byte of a vendor frame.
func (f Frame) Checksum() byte {
	if len(f) < 2 {
		return 0
	}
	return f[len(f)-2]
}

// Hex formats the frame as space separated hex bytes.
func (f Frame) Hex() string {
	return fmt.Sprintf("% X", []byte(f))
}

// Checksum returns the Roland checksum over address and payload bytes:
// whatever value brings the 7-bit sum to zero.
func Checksum(data ...[]byte) byte {
	sum := 0
	for _, d := range data {
		for _, b := range d {
			sum += int(b)
		}
	}
	return byte((128 - sum%128) % 128)
}

// Build assembles a frame. The checksum is always computed here from the
// final address and payload bytes.
func (h Header) Build(cmd Command, addr Address, payload []byte) Frame {
	a := addr.Bytes()
	out := make(Frame, 0, minFrameLen+len(payload))
	out = append(out, Start, h.Manufacturer, h.DeviceID)
	out = append(out, h.Model[:]...)
	out = append(out, byte(cmd))
	out = append(out, a[:]...)
	out = append(out, payload...)
	out = append(out, Checksum(a[:], payload), End)
	return out
}

// DataSet builds a DT1 frame writing payload at addr.
func (h Header) DataSet(addr Address, payload []byte) Frame {
	return h.Build(CmdDT1, addr, payload)
}

// DataRequest builds an RQ1 frame asking for size bytes starting at addr.
func (h Header) DataRequest(addr Address, size int) Frame {
	s := EncodeSize(size)
	return h.Build(CmdRQ1, addr, s[:])
}

// Parse validates and decodes a vendor frame. Frames from another
// manufacturer or model fail with ErrUnknownManufacturer before the
// checksum is looked at, so foreign traffic on a shared bus is never
// mistaken for corruption.
func (h Header) Parse(data []byte) (Message, error) {
	if len(data) == 0 {
		return Message{}, ErrTruncated
	}
	if data[0] != Start {
		return Message{}, ErrBadMarker
	}
	if len(data) >= 2 && data[1] != h.Manufacturer {
		return Message{}, fmt.Errorf("%w: manufacturer 0x%02X", ErrUnknownManufacturer, data[1])
	}
	// Short frames from other models of the same manufacturer are foreign,
	// not truncated. The last byte is taken to be the end marker.
	if n := min(len(data)-1, headerLen-1); n > 3 {
		if !bytes.Equal(data[3:n], h.Model[:n-3]) {
			return Message{}, fmt.Errorf("%w: model % X", ErrUnknownManufacturer, data[3:n])
		}
	}
	if len(data) < minFrameLen {
		return Message{}, fmt.Errorf("%w: %d bytes", ErrTruncated, len(data))
	}
	if data[len(data)-1] != End {
		return Message{}, ErrBadMarker
	}
	for _, b := range data[1 : len(data)-1] {
		if b&0x80 != 0 {
			return Message{}, fmt.Errorf("%w: status byte 0x%02X inside frame", ErrBadMarker, b)
		}
	}

	var model [4]byte
	copy(model[:], data[3:7])

	body := data[headerLen : len(data)-2]
	got := data[len(data)-2]
	if want := Checksum(body); want != got {
		return Message{}, &ChecksumError{Want: want, Got: got}
	}

	payload := make([]byte, len(body)-4)
	copy(payload, body[4:])

	return Message{
		Header: Header{
			Manufacturer: data[1],
			DeviceID:     data[2],
			Model:        model,
		},
		Command:  Command(data[7]),
		Address:  AddressFromBytes(body[:4]),
		Payload:  payload,
		Checksum: got,
	}, nil
}

// EncodeSize splits an RQ1 byte count into four 7-bit bytes.
func EncodeSize(n int) [4]byte {
	return [4]byte{
		byte(n>>21) & 0x7F,
		byte(n>>14) & 0x7F,
		byte(n>>7) & 0x7F,
		byte(n) & 0x7F,
	}
}

// DecodeSize is the inverse of EncodeSize.
func DecodeSize(b []byte) int {
	return int(b[0])<<21 | int(b[1])<<14 | int(b[2])<<7 | int(b[3])
}

// IsRealtime reports whether b is a single-byte system real-time message
// (clock, start, stop, active sensing...). These carry no payload.
func IsRealtime(b byte) bool {
	return b >= 0xF8
}
