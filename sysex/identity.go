package sysex

import (
	"fmt"

	gmsysex "gitlab.com/gomidi/midi/v2/sysex"
)

const (
	universalNonRealtime byte = 0x7E
	subGeneralInfo       byte = 0x06
	subIdentityReply     byte = 0x02

	// BroadcastDevice addresses every device on the bus.
	BroadcastDevice byte = 0x7F
)

// IdentityRequest builds the universal identity request F0 7E dev 06 01 F7.
func IdentityRequest(dev byte) Frame {
	return Frame(gmsysex.IdentityRequest(dev))
}

// IdentityReply holds the raw fields of a universal identity reply.
type IdentityReply struct {
	DeviceID     byte
	Manufacturer []byte // one byte, or three when the first is 0x00
	Family       [2]byte
	Model        [2]byte
	Version      []byte
}

// IsIdentityReply reports whether data starts like a universal identity
// reply (F0 7E xx 06 02).
func IsIdentityReply(data []byte) bool {
	return len(data) >= 5 &&
		data[0] == Start &&
		data[1] == universalNonRealtime &&
		data[3] == subGeneralInfo &&
		data[4] == subIdentityReply
}

// ParseIdentityReply decodes
// F0 7E dev 06 02 <mfr> <family x2> <model x2> <version...> F7.
func ParseIdentityReply(data []byte) (IdentityReply, error) {
	if len(data) < 5 {
		return IdentityReply{}, ErrTruncated
	}
	if !IsIdentityReply(data) {
		return IdentityReply{}, fmt.Errorf("%w: not an identity reply", ErrBadMarker)
	}
	if data[len(data)-1] != End {
		return IdentityReply{}, ErrBadMarker
	}

	body := data[5 : len(data)-1]
	mfrLen := 1
	if len(body) > 0 && body[0] == 0x00 {
		mfrLen = 3
	}
	if len(body) < mfrLen+4 {
		return IdentityReply{}, fmt.Errorf("%w: identity reply has %d data bytes", ErrTruncated, len(body))
	}

	r := IdentityReply{DeviceID: data[2]}
	r.Manufacturer = append([]byte(nil), body[:mfrLen]...)
	body = body[mfrLen:]
	copy(r.Family[:], body[0:2])
	copy(r.Model[:], body[2:4])
	r.Version = append([]byte(nil), body[4:]...)
	return r, nil
}

// Frame encodes r as it would appear on the wire.
func (r IdentityReply) Frame() Frame {
	out := Frame{Start, universalNonRealtime, r.DeviceID, subGeneralInfo, subIdentityReply}
	out = append(out, r.Manufacturer...)
	out = append(out, r.Family[:]...)
	out = append(out, r.Model[:]...)
	out = append(out, r.Version...)
	return append(out, End)
}
