// Package device drives a JD-Xi over a transport session: the identity
// handshake, preset loading and parameter reads and writes.
package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"jdximcp/sysex"
	"jdximcp/transport"
)

var (
	ErrHandshakeTimeout = errors.New("device: identity handshake timed out")
	ErrUnexpectedDevice = errors.New("device: unexpected device")
)

// Identity is what a device reported in its identity reply.
type Identity struct {
	DeviceID     byte
	Manufacturer []byte
	Family       [2]byte
	Model        [2]byte
	Version      []byte
}

func (i Identity) String() string {
	return fmt.Sprintf("manufacturer % X family % X model % X version % X", i.Manufacturer, i.Family, i.Model, i.Version)
}

func (i Identity) clone() Identity {
	i.Manufacturer = append([]byte(nil), i.Manufacturer...)
	i.Version = append([]byte(nil), i.Version...)
	return i
}

// Expect is the manufacturer and family a reply must carry.
type Expect struct {
	Manufacturer []byte
	Family       [2]byte
}

// JDXi matches a Roland JD-Xi.
var JDXi = Expect{Manufacturer: []byte{sysex.RolandID}, Family: [2]byte{0x0E, 0x03}}

func (e Expect) Matches(id Identity) bool {
	return bytes.Equal(e.Manufacturer, id.Manufacturer) && e.Family == id.Family
}

// Identify runs the universal identity exchange on s and checks the reply
// against expect.
func Identify(ctx context.Context, s *transport.Session, expect Expect, timeout time.Duration) (Identity, error) {
	req := sysex.IdentityRequest(s.Header().DeviceID)
	r, err := s.Request(ctx, transport.IdentityKey, req, timeout)
	if err != nil {
		if errors.Is(err, transport.ErrRequestTimeout) {
			return Identity{}, fmt.Errorf("%w: %w", ErrHandshakeTimeout, err)
		}
		return Identity{}, err
	}

	id := Identity{
		DeviceID:     r.Identity.DeviceID,
		Manufacturer: r.Identity.Manufacturer,
		Family:       r.Identity.Family,
		Model:        r.Identity.Model,
		Version:      r.Identity.Version,
	}
	if !expect.Matches(id) {
		return Identity{}, fmt.Errorf("%w: %s", ErrUnexpectedDevice, id)
	}
	return id, nil
}
