package sysex

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Address locates one parameter in the device memory map.
type Address struct {
	Area    byte
	Part    byte
	Group   byte
	Address byte
}

// AddressFromBytes reads the first four bytes of b.
func AddressFromBytes(b []byte) Address {
	return Address{Area: b[0], Part: b[1], Group: b[2], Address: b[3]}
}

// Bytes returns the address in wire order.
func (a Address) Bytes() [4]byte {
	return [4]byte{a.Area, a.Part, a.Group, a.Address}
}

func (a Address) String() string {
	return fmt.Sprintf("%02X %02X %02X %02X", a.Area, a.Part, a.Group, a.Address)
}

// ParseAddress reads an address written as four hex bytes, with or without
// separating spaces ("19 01 20 0C" or "1901200C").
func ParseAddress(s string) (Address, error) {
	b, err := hex.DecodeString(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	if err != nil || len(b) != 4 {
		return Address{}, fmt.Errorf("invalid address %q", s)
	}
	for _, v := range b {
		if v > 0x7F {
			return Address{}, fmt.Errorf("invalid address %q: byte 0x%02X exceeds 7 bits", s, v)
		}
	}
	return AddressFromBytes(b), nil
}

// Offset returns the address as a 28-bit number, seven bits per byte.
func (a Address) Offset() int {
	return int(a.Area)<<21 | int(a.Part)<<14 | int(a.Group)<<7 | int(a.Address)
}

// Add advances a by n bytes in the device memory map.
func (a Address) Add(n int) Address {
	v := (a.Offset() + n) & (1<<28 - 1)
	return Address{
		Area:    byte(v >> 21 & 0x7F),
		Part:    byte(v >> 14 & 0x7F),
		Group:   byte(v >> 7 & 0x7F),
		Address: byte(v & 0x7F),
	}
}
