package param

import "fmt"

const extendedBytes = 4

// ToDevice converts a display value to device units. Out-of-range input
// fails with ErrOutOfRange; nothing is ever clamped.
func ToDevice(v Value, s Spec) (int, error) {
	if s.Kind == Enumerated {
		if !v.IsLabel() {
			return 0, fmt.Errorf("%w: %d is not one of %v", ErrUnknownLabel, v.Number, s.Labels)
		}
		for i, l := range s.Labels {
			if l == v.Label {
				return s.DeviceMin + i, nil
			}
		}
		return 0, fmt.Errorf("%w: %q is not one of %v", ErrUnknownLabel, v.Label, s.Labels)
	}

	if v.IsLabel() {
		return 0, fmt.Errorf("%w: %q given for a numeric parameter", ErrUnknownLabel, v.Label)
	}
	n := v.Number
	if n < s.DisplayMin || n > s.DisplayMax {
		return 0, fmt.Errorf("%w: %d not in %d..%d", ErrOutOfRange, n, s.DisplayMin, s.DisplayMax)
	}

	switch s.Kind {
	case Linear, MultiNibble:
		return n - s.Offset, nil
	case Bipolar:
		switch {
		case n < 0:
			return s.Center - roundDiv(-n*(s.Center-s.DeviceMin), -s.DisplayMin), nil
		case n > 0:
			return s.Center + roundDiv(n*(s.DeviceMax-s.Center), s.DisplayMax), nil
		default:
			return s.Center, nil
		}
	case ExtendedSigned:
		return n + s.Bias, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrInvalidSpec, s.Kind)
}

// ToDisplay converts a device value to display units.
func ToDisplay(d int, s Spec) (Value, error) {
	if d < s.DeviceMin || d > s.DeviceMax {
		return Value{}, fmt.Errorf("%w: device value %d not in %d..%d", ErrOutOfRange, d, s.DeviceMin, s.DeviceMax)
	}

	switch s.Kind {
	case Linear, MultiNibble:
		return Number(d + s.Offset), nil
	case Bipolar:
		switch {
		case d < s.Center:
			return Number(-roundDiv((s.Center-d)*(-s.DisplayMin), s.Center-s.DeviceMin)), nil
		case d > s.Center:
			return Number(roundDiv((d-s.Center)*s.DisplayMax, s.DeviceMax-s.Center)), nil
		default:
			return Number(0), nil
		}
	case ExtendedSigned:
		return Number(d - s.Bias), nil
	case Enumerated:
		return Label(s.Labels[d-s.DeviceMin]), nil
	}
	return Value{}, fmt.Errorf("%w: %s", ErrInvalidSpec, s.Kind)
}

// roundDiv divides non-negative a by positive b, rounding half up.
func roundDiv(a, b int) int {
	return (2*a + b) / (2 * b)
}

// Encode renders a device value as frame payload bytes.
func Encode(d int, s Spec) ([]byte, error) {
	if d < s.DeviceMin || d > s.DeviceMax {
		return nil, fmt.Errorf("%w: device value %d not in %d..%d", ErrOutOfRange, d, s.DeviceMin, s.DeviceMax)
	}
	switch s.Kind {
	case MultiNibble:
		return PackNibbles(d, s.Nibbles), nil
	case ExtendedSigned:
		return packRadix(d, extendedBytes, s.Radix), nil
	default:
		return []byte{byte(d)}, nil
	}
}

// Decode reads a device value from frame payload bytes. Extra trailing
// bytes are an error; devices answer RQ1 with exactly the requested size.
func Decode(payload []byte, s Spec) (int, error) {
	if len(payload) != s.Size() {
		return 0, fmt.Errorf("%w: got %d bytes, want %d", ErrPayloadSize, len(payload), s.Size())
	}

	var d int
	switch s.Kind {
	case MultiNibble:
		for _, b := range payload {
			if b > 0x0F {
				return 0, fmt.Errorf("%w: nibble byte 0x%02X", ErrOutOfRange, b)
			}
		}
		d = UnpackNibbles(payload)
	case ExtendedSigned:
		var err error
		if d, err = unpackRadix(payload, s.Radix); err != nil {
			return 0, err
		}
	default:
		d = int(payload[0])
	}

	if d < s.DeviceMin || d > s.DeviceMax {
		return 0, fmt.Errorf("%w: device value %d not in %d..%d", ErrOutOfRange, d, s.DeviceMin, s.DeviceMax)
	}
	return d, nil
}

// PackNibbles splits v into n big-endian 4-bit bytes.
func PackNibbles(v, n int) []byte {
	return packRadix(v, n, 4)
}

// UnpackNibbles is the inverse of PackNibbles; n is len(b).
func UnpackNibbles(b []byte) int {
	v := 0
	for _, x := range b {
		v = v<<4 | int(x&0x0F)
	}
	return v
}

func packRadix(v, n, bits int) []byte {
	mask := 1<<bits - 1
	out := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = byte(v & mask)
		v >>= bits
	}
	return out
}

func unpackRadix(b []byte, bits int) (int, error) {
	mask := byte(1<<bits - 1)
	v := 0
	for _, x := range b {
		if x&^mask != 0 {
			return 0, fmt.Errorf("%w: byte 0x%02X exceeds %d bits", ErrOutOfRange, x, bits)
		}
		v = v<<bits | int(x)
	}
	return v, nil
}

// EncodeValue converts a display value straight to payload bytes.
func EncodeValue(v Value, s Spec) ([]byte, error) {
	d, err := ToDevice(v, s)
	if err != nil {
		return nil, err
	}
	return Encode(d, s)
}

// DecodeValue converts payload bytes straight to a display value.
func DecodeValue(payload []byte, s Spec) (Value, error) {
	d, err := Decode(payload, s)
	if err != nil {
		return Value{}, err
	}
	return ToDisplay(d, s)
}
