// Package param maps logical JD-Xi parameters to their memory addresses and
// converts values between device units and display units.
package param

import (
	"errors"
	"fmt"
	"strings"
)

// Encoding errors. All of them are returned before any byte is sent.
var (
	ErrOutOfRange       = errors.New("param: value out of range")
	ErrUnknownLabel     = errors.New("param: unknown label")
	ErrUnknownParameter = errors.New("param: unknown parameter")
	ErrDuplicateAddress = errors.New("param: duplicate address")
	ErrDuplicateID      = errors.New("param: duplicate parameter id")
	ErrInvalidSpec      = errors.New("param: invalid value spec")
	ErrBadPartial       = errors.New("param: bad partial index")
	ErrPayloadSize      = errors.New("param: payload size mismatch")
)

// Kind selects the conversion formula of a Spec.
type Kind int

const (
	// Linear maps display = device + Offset.
	Linear Kind = iota
	// Bipolar maps device Center to display 0, each side scaled to its
	// display span.
	Bipolar
	// MultiNibble packs the device value into Nibbles 4-bit bytes,
	// display = device + Offset.
	MultiNibble
	// ExtendedSigned stores display+Bias across four Radix-bit bytes.
	ExtendedSigned
	// Enumerated indexes Labels with device - DeviceMin.
	Enumerated
)

var kindNames = map[Kind]string{
	Linear:         "linear",
	Bipolar:        "bipolar",
	MultiNibble:    "nibble",
	ExtendedSigned: "extended",
	Enumerated:     "enum",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown kind %q", ErrInvalidSpec, s)
}

// Spec describes how one parameter's value is encoded.
type Spec struct {
	Kind       Kind
	DeviceMin  int
	DeviceMax  int
	DisplayMin int
	DisplayMax int

	Offset  int      // Linear, MultiNibble
	Center  int      // Bipolar
	Nibbles int      // MultiNibble
	Radix   int      // ExtendedSigned: 4 or 7 bits per byte
	Bias    int      // ExtendedSigned
	Labels  []string // Enumerated
}

// LinearSpec returns a spec for device values min..max shown as value+offset.
func LinearSpec(min, max, offset int) Spec {
	return Spec{
		Kind:       Linear,
		DeviceMin:  min,
		DeviceMax:  max,
		DisplayMin: min + offset,
		DisplayMax: max + offset,
		Offset:     offset,
	}
}

// BipolarSpec returns a spec where device center shows as 0 and the device
// range min..max spreads over dispMin..dispMax.
func BipolarSpec(min, max, center, dispMin, dispMax int) Spec {
	return Spec{
		Kind:       Bipolar,
		DeviceMin:  min,
		DeviceMax:  max,
		DisplayMin: dispMin,
		DisplayMax: dispMax,
		Center:     center,
	}
}

// NibbleSpec returns a spec for a value packed across n nibbles.
func NibbleSpec(n, min, max, offset int) Spec {
	return Spec{
		Kind:       MultiNibble,
		DeviceMin:  min,
		DeviceMax:  max,
		DisplayMin: min + offset,
		DisplayMax: max + offset,
		Offset:     offset,
		Nibbles:    n,
	}
}

// ExtendedSpec returns a spec for -limit..+limit stored as value+bias in
// four radix-bit bytes. A zero bias means bias == limit.
func ExtendedSpec(limit, bias, radix int) Spec {
	if bias == 0 {
		bias = limit
	}
	return Spec{
		Kind:       ExtendedSigned,
		DeviceMin:  bias - limit,
		DeviceMax:  bias + limit,
		DisplayMin: -limit,
		DisplayMax: limit,
		Radix:      radix,
		Bias:       bias,
	}
}

// EnumSpec returns a spec whose device values 0..len(labels)-1 show as labels.
func EnumSpec(labels ...string) Spec {
	return Spec{
		Kind:       Enumerated,
		DeviceMin:  0,
		DeviceMax:  len(labels) - 1,
		DisplayMin: 0,
		DisplayMax: len(labels) - 1,
		Labels:     labels,
	}
}

// Size is the number of payload bytes the value occupies in a frame.
func (s Spec) Size() int {
	switch s.Kind {
	case MultiNibble:
		return s.Nibbles
	case ExtendedSigned:
		return extendedBytes
	default:
		return 1
	}
}

// Validate checks that s is internally consistent and that every
// device value converts to display and back unchanged.
func (s Spec) Validate() error {
	if s.DeviceMin > s.DeviceMax {
		return fmt.Errorf("%w: device min %d > max %d", ErrInvalidSpec, s.DeviceMin, s.DeviceMax)
	}
	if s.DeviceMin < 0 {
		return fmt.Errorf("%w: negative device min %d", ErrInvalidSpec, s.DeviceMin)
	}

	switch s.Kind {
	case Linear:
		if s.DeviceMax > 0x7F {
			return fmt.Errorf("%w: device max %d exceeds 7 bits", ErrInvalidSpec, s.DeviceMax)
		}
		if s.DisplayMin != s.DeviceMin+s.Offset || s.DisplayMax != s.DeviceMax+s.Offset {
			return fmt.Errorf("%w: display range does not match offset %d", ErrInvalidSpec, s.Offset)
		}
	case Bipolar:
		if s.DeviceMax > 0x7F {
			return fmt.Errorf("%w: device max %d exceeds 7 bits", ErrInvalidSpec, s.DeviceMax)
		}
		if s.Center < s.DeviceMin || s.Center > s.DeviceMax {
			return fmt.Errorf("%w: center %d outside %d..%d", ErrInvalidSpec, s.Center, s.DeviceMin, s.DeviceMax)
		}
		if s.DisplayMin > 0 || s.DisplayMax < 0 {
			return fmt.Errorf("%w: display range %d..%d must contain 0", ErrInvalidSpec, s.DisplayMin, s.DisplayMax)
		}
		if err := checkSide(s.Center-s.DeviceMin, -s.DisplayMin); err != nil {
			return err
		}
		if err := checkSide(s.DeviceMax-s.Center, s.DisplayMax); err != nil {
			return err
		}
	case MultiNibble:
		if s.Nibbles < 1 || s.Nibbles > 7 {
			return fmt.Errorf("%w: %d nibbles", ErrInvalidSpec, s.Nibbles)
		}
		if s.DeviceMax > 1<<(4*s.Nibbles)-1 {
			return fmt.Errorf("%w: device max %d does not fit %d nibbles", ErrInvalidSpec, s.DeviceMax, s.Nibbles)
		}
		if s.DisplayMin != s.DeviceMin+s.Offset || s.DisplayMax != s.DeviceMax+s.Offset {
			return fmt.Errorf("%w: display range does not match offset %d", ErrInvalidSpec, s.Offset)
		}
	case ExtendedSigned:
		if s.Radix != 4 && s.Radix != 7 {
			return fmt.Errorf("%w: radix %d", ErrInvalidSpec, s.Radix)
		}
		if s.DeviceMax > 1<<(extendedBytes*s.Radix)-1 {
			return fmt.Errorf("%w: device max %d does not fit radix %d", ErrInvalidSpec, s.DeviceMax, s.Radix)
		}
		if s.DisplayMin != s.DeviceMin-s.Bias || s.DisplayMax != s.DeviceMax-s.Bias {
			return fmt.Errorf("%w: display range does not match bias %d", ErrInvalidSpec, s.Bias)
		}
	case Enumerated:
		if len(s.Labels) == 0 {
			return fmt.Errorf("%w: no labels", ErrInvalidSpec)
		}
		if s.DeviceMax-s.DeviceMin+1 != len(s.Labels) {
			return fmt.Errorf("%w: %d labels for device range %d..%d", ErrInvalidSpec, len(s.Labels), s.DeviceMin, s.DeviceMax)
		}
		if s.DeviceMax > 0x7F {
			return fmt.Errorf("%w: device max %d exceeds 7 bits", ErrInvalidSpec, s.DeviceMax)
		}
		seen := make(map[string]bool, len(s.Labels))
		for _, l := range s.Labels {
			if l == "" || seen[l] {
				return fmt.Errorf("%w: empty or repeated label %q", ErrInvalidSpec, l)
			}
			seen[l] = true
		}
	default:
		return fmt.Errorf("%w: %s", ErrInvalidSpec, s.Kind)
	}
	return nil
}

// checkSide verifies one half of a bipolar range. A display span narrower
// than the device span would merge device values and break the round trip.
func checkSide(device, display int) error {
	if (device == 0) != (display == 0) {
		return fmt.Errorf("%w: bipolar side spans %d device vs %d display steps", ErrInvalidSpec, device, display)
	}
	if display < device {
		return fmt.Errorf("%w: display span %d narrower than device span %d", ErrInvalidSpec, display, device)
	}
	return nil
}
