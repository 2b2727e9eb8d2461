package param

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Value is a caller-facing display value: a number, or a label for
// enumerated parameters.
type Value struct {
	Number int
	Label  string
}

// Number returns a numeric display value.
func Number(n int) Value { return Value{Number: n} }

// Label returns an enumerated display value.
func Label(s string) Value { return Value{Label: s} }

// IsLabel reports whether v carries a label.
func (v Value) IsLabel() bool { return v.Label != "" }

func (v Value) String() string {
	if v.IsLabel() {
		return v.Label
	}
	return strconv.Itoa(v.Number)
}

// ParseValue reads a command-line or tool argument: integers become
// numbers, anything else a label.
func ParseValue(s string) Value {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return Number(n)
	}
	return Label(s)
}

// MarshalJSON writes labels as strings and numbers as numbers.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsLabel() {
		return json.Marshal(v.Label)
	}
	return json.Marshal(v.Number)
}

// UnmarshalJSON accepts either a JSON number or a JSON string.
func (v *Value) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*v = Number(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*v = ParseValue(s)
	return nil
}
