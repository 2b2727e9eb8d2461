package param

import (
	_ "embed"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"jdximcp/sysex"
)

//go:embed jdxi.yaml
var defaultCatalog []byte

// Catalog is the YAML layout of a parameter table file.
type Catalog struct {
	Parameters []CatalogEntry `yaml:"parameters"`
}

// CatalogEntry is one parameter row. Display bounds default from the kind.
type CatalogEntry struct {
	ID       string        `yaml:"id"`
	Name     string        `yaml:"name"`
	Address  string        `yaml:"address"`
	Kind     string        `yaml:"kind"`
	Min      int           `yaml:"min"`
	Max      int           `yaml:"max"`
	Offset   int           `yaml:"offset"`
	Center   int           `yaml:"center"`
	Display  []int         `yaml:"display"`
	Nibbles  int           `yaml:"nibbles"`
	Radix    int           `yaml:"radix"`
	Limit    int           `yaml:"limit"`
	Bias     int           `yaml:"bias"`
	Labels   []string      `yaml:"labels"`
	Partials *CatalogScope `yaml:"partials"`
}

// CatalogScope describes per-partial offsets.
type CatalogScope struct {
	Field   string `yaml:"field"`
	Offsets []int  `yaml:"offsets"`
}

// Spec builds the value spec described by the entry.
func (c CatalogEntry) Spec() (Spec, error) {
	kind, err := ParseKind(c.Kind)
	if err != nil {
		return Spec{}, err
	}
	switch kind {
	case Linear:
		return LinearSpec(c.Min, c.Max, c.Offset), nil
	case Bipolar:
		if len(c.Display) != 2 {
			return Spec{}, fmt.Errorf("%w: bipolar needs display: [min, max]", ErrInvalidSpec)
		}
		return BipolarSpec(c.Min, c.Max, c.Center, c.Display[0], c.Display[1]), nil
	case MultiNibble:
		return NibbleSpec(c.Nibbles, c.Min, c.Max, c.Offset), nil
	case ExtendedSigned:
		return ExtendedSpec(c.Limit, c.Bias, c.Radix), nil
	case Enumerated:
		return EnumSpec(c.Labels...), nil
	}
	return Spec{}, fmt.Errorf("%w: %s", ErrInvalidSpec, kind)
}

// Scope builds the partial scope described by the entry.
func (c CatalogEntry) Scope() (Scope, error) {
	if c.Partials == nil {
		return Scope{}, nil
	}
	var s Scope
	switch strings.ToLower(c.Partials.Field) {
	case "", "group":
		s.Field = FieldGroup
	case "address":
		s.Field = FieldAddress
	default:
		return Scope{}, fmt.Errorf("%w: partial field %q", ErrInvalidSpec, c.Partials.Field)
	}
	for _, off := range c.Partials.Offsets {
		if off < 0 || off > 0x7F {
			return Scope{}, fmt.Errorf("%w: partial offset %d", ErrInvalidSpec, off)
		}
		s.Offsets = append(s.Offsets, byte(off))
	}
	return s, nil
}

// LoadCatalog reads a YAML parameter table into a new registry.
func LoadCatalog(r io.Reader) (*Registry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML parameter table into a new registry.
func ParseCatalog(data []byte) (*Registry, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	reg := NewRegistry()
	for i, row := range cat.Parameters {
		if row.ID == "" {
			return nil, fmt.Errorf("catalog entry %d: missing id", i)
		}
		addr, err := sysex.ParseAddress(row.Address)
		if err != nil {
			return nil, fmt.Errorf("catalog entry %s: %w", row.ID, err)
		}
		spec, err := row.Spec()
		if err != nil {
			return nil, fmt.Errorf("catalog entry %s: %w", row.ID, err)
		}
		scope, err := row.Scope()
		if err != nil {
			return nil, fmt.Errorf("catalog entry %s: %w", row.ID, err)
		}
		name := row.Name
		if name == "" {
			name = row.ID
		}
		e := &Entry{ID: ID(row.ID), Name: name, Base: addr, Spec: spec, Scope: scope}
		if err := reg.add(e); err != nil {
			return nil, fmt.Errorf("catalog entry %s: %w", row.ID, err)
		}
	}
	return reg, nil
}

// DefaultCatalog returns the built-in JD-Xi table.
func DefaultCatalog() (*Registry, error) {
	return ParseCatalog(defaultCatalog)
}
