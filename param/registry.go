package param

import (
	"fmt"
	"sort"
	"sync"

	"jdximcp/sysex"
)

// ID names one logical parameter, e.g. "digital1.partial.filter_cutoff".
type ID string

// NoPartial is passed to Resolve for parameters that are not partial-scoped.
const NoPartial = -1

// Field selects which address byte a partial offset is added to.
type Field int

const (
	FieldGroup Field = iota
	FieldAddress
)

func (f Field) String() string {
	if f == FieldAddress {
		return "address"
	}
	return "group"
}

// Scope lists the per-partial offsets of a parameter whose group layout is
// repeated for every partial. A zero Scope is a global parameter.
type Scope struct {
	Field   Field
	Offsets []byte
}

// Partials returns Scope{FieldGroup, offsets}.
func Partials(offsets ...byte) Scope {
	return Scope{Field: FieldGroup, Offsets: offsets}
}

// Scoped reports whether the parameter is repeated per partial.
func (s Scope) Scoped() bool { return len(s.Offsets) > 0 }

// Entry is one registered parameter.
type Entry struct {
	ID    ID
	Name  string
	Base  sysex.Address
	Spec  Spec
	Scope Scope
}

// Address returns the concrete address for a partial index.
func (e *Entry) Address(partial int) (sysex.Address, error) {
	if !e.Scope.Scoped() {
		if partial != NoPartial {
			return sysex.Address{}, fmt.Errorf("%w: %s is not partial-scoped", ErrBadPartial, e.ID)
		}
		return e.Base, nil
	}
	if partial < 0 || partial >= len(e.Scope.Offsets) {
		return sysex.Address{}, fmt.Errorf("%w: %s has partials 0..%d, got %d", ErrBadPartial, e.ID, len(e.Scope.Offsets)-1, partial)
	}
	return addOffset(e.Base, e.Scope.Field, e.Scope.Offsets[partial])
}

// Match is the result of a reverse lookup.
type Match struct {
	Entry   *Entry
	Partial int
}

type candidate struct {
	field  Field
	offset byte
}

// Registry is the static parameter table. It is filled once at startup and
// read concurrently afterwards.
type Registry struct {
	mu         sync.RWMutex
	byID       map[ID]*Entry
	bases      map[sysex.Address][]*Entry
	claimed    map[sysex.Address]ID
	candidates []candidate
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:    make(map[ID]*Entry),
		bases:   make(map[sysex.Address][]*Entry),
		claimed: make(map[sysex.Address]ID),
	}
}

// Register adds a parameter. Every concrete address it resolves to must be
// unclaimed within its area.
func (r *Registry) Register(id ID, base sysex.Address, spec Spec, scope Scope) error {
	return r.add(&Entry{ID: id, Name: string(id), Base: base, Spec: spec, Scope: scope})
}

func (r *Registry) add(e *Entry) error {
	if err := e.Spec.Validate(); err != nil {
		return fmt.Errorf("%s: %w", e.ID, err)
	}

	addrs, err := concreteAddresses(e)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[e.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, e.ID)
	}
	seen := make(map[sysex.Address]bool, len(addrs))
	for _, a := range addrs {
		if other, ok := r.claimed[a]; ok {
			return fmt.Errorf("%w: %s at %s already claimed by %s", ErrDuplicateAddress, e.ID, a, other)
		}
		if seen[a] {
			return fmt.Errorf("%w: %s resolves twice to %s", ErrDuplicateAddress, e.ID, a)
		}
		seen[a] = true
	}

	for _, a := range addrs {
		r.claimed[a] = e.ID
	}
	r.byID[e.ID] = e
	r.bases[e.Base] = append(r.bases[e.Base], e)
	for _, off := range e.Scope.Offsets {
		r.addCandidate(candidate{field: e.Scope.Field, offset: off})
	}
	return nil
}

func (r *Registry) addCandidate(c candidate) {
	for _, have := range r.candidates {
		if have == c {
			return
		}
	}
	r.candidates = append(r.candidates, c)
}

func concreteAddresses(e *Entry) ([]sysex.Address, error) {
	if !e.Scope.Scoped() {
		return []sysex.Address{e.Base}, nil
	}
	out := make([]sysex.Address, 0, len(e.Scope.Offsets))
	for i := range e.Scope.Offsets {
		a, err := e.Address(i)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Lookup returns the entry registered under id.
func (r *Registry) Lookup(id ID) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParameter, id)
	}
	return e, nil
}

// Resolve returns the concrete address of id for a partial index, or
// NoPartial for a global parameter.
func (r *Registry) Resolve(id ID, partial int) (sysex.Address, error) {
	e, err := r.Lookup(id)
	if err != nil {
		return sysex.Address{}, err
	}
	return e.Address(partial)
}

// ReverseLookup finds the parameter at a concrete address. It first tries
// the address as a global base, then subtracts each known partial offset in
// turn until a registered base matches. Unknown addresses are not an error:
// devices transmit bytes the table may not model.
func (r *Registry) ReverseLookup(addr sysex.Address) (Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.bases[addr] {
		if !e.Scope.Scoped() {
			return Match{Entry: e, Partial: NoPartial}, true
		}
	}

	for _, c := range r.candidates {
		base, ok := subOffset(addr, c.field, c.offset)
		if !ok {
			continue
		}
		for _, e := range r.bases[base] {
			if e.Scope.Field != c.field {
				continue
			}
			for i, off := range e.Scope.Offsets {
				if off == c.offset {
					return Match{Entry: e, Partial: i}, true
				}
			}
		}
	}
	return Match{}, false
}

// IDs returns every registered id in sorted order.
func (r *Registry) IDs() []ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ID, 0, len(r.byID))
	for id := range r.byID {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of registered parameters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func addOffset(a sysex.Address, f Field, off byte) (sysex.Address, error) {
	p := fieldPtr(&a, f)
	v := int(*p) + int(off)
	if v > 0x7F {
		return sysex.Address{}, fmt.Errorf("%w: %s + 0x%02X overflows the %s byte", ErrInvalidSpec, a, off, f)
	}
	*p = byte(v)
	return a, nil
}

func subOffset(a sysex.Address, f Field, off byte) (sysex.Address, bool) {
	p := fieldPtr(&a, f)
	if *p < off {
		return sysex.Address{}, false
	}
	*p -= off
	return a, true
}

func fieldPtr(a *sysex.Address, f Field) *byte {
	if f == FieldAddress {
		return &a.Address
	}
	return &a.Group
}
