package param

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jdximcp/sysex"
)

const filterCutoff ID = "filter_cutoff"

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.Register(filterCutoff, sysex.Address{0x19, 0x01, 0x00, 0x0C}, LinearSpec(0, 127, 0), Partials(0x00, 0x20, 0x40)))
	require.NoError(t, r.Register("tone_level", sysex.Address{0x19, 0x01, 0x10, 0x0C}, LinearSpec(0, 127, 0), Scope{}))
	require.NoError(t, r.Register("lfo_rate", sysex.Address{0x19, 0x01, 0x00, 0x1D}, LinearSpec(0, 127, 0), Scope{Field: FieldAddress, Offsets: []byte{0x00, 0x30}}))
	return r
}

func TestResolveAppliesPartialOffset(t *testing.T) {
	r := newTestRegistry(t)

	a, err := r.Resolve(filterCutoff, 2)
	require.NoError(t, err)
	assert.Equal(t, sysex.Address{0x19, 0x01, 0x40, 0x0C}, a)

	a, err = r.Resolve(filterCutoff, 1)
	require.NoError(t, err)
	assert.Equal(t, sysex.Address{0x19, 0x01, 0x20, 0x0C}, a)

	a, err = r.Resolve("lfo_rate", 1)
	require.NoError(t, err)
	assert.Equal(t, sysex.Address{0x19, 0x01, 0x00, 0x4D}, a)

	a, err = r.Resolve("tone_level", NoPartial)
	require.NoError(t, err)
	assert.Equal(t, sysex.Address{0x19, 0x01, 0x10, 0x0C}, a)
}

func TestResolveErrors(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Resolve("nope", NoPartial)
	assert.ErrorIs(t, err, ErrUnknownParameter)

	_, err = r.Resolve(filterCutoff, 3)
	assert.ErrorIs(t, err, ErrBadPartial)

	_, err = r.Resolve(filterCutoff, NoPartial)
	assert.ErrorIs(t, err, ErrBadPartial)

	_, err = r.Resolve("tone_level", 0)
	assert.ErrorIs(t, err, ErrBadPartial)
}

func TestReverseLookup(t *testing.T) {
	r := newTestRegistry(t)

	for partial := 0; partial < 3; partial++ {
		a, err := r.Resolve(filterCutoff, partial)
		require.NoError(t, err)

		m, ok := r.ReverseLookup(a)
		require.True(t, ok, "partial %d", partial)
		assert.Equal(t, filterCutoff, m.Entry.ID)
		assert.Equal(t, partial, m.Partial)
	}

	m, ok := r.ReverseLookup(sysex.Address{0x19, 0x01, 0x10, 0x0C})
	require.True(t, ok)
	assert.Equal(t, ID("tone_level"), m.Entry.ID)
	assert.Equal(t, NoPartial, m.Partial)

	m, ok = r.ReverseLookup(sysex.Address{0x19, 0x01, 0x00, 0x4D})
	require.True(t, ok)
	assert.Equal(t, ID("lfo_rate"), m.Entry.ID)
	assert.Equal(t, 1, m.Partial)

	_, ok = r.ReverseLookup(sysex.Address{0x19, 0x01, 0x60, 0x0C})
	assert.False(t, ok)
	_, ok = r.ReverseLookup(sysex.Address{0x18, 0x00, 0x00, 0x00})
	assert.False(t, ok)
}

func TestRegisterRejectsCollisions(t *testing.T) {
	r := newTestRegistry(t)

	// Lands on filter_cutoff partial 1.
	err := r.Register("other", sysex.Address{0x19, 0x01, 0x20, 0x0C}, LinearSpec(0, 127, 0), Scope{})
	assert.ErrorIs(t, err, ErrDuplicateAddress)

	// Partial 2 of this one lands on tone_level.
	err = r.Register("other", sysex.Address{0x19, 0x01, 0x00, 0x0C}, LinearSpec(0, 127, 0), Partials(0x01, 0x02, 0x10))
	assert.ErrorIs(t, err, ErrDuplicateAddress)

	// Same offset twice.
	err = r.Register("other", sysex.Address{0x19, 0x02, 0x00, 0x0C}, LinearSpec(0, 127, 0), Partials(0x00, 0x00))
	assert.ErrorIs(t, err, ErrDuplicateAddress)

	// Same group address in another area is fine.
	err = r.Register("other", sysex.Address{0x18, 0x01, 0x20, 0x0C}, LinearSpec(0, 127, 0), Scope{})
	assert.NoError(t, err)

	err = r.Register("other", sysex.Address{0x18, 0x01, 0x21, 0x0C}, LinearSpec(0, 127, 0), Scope{})
	assert.ErrorIs(t, err, ErrDuplicateID)

	err = r.Register("bad", sysex.Address{0x18, 0x01, 0x30, 0x0C}, LinearSpec(0, 300, 0), Scope{})
	assert.ErrorIs(t, err, ErrInvalidSpec)

	err = r.Register("overflow", sysex.Address{0x18, 0x01, 0x70, 0x0C}, LinearSpec(0, 127, 0), Partials(0x20))
	assert.ErrorIs(t, err, ErrInvalidSpec)

	assert.Equal(t, 4, r.Len())
}

func TestDefaultCatalog(t *testing.T) {
	r, err := DefaultCatalog()
	require.NoError(t, err)
	require.Greater(t, r.Len(), 20)

	a, err := r.Resolve("digital1.partial.filter_cutoff", 0)
	require.NoError(t, err)
	assert.Equal(t, sysex.Address{0x19, 0x01, 0x20, 0x0C}, a)

	// Every concrete address must map back to the parameter it came from.
	for _, id := range r.IDs() {
		e, err := r.Lookup(id)
		require.NoError(t, err)

		partials := []int{NoPartial}
		if e.Scope.Scoped() {
			partials = partials[:0]
			for i := range e.Scope.Offsets {
				partials = append(partials, i)
			}
		}
		for _, p := range partials {
			a, err := e.Address(p)
			require.NoError(t, err)
			m, ok := r.ReverseLookup(a)
			require.True(t, ok, "%s partial %d", id, p)
			assert.Equal(t, id, m.Entry.ID)
			assert.Equal(t, p, m.Partial)
		}
	}

	e, err := r.Lookup("program.effect1.param1")
	require.NoError(t, err)
	assert.Equal(t, ExtendedSigned, e.Spec.Kind)
	assert.Equal(t, "Effect 1 Parameter 1", e.Name)
}

func TestParseCatalogErrors(t *testing.T) {
	cases := map[string]string{
		"missing id":   "parameters:\n  - address: \"19 01 00 00\"\n    kind: linear\n    max: 127\n",
		"bad address":  "parameters:\n  - id: x\n    address: \"19 01\"\n    kind: linear\n    max: 127\n",
		"bad kind":     "parameters:\n  - id: x\n    address: \"19 01 00 00\"\n    kind: curve\n",
		"bad bipolar":  "parameters:\n  - id: x\n    address: \"19 01 00 00\"\n    kind: bipolar\n    max: 127\n    center: 64\n",
		"bad field":    "parameters:\n  - id: x\n    address: \"19 01 00 00\"\n    kind: linear\n    max: 127\n    partials: {field: part, offsets: [1]}\n",
		"duplicate":    "parameters:\n  - id: x\n    address: \"19 01 00 00\"\n    kind: linear\n    max: 127\n  - id: y\n    address: \"19 01 00 00\"\n    kind: linear\n    max: 127\n",
		"invalid yaml": "parameters: [",
	}
	for name, doc := range cases {
		_, err := LoadCatalog(strings.NewReader(doc))
		assert.Error(t, err, name)
	}
}
