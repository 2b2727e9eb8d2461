package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"jdximcp/param"
	"jdximcp/sysex"
	"jdximcp/transport"
)

// Change is a parameter value reported by the device.
type Change struct {
	ID      param.ID
	Name    string
	Partial int
	Address sysex.Address
	Device  int
	Value   param.Value
}

type Options struct {
	// Channel is the zero-based MIDI channel used for preset loads.
	Channel uint8

	// Expect is checked against the identity reply. Zero means JDXi.
	Expect          Expect
	IdentifyTimeout time.Duration

	// FollowUps are read after every preset load to refresh state.
	FollowUps []FollowUp
	Logger    *slog.Logger
}

// Controller is the API the CLI and MCP server drive.
type Controller struct {
	session *transport.Session
	reg     *param.Registry
	seq     *Sequencer
	opts    Options
	log     *slog.Logger

	// handshakeMu serialises handshakes; idMu only guards identity.
	handshakeMu sync.Mutex
	idMu        sync.Mutex
	identity    *Identity

	handlersMu sync.RWMutex
	onChange   []func(Change)
}

// NewController attaches to s. Parameter changes arriving unsolicited on
// s are decoded with reg and passed to OnParameterChanged handlers.
func NewController(s *transport.Session, reg *param.Registry, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Expect.Manufacturer == nil {
		opts.Expect = JDXi
	}
	if opts.IdentifyTimeout <= 0 {
		opts.IdentifyTimeout = 2 * time.Second
	}
	c := &Controller{
		session: s,
		reg:     reg,
		seq:     NewSequencer(s, opts.Channel, s.Header(), opts.Logger),
		opts:    opts,
		log:     opts.Logger,
	}
	s.OnSysEx(c.handleSysEx)
	return c
}

// Registry is the parameter table the controller encodes with.
func (c *Controller) Registry() *param.Registry { return c.reg }

// Sequencer exposes the preset load state.
func (c *Controller) Sequencer() *Sequencer { return c.seq }

// encode resolves id and converts v, without any I/O.
func (c *Controller) encode(id param.ID, partial int, v param.Value) (*param.Entry, sysex.Address, []byte, error) {
	e, err := c.reg.Lookup(id)
	if err != nil {
		return nil, sysex.Address{}, nil, err
	}
	addr, err := e.Address(partial)
	if err != nil {
		return nil, sysex.Address{}, nil, err
	}
	d, err := param.ToDevice(v, e.Spec)
	if err != nil {
		return nil, sysex.Address{}, nil, fmt.Errorf("%s: %w", id, err)
	}
	payload, err := param.Encode(d, e.Spec)
	if err != nil {
		return nil, sysex.Address{}, nil, fmt.Errorf("%s: %w", id, err)
	}
	return e, addr, payload, nil
}

// SetParameter writes a display value. Encoding errors are returned
// before anything is sent.
func (c *Controller) SetParameter(ctx context.Context, id param.ID, partial int, v param.Value) error {
	_, addr, payload, err := c.encode(id, partial, v)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.session.Send(c.session.Header().DataSet(addr, payload)); err != nil {
		return fmt.Errorf("set %s: %w", id, err)
	}
	c.log.Debug("parameter set", "id", id, "partial", partial, "address", addr.String(), "value", v.String())
	return nil
}

// GetParameter reads the current value from the device.
func (c *Controller) GetParameter(ctx context.Context, id param.ID, partial int) (param.Value, error) {
	e, err := c.reg.Lookup(id)
	if err != nil {
		return param.Value{}, err
	}
	addr, err := e.Address(partial)
	if err != nil {
		return param.Value{}, err
	}
	size := e.Spec.Size()
	m, err := c.session.ReadParameter(ctx, addr, size, 0)
	if err != nil {
		return param.Value{}, fmt.Errorf("get %s: %w", id, err)
	}
	if len(m.Payload) < size {
		return param.Value{}, fmt.Errorf("get %s: %w: %d bytes, want %d", id, param.ErrPayloadSize, len(m.Payload), size)
	}
	v, err := param.DecodeValue(m.Payload[:size], e.Spec)
	if err != nil {
		return param.Value{}, fmt.Errorf("get %s: %w", id, err)
	}
	return v, nil
}

// LoadPreset selects bank and the one-based program, then sends the
// configured follow-up reads.
func (c *Controller) LoadPreset(ctx context.Context, bank, program int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.seq.Load(bank, program, c.opts.FollowUps...)
}

// OnParameterChanged registers fn for values the device transmits on its
// own, including replies to preset follow-up reads. fn runs on the
// transport's delivery goroutine.
func (c *Controller) OnParameterChanged(fn func(Change)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onChange = append(c.onChange, fn)
}

// Identify returns the cached identity, running the handshake the first
// time.
func (c *Controller) Identify(ctx context.Context) (Identity, error) {
	c.handshakeMu.Lock()
	defer c.handshakeMu.Unlock()
	if id, ok := c.Identity(); ok {
		return id, nil
	}

	id, err := Identify(ctx, c.session, c.opts.Expect, c.opts.IdentifyTimeout)
	if err != nil {
		return Identity{}, err
	}
	c.log.Info("device identified", "identity", id.String())

	c.idMu.Lock()
	c.identity = &id
	c.idMu.Unlock()
	return id.clone(), nil
}

// Identity returns the identity of the last successful handshake.
func (c *Controller) Identity() (Identity, bool) {
	c.idMu.Lock()
	defer c.idMu.Unlock()
	if c.identity == nil {
		return Identity{}, false
	}
	return c.identity.clone(), true
}

// handleSysEx decodes a DT1 block into parameter changes. A block may
// cover several consecutive parameters.
func (c *Controller) handleSysEx(m sysex.Message) {
	if m.Command != sysex.CmdDT1 {
		return
	}

	var changes []Change
	for i := 0; i < len(m.Payload); {
		addr := m.Address.Add(i)
		match, ok := c.reg.ReverseLookup(addr)
		if !ok {
			i++
			continue
		}
		size := match.Entry.Spec.Size()
		if i+size > len(m.Payload) {
			c.log.Debug("short value in DT1", "id", match.Entry.ID, "address", addr.String())
			break
		}
		raw := m.Payload[i : i+size]
		i += size

		d, err := param.Decode(raw, match.Entry.Spec)
		if err != nil {
			c.log.Warn("undecodable parameter value", "id", match.Entry.ID, "address", addr.String(), "err", err)
			continue
		}
		v, err := param.ToDisplay(d, match.Entry.Spec)
		if err != nil {
			c.log.Warn("undecodable parameter value", "id", match.Entry.ID, "address", addr.String(), "err", err)
			continue
		}
		changes = append(changes, Change{
			ID:      match.Entry.ID,
			Name:    match.Entry.Name,
			Partial: match.Partial,
			Address: addr,
			Device:  d,
			Value:   v,
		})
	}
	if len(changes) == 0 {
		return
	}

	c.handlersMu.RLock()
	handlers := c.onChange
	c.handlersMu.RUnlock()
	for _, ch := range changes {
		for _, fn := range handlers {
			fn(ch)
		}
	}
}
