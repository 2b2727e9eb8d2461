package transport

import (
	"fmt"
	"strings"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// MIDIPort is a Link over a pair of gomidi driver ports. A MIDI driver
// must be registered by the program (for example by importing rtmididrv).
type MIDIPort struct {
	in   drivers.In
	out  drivers.Out
	send func(midi.Message) error

	mu   sync.Mutex
	stop func()
}

// OpenMIDIPort opens the first input and output whose names contain hint.
func OpenMIDIPort(hint string) (*MIDIPort, error) {
	in, err := findInPort(hint)
	if err != nil {
		return nil, err
	}
	out, err := findOutPort(hint)
	if err != nil {
		return nil, err
	}
	return NewMIDIPort(in, out)
}

// NewMIDIPort wraps already discovered ports.
func NewMIDIPort(in drivers.In, out drivers.Out) (*MIDIPort, error) {
	send, err := midi.SendTo(out)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", out, err)
	}
	return &MIDIPort{in: in, out: out, send: send}, nil
}

func (p *MIDIPort) String() string {
	return fmt.Sprintf("in=%q out=%q", p.in.String(), p.out.String())
}

func (p *MIDIPort) Write(data []byte) error {
	return p.send(midi.Message(data))
}

func (p *MIDIPort) Listen(fn func([]byte)) error {
	stop, err := midi.ListenTo(p.in, func(msg midi.Message, _ int32) {
		fn(msg.Bytes())
	}, midi.UseSysEx(), midi.SysExBufferSize(4096))
	if err != nil {
		return fmt.Errorf("listen %s: %w", p.in, err)
	}
	p.mu.Lock()
	p.stop = stop
	p.mu.Unlock()
	return nil
}

func (p *MIDIPort) Close() error {
	p.mu.Lock()
	stop := p.stop
	p.stop = nil
	p.mu.Unlock()
	if stop != nil {
		stop()
	}
	errOut := p.out.Close()
	errIn := p.in.Close()
	if errOut != nil {
		return errOut
	}
	return errIn
}

// PortNames lists the MIDI inputs and outputs the registered driver sees.
func PortNames() (ins, outs []string) {
	for _, in := range midi.GetInPorts() {
		ins = append(ins, in.String())
	}
	for _, out := range midi.GetOutPorts() {
		outs = append(outs, out.String())
	}
	return ins, outs
}

func findOutPort(nameFragment string) (drivers.Out, error) {
	outs := midi.GetOutPorts()
	if len(outs) == 0 {
		return nil, fmt.Errorf("no MIDI outputs available")
	}

	lower := strings.ToLower(nameFragment)
	for _, out := range outs {
		if strings.Contains(strings.ToLower(out.String()), lower) {
			return out, nil
		}
	}

	return nil, fmt.Errorf("no MIDI output contains %q", nameFragment)
}

func findInPort(nameFragment string) (drivers.In, error) {
	ins := midi.GetInPorts()
	if len(ins) == 0 {
		return nil, fmt.Errorf("no MIDI inputs available")
	}

	lower := strings.ToLower(nameFragment)
	for _, in := range ins {
		if strings.Contains(strings.ToLower(in.String()), lower) {
			return in, nil
		}
	}

	return nil, fmt.Errorf("no MIDI input contains %q", nameFragment)
}
