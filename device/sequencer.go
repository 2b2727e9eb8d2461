package device

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gitlab.com/gomidi/midi/v2"

	"jdximcp/param"
	"jdximcp/sysex"
)

// ErrPartialApply reports a preset load that stopped after some of its
// messages were already sent.
var ErrPartialApply = errors.New("device: preset load partially applied")

// State is the position of a preset load.
type State int

const (
	Idle State = iota
	BankMSBSent
	BankLSBSent
	ProgramSent
	FollowUpRequested
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case BankMSBSent:
		return "bank-msb-sent"
	case BankLSBSent:
		return "bank-lsb-sent"
	case ProgramSent:
		return "program-sent"
	case FollowUpRequested:
		return "follow-up-requested"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// PartialApplyError is returned when a send fails mid-sequence. The device
// may hold a partially changed state.
type PartialApplyError struct {
	Reached State // last state reached before the failure
	Sent    int   // messages sent successfully
	Err     error
}

func (e *PartialApplyError) Error() string {
	return fmt.Sprintf("%s: stopped after %s (%d sent): %v", ErrPartialApply, e.Reached, e.Sent, e.Err)
}

func (e *PartialApplyError) Unwrap() []error {
	return []error{ErrPartialApply, e.Err}
}

// Sender writes one message. *transport.Session implements it.
type Sender interface {
	Send(msg []byte) error
}

// FollowUp is an RQ1 read sent after the program change. The reply
// arrives as an unsolicited DT1.
type FollowUp struct {
	Addr sysex.Address
	Size int
}

// Limits of a preset address.
const (
	MaxBank    = 0x3FFF
	MaxProgram = 128
)

// Sequencer performs bank select + program change loads, one at a time.
type Sequencer struct {
	send    Sender
	channel uint8
	header  sysex.Header
	log     *slog.Logger

	loadMu sync.Mutex

	mu    sync.Mutex
	state State

	// trace observes every transition.
	trace func(State)
}

// NewSequencer sends on the zero-based MIDI channel.
func NewSequencer(send Sender, channel uint8, header sysex.Header, log *slog.Logger) *Sequencer {
	if log == nil {
		log = slog.Default()
	}
	return &Sequencer{send: send, channel: channel & 0x0F, header: header, log: log}
}

func (q *Sequencer) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

func (q *Sequencer) set(s State) {
	q.mu.Lock()
	q.state = s
	q.mu.Unlock()
	if q.trace != nil {
		q.trace(s)
	}
}

type step struct {
	next State
	msg  []byte
}

// Load selects bank (14-bit bank select number) and the one-based program.
// Arguments are checked before anything is sent.
func (q *Sequencer) Load(bank, program int, followUps ...FollowUp) error {
	if bank < 0 || bank > MaxBank {
		return fmt.Errorf("%w: bank %d, want 0..%d", param.ErrOutOfRange, bank, MaxBank)
	}
	if program < 1 || program > MaxProgram {
		return fmt.Errorf("%w: program %d, want 1..%d", param.ErrOutOfRange, program, MaxProgram)
	}
	for _, f := range followUps {
		if f.Size <= 0 {
			return fmt.Errorf("%w: follow-up read of %d bytes at %s", param.ErrOutOfRange, f.Size, f.Addr)
		}
	}

	steps := []step{
		{BankMSBSent, midi.ControlChange(q.channel, 0, uint8(bank>>7))},
		{BankLSBSent, midi.ControlChange(q.channel, 32, uint8(bank&0x7F))},
		{ProgramSent, midi.ProgramChange(q.channel, uint8(program-1))},
	}
	for _, f := range followUps {
		steps = append(steps, step{FollowUpRequested, q.header.DataRequest(f.Addr, f.Size)})
	}

	q.loadMu.Lock()
	defer q.loadMu.Unlock()

	for i, st := range steps {
		if err := q.send.Send(st.msg); err != nil {
			reached := q.State()
			q.set(Idle)
			q.log.Warn("preset load aborted", "bank", bank, "program", program, "reached", reached.String(), "err", err)
			return &PartialApplyError{Reached: reached, Sent: i, Err: err}
		}
		q.set(st.next)
	}
	q.set(Idle)
	q.log.Debug("preset loaded", "bank", bank, "program", program, "follow_ups", len(followUps))
	return nil
}
