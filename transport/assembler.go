package transport

import "jdximcp/sysex"

// DefaultMaxSysEx bounds a SysEx frame collected from a byte stream.
const DefaultMaxSysEx = 4096

// Assembler cuts a raw MIDI byte stream (DIN serial) into complete
// messages, honouring running status. Real-time bytes are emitted on their
// own, even in the middle of another message.
type Assembler struct {
	MaxSysEx int

	status  byte
	need    int
	data    []byte
	inSysEx bool
	sysex   []byte
}

// Feed consumes p and calls emit for every completed message. The slice
// passed to emit is not retained.
func (a *Assembler) Feed(p []byte, emit func([]byte)) {
	for _, b := range p {
		a.feed(b, emit)
	}
}

func (a *Assembler) feed(b byte, emit func([]byte)) {
	switch {
	case sysex.IsRealtime(b):
		emit([]byte{b})

	case b == sysex.Start:
		a.abortSysEx(emit)
		a.status = 0
		a.inSysEx = true
		a.sysex = append(a.sysex[:0], b)

	case b == sysex.End:
		if a.inSysEx {
			a.sysex = append(a.sysex, b)
			emit(a.sysex)
			a.sysex = a.sysex[:0]
			a.inSysEx = false
		}

	case b >= 0x80:
		// Any other status byte ends an unterminated SysEx.
		a.abortSysEx(emit)
		a.data = a.data[:0]
		if b >= 0xF0 {
			// System common cancels running status.
			a.status = 0
			n := systemCommonLen(b)
			if n == 0 {
				emit([]byte{b})
				return
			}
			a.status, a.need = b, n
			return
		}
		a.status, a.need = b, channelDataLen(b)

	default:
		if a.inSysEx {
			if a.max() > 0 && len(a.sysex) >= a.max() {
				a.abortSysEx(emit)
				return
			}
			a.sysex = append(a.sysex, b)
			return
		}
		if a.status == 0 {
			return
		}
		a.data = append(a.data, b)
		if len(a.data) < a.need {
			return
		}
		msg := make([]byte, 0, 1+len(a.data))
		msg = append(msg, a.status)
		msg = append(msg, a.data...)
		a.data = a.data[:0]
		if a.status >= 0xF0 {
			a.status = 0
		}
		emit(msg)
	}
}

// abortSysEx passes an unterminated frame on so the session reports it as
// a framing error.
func (a *Assembler) abortSysEx(emit func([]byte)) {
	if !a.inSysEx {
		return
	}
	a.inSysEx = false
	emit(a.sysex)
	a.sysex = a.sysex[:0]
}

func (a *Assembler) max() int {
	if a.MaxSysEx == 0 {
		return DefaultMaxSysEx
	}
	return a.MaxSysEx
}

func channelDataLen(status byte) int {
	switch status & 0xF0 {
	case 0xC0, 0xD0:
		return 1
	default:
		return 2
	}
}

func systemCommonLen(status byte) int {
	switch status {
	case 0xF1, 0xF3:
		return 1
	case 0xF2:
		return 2
	default:
		return 0
	}
}
