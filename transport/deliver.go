package transport

import (
	"errors"
	"time"

	"gitlab.com/gomidi/midi/v2"

	"jdximcp/protolog"
	"jdximcp/sysex"
)

// deliver runs on the link's delivery goroutine for every inbound message.
func (s *Session) deliver(raw []byte) {
	if len(raw) == 0 || sysex.IsRealtime(raw[0]) {
		return
	}
	if !s.isOpen() {
		return
	}
	msg := append([]byte(nil), raw...)

	if msg[0] != sysex.Start {
		s.event(s.frameEvent(protolog.DirectionIn, msg))
		s.dispatchChannel(midi.Message(msg))
		return
	}

	if sysex.IsIdentityReply(msg) {
		id, err := sysex.ParseIdentityReply(msg)
		if err != nil {
			s.dropped(msg, err)
			return
		}
		s.event(s.frameEvent(protolog.DirectionIn, msg))
		if !s.resolve(IdentityKey, Reply{Identity: id, Raw: msg, At: time.Now()}) {
			s.log.Debug("unsolicited identity reply", "frame", sysex.Frame(msg).Hex())
		}
		return
	}

	m, err := s.header.Parse(msg)
	if err != nil {
		s.dropped(msg, err)
		return
	}
	s.event(s.frameEvent(protolog.DirectionIn, msg))

	if m.Command == sysex.CmdDT1 && s.resolve(ParameterKey(m.Address), Reply{Message: m, Raw: msg, At: time.Now()}) {
		return
	}
	s.dispatchSysEx(m)
}

func (s *Session) resolve(key Key, r Reply) bool {
	s.mu.Lock()
	p := s.pending.pop(key)
	s.mu.Unlock()
	if p == nil {
		return false
	}
	s.log.Debug("request resolved", "key", key.String(), "elapsed", r.At.Sub(p.issuedAt))
	p.resolve(r, nil)
	return true
}

func (s *Session) dropped(msg []byte, err error) {
	ev := protolog.Event{Direction: protolog.DirectionIn, Kind: protolog.KindDropped, Frame: msg, Error: err.Error()}
	if errors.Is(err, sysex.ErrUnknownManufacturer) {
		s.log.Debug("ignoring foreign frame", "frame", sysex.Frame(msg).Hex(), "err", err)
		ev.Note = protolog.NoteForeign
	} else {
		s.log.Warn("dropping inbound frame", "frame", sysex.Frame(msg).Hex(), "err", err)
	}
	s.event(ev)

	s.handlersMu.RLock()
	handlers := s.onFrameError
	s.handlersMu.RUnlock()
	for _, fn := range handlers {
		fn(msg, err)
	}
}

func (s *Session) dispatchSysEx(m sysex.Message) {
	s.handlersMu.RLock()
	handlers := s.onSysEx
	s.handlersMu.RUnlock()
	for _, fn := range handlers {
		fn(m)
	}
}

func (s *Session) dispatchChannel(m midi.Message) {
	s.handlersMu.RLock()
	handlers := s.onChannel
	s.handlersMu.RUnlock()
	for _, fn := range handlers {
		fn(m)
	}
}
