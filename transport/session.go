package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"gitlab.com/gomidi/midi/v2"

	"jdximcp/protolog"
	"jdximcp/sysex"
)

// Session is an open link plus its send discipline and pending table.
// Sends may come from any goroutine; inbound traffic is handled on the
// link's delivery goroutine.
type Session struct {
	id      string
	link    Link
	header  sysex.Header
	minGap  time.Duration
	timeout time.Duration
	log     *slog.Logger
	plog    protolog.Logger

	sendMu   sync.Mutex
	lastSend time.Time

	mu      sync.Mutex
	open    bool
	pending table

	handlersMu   sync.RWMutex
	onSysEx      []func(sysex.Message)
	onChannel    []func(midi.Message)
	onFrameError []func([]byte, error)
}

// Open starts listening on link and returns the open session.
func Open(link Link, opts ...Option) (*Session, error) {
	s := &Session{
		id:      uuid.NewString(),
		link:    link,
		header:  sysex.JDXi,
		minGap:  DefaultMinGap,
		timeout: DefaultTimeout,
		log:     slog.Default(),
		plog:    protolog.NoopLogger{},
		pending: make(table),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("session", s.id)

	s.mu.Lock()
	s.open = true
	s.mu.Unlock()

	if err := link.Listen(s.deliver); err != nil {
		s.mu.Lock()
		s.open = false
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: listen: %w", ErrLink, err)
	}
	s.event(protolog.Event{Kind: protolog.KindState, Note: protolog.NoteOpen})
	s.log.Debug("session open", "device", fmt.Sprintf("0x%02X", s.header.DeviceID), "min_gap", s.minGap)
	return s, nil
}

// ID is the session's UUID, as recorded in protocol captures.
func (s *Session) ID() string { return s.id }

// Header returns the SysEx header frames are built with.
func (s *Session) Header() sysex.Header { return s.header }

// Timeout is the default request timeout.
func (s *Session) Timeout() time.Duration { return s.timeout }

func (s *Session) isOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Send writes one message, waiting out the minimum gap since the previous
// send first.
func (s *Session) Send(msg []byte) error {
	if !s.isOpen() {
		return ErrNotOpen
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if !s.lastSend.IsZero() {
		if wait := s.minGap - time.Since(s.lastSend); wait > 0 {
			time.Sleep(wait)
		}
	}
	err := s.link.Write(msg)
	s.lastSend = time.Now()

	if err != nil {
		s.event(protolog.Event{Direction: protolog.DirectionOut, Kind: protolog.KindError, Frame: msg, Error: err.Error()})
		return fmt.Errorf("%w: %w", ErrLink, err)
	}
	s.event(s.frameEvent(protolog.DirectionOut, msg))
	return nil
}

// Request registers a pending entry for key, sends frame and waits for
// the matching reply. A zero timeout uses the session default. The entry
// is gone from the table when Request returns.
func (s *Session) Request(ctx context.Context, key Key, frame []byte, timeout time.Duration) (Reply, error) {
	if timeout <= 0 {
		timeout = s.timeout
	}
	p := newPending(key, timeout)

	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return Reply{}, ErrNotOpen
	}
	s.pending.add(p)
	s.mu.Unlock()

	if err := s.Send(frame); err != nil {
		if s.take(p) {
			return Reply{}, err
		}
		// Closed or answered concurrently.
		r := <-p.done
		return r.reply, r.err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var timeoutErr error
	select {
	case r := <-p.done:
		return r.reply, r.err
	case <-timer.C:
		timeoutErr = fmt.Errorf("%w: %s after %s", ErrRequestTimeout, key, timeout)
	case <-ctx.Done():
		timeoutErr = fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}

	if s.take(p) {
		s.log.Debug("request abandoned", "key", key.String(), "err", timeoutErr)
		return Reply{}, timeoutErr
	}
	r := <-p.done
	return r.reply, r.err
}

// ReadParameter sends an RQ1 for size bytes at addr and returns the DT1
// the device answers with.
func (s *Session) ReadParameter(ctx context.Context, addr sysex.Address, size int, timeout time.Duration) (sysex.Message, error) {
	r, err := s.Request(ctx, ParameterKey(addr), s.header.DataRequest(addr, size), timeout)
	if err != nil {
		return sysex.Message{}, err
	}
	return r.Message, nil
}

// Pending returns the number of outstanding requests.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.len()
}

func (s *Session) take(p *pending) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.remove(p)
}

// Close cancels every pending request with ErrCancelled and closes the link.
func (s *Session) Close() error {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil
	}
	s.open = false
	cancelled := s.pending
	s.pending = make(table)
	s.mu.Unlock()

	for _, list := range cancelled {
		for _, p := range list {
			p.resolve(Reply{}, fmt.Errorf("%w: session closed", ErrCancelled))
		}
	}

	s.event(protolog.Event{Kind: protolog.KindState, Note: protolog.NoteClose})
	if err := s.link.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", ErrLink, err)
	}
	return nil
}

// OnSysEx registers a handler for vendor frames that answer no pending
// request.
func (s *Session) OnSysEx(fn func(sysex.Message)) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.onSysEx = append(s.onSysEx, fn)
}

// OnChannel registers a handler for inbound channel messages.
func (s *Session) OnChannel(fn func(midi.Message)) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.onChannel = append(s.onChannel, fn)
}

// OnFrameError registers a handler for inbound frames the codec rejected.
func (s *Session) OnFrameError(fn func([]byte, error)) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.onFrameError = append(s.onFrameError, fn)
}

func (s *Session) event(e protolog.Event) {
	e.Timestamp = time.Now()
	e.SessionID = s.id
	s.plog.Log(e)
}

func (s *Session) frameEvent(dir protolog.Direction, msg []byte) protolog.Event {
	e := protolog.Event{Direction: dir, Kind: protolog.KindChannel, Frame: append([]byte(nil), msg...)}
	if len(msg) > 0 && msg[0] == sysex.Start {
		e.Kind = protolog.KindSysEx
		if m, err := s.header.Parse(msg); err == nil {
			e.Address = m.Address.String()
		}
	}
	return e
}
