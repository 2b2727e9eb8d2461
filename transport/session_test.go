package transport

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2"

	"jdximcp/protolog"
	"jdximcp/sysex"
	"jdximcp/transport/linktest"
)

var cutoff = sysex.Address{Area: 0x19, Part: 0x01, Group: 0x20, Address: 0x0C}

type events struct {
	mu  sync.Mutex
	all []protolog.Event
}

func (e *events) Log(ev protolog.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.all = append(e.all, ev)
}

func (e *events) kinds() []protolog.Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []protolog.Kind
	for _, ev := range e.all {
		out = append(out, ev.Kind)
	}
	return out
}

// answerRQ1 makes the fake reply to every RQ1 with a DT1 of value at the
// requested address.
func answerRQ1(value byte) func([]byte) [][]byte {
	return func(req []byte) [][]byte {
		m, err := sysex.JDXi.Parse(req)
		if err != nil || m.Command != sysex.CmdRQ1 {
			return nil
		}
		return [][]byte{sysex.JDXi.DataSet(m.Address, []byte{value})}
	}
}

func openFake(t *testing.T, opts ...Option) (*Session, *linktest.Fake) {
	t.Helper()
	link := linktest.New()
	s, err := Open(link, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, link
}

func TestSendEnforcesMinGap(t *testing.T) {
	s, link := openFake(t, WithMinGap(2*time.Millisecond))

	for i := 0; i < 6; i++ {
		require.NoError(t, s.Send(sysex.JDXi.DataSet(cutoff, []byte{byte(i)})))
	}

	writes := link.Writes()
	require.Len(t, writes, 6)
	for i := 1; i < len(writes); i++ {
		gap := writes[i].At.Sub(writes[i-1].At)
		assert.GreaterOrEqual(t, gap, 2*time.Millisecond, "gap before write %d", i)
	}
}

func TestSendWrapsLinkError(t *testing.T) {
	s, link := openFake(t)
	boom := errors.New("cable unplugged")
	link.FailWrite(2, boom)

	require.NoError(t, s.Send([]byte{0xB0, 0x00, 0x00}))
	err := s.Send([]byte{0xB0, 0x20, 0x01})
	assert.ErrorIs(t, err, ErrLink)
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, s.Send([]byte{0xC0, 0x40}))
}

func TestReadParameter(t *testing.T) {
	s, link := openFake(t)
	link.Respond(answerRQ1(0x40))

	m, err := s.ReadParameter(context.Background(), cutoff, 1, time.Second)
	require.NoError(t, err)
	assert.Equal(t, sysex.CmdDT1, m.Command)
	assert.Equal(t, cutoff, m.Address)
	assert.Equal(t, []byte{0x40}, m.Payload)
	assert.Equal(t, 0, s.Pending())

	sent := link.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, []byte(sysex.JDXi.DataRequest(cutoff, 1)), sent[0])
}

func TestRequestTimeoutResolvesOnce(t *testing.T) {
	s, link := openFake(t)

	late := make(chan sysex.Message, 1)
	s.OnSysEx(func(m sysex.Message) { late <- m })

	start := time.Now()
	_, err := s.ReadParameter(context.Background(), cutoff, 1, 20*time.Millisecond)
	require.ErrorIs(t, err, ErrRequestTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Equal(t, 0, s.Pending())

	// The reply arriving after the timeout is unsolicited now.
	link.Inject(sysex.JDXi.DataSet(cutoff, []byte{0x11}))
	link.Flush()
	select {
	case m := <-late:
		assert.Equal(t, []byte{0x11}, m.Payload)
	default:
		t.Fatal("late reply was not routed to the unsolicited handler")
	}
}

func TestRequestContextCancel(t *testing.T) {
	s, _ := openFake(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.ReadParameter(ctx, cutoff, 1, time.Minute)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, s.Pending())
}

func TestCloseCancelsPending(t *testing.T) {
	link := linktest.New()
	s, err := Open(link)
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := s.ReadParameter(context.Background(), cutoff, 1, time.Minute)
		errc <- err
	}()
	require.Eventually(t, func() bool { return s.Pending() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, s.Close())
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("pending request not cancelled")
	}
	assert.True(t, link.Closed())
	assert.ErrorIs(t, s.Send([]byte{0xC0, 0x00}), ErrNotOpen)
	_, err = s.ReadParameter(context.Background(), cutoff, 1, time.Second)
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.NoError(t, s.Close())
}

func TestConcurrentRequestsOnSameKey(t *testing.T) {
	s, link := openFake(t)

	type res struct {
		n   int
		msg sysex.Message
	}
	out := make(chan res, 2)
	for i := 0; i < 2; i++ {
		go func(n int) {
			m, err := s.ReadParameter(context.Background(), cutoff, 1, time.Second)
			if err == nil {
				out <- res{n, m}
			}
		}(i)
	}
	require.Eventually(t, func() bool { return s.Pending() == 2 }, time.Second, time.Millisecond)

	link.Inject(sysex.JDXi.DataSet(cutoff, []byte{0x01}))
	link.Inject(sysex.JDXi.DataSet(cutoff, []byte{0x02}))

	got := map[byte]bool{}
	for i := 0; i < 2; i++ {
		select {
		case r := <-out:
			got[r.msg.Payload[0]] = true
		case <-time.After(time.Second):
			t.Fatal("request not resolved")
		}
	}
	assert.Equal(t, map[byte]bool{0x01: true, 0x02: true}, got)
	assert.Equal(t, 0, s.Pending())
}

func TestIdentityRequest(t *testing.T) {
	s, link := openFake(t)
	reply := []byte{0xF0, 0x7E, 0x10, 0x06, 0x02, 0x41, 0x0E, 0x03, 0x00, 0x00, 0x00, 0x03, 0x00, 0x00, 0xF7}
	link.Respond(func(req []byte) [][]byte {
		if len(req) == 6 && req[1] == 0x7E {
			return [][]byte{reply}
		}
		return nil
	})

	r, err := s.Request(context.Background(), IdentityKey, sysex.IdentityRequest(sysex.BroadcastDevice), time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x41}, r.Identity.Manufacturer)
	assert.Equal(t, [2]byte{0x0E, 0x03}, r.Identity.Family)
	assert.Equal(t, reply, r.Raw)
}

func TestInboundRouting(t *testing.T) {
	plog := &events{}
	s, link := openFake(t, WithProtocolLogger(plog))

	var (
		mu       sync.Mutex
		sysexes  []sysex.Message
		channels []midi.Message
		dropped  []error
	)
	s.OnSysEx(func(m sysex.Message) { mu.Lock(); sysexes = append(sysexes, m); mu.Unlock() })
	s.OnChannel(func(m midi.Message) { mu.Lock(); channels = append(channels, m); mu.Unlock() })
	s.OnFrameError(func(_ []byte, err error) { mu.Lock(); dropped = append(dropped, err); mu.Unlock() })

	bad := sysex.JDXi.DataSet(cutoff, []byte{0x40})
	bad[len(bad)-2] ^= 0x01

	link.Inject([]byte{0xF8})
	link.Inject(sysex.JDXi.DataSet(cutoff, []byte{0x40}))
	link.Inject([]byte{0xB0, 0x4A, 0x10})
	link.Inject(bad)
	link.Inject([]byte{0xF0, 0x41, 0x10, 0x00})
	link.Inject([]byte{0xF0, 0x43, 0x10, 0x4C, 0x00, 0x00, 0xF7})
	link.Flush()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sysexes, 1)
	assert.Equal(t, cutoff, sysexes[0].Address)

	require.Len(t, channels, 1)
	var ch, ctrl, val uint8
	require.True(t, channels[0].GetControlChange(&ch, &ctrl, &val))
	assert.Equal(t, uint8(74), ctrl)
	assert.Equal(t, uint8(0x10), val)

	require.Len(t, dropped, 3)
	assert.ErrorIs(t, dropped[0], sysex.ErrChecksumMismatch)
	assert.ErrorIs(t, dropped[1], sysex.ErrTruncated)
	assert.ErrorIs(t, dropped[2], sysex.ErrUnknownManufacturer)

	// Still open after framing errors.
	assert.NoError(t, s.Send([]byte{0xC0, 0x01}))
	assert.Equal(t, []protolog.Kind{
		protolog.KindState,
		protolog.KindSysEx, protolog.KindChannel,
		protolog.KindDropped, protolog.KindDropped, protolog.KindDropped,
		protolog.KindChannel,
	}, plog.kinds())
}

func TestForeignFramesLoggedAtDebug(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	plog := &events{}
	s, link := openFake(t, WithLogger(logger), WithProtocolLogger(plog))

	var dropped []error
	var mu sync.Mutex
	s.OnFrameError(func(_ []byte, err error) { mu.Lock(); dropped = append(dropped, err); mu.Unlock() })

	// GS reset from a unit with a one-byte model id.
	link.Inject([]byte{0xF0, 0x41, 0x10, 0x42, 0x12, 0x40, 0x00, 0x7F, 0x00, 0x41, 0xF7})
	link.Flush()

	mu.Lock()
	require.Len(t, dropped, 1)
	assert.ErrorIs(t, dropped[0], sysex.ErrUnknownManufacturer)
	mu.Unlock()

	assert.Contains(t, logs.String(), "level=DEBUG msg=\"ignoring foreign frame\"")
	assert.NotContains(t, logs.String(), "level=WARN")

	plog.mu.Lock()
	defer plog.mu.Unlock()
	last := plog.all[len(plog.all)-1]
	assert.Equal(t, protolog.KindDropped, last.Kind)
	assert.Equal(t, protolog.NoteForeign, last.Note)
}
