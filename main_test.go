package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jdximcp/config"
	"jdximcp/param"
	"jdximcp/protolog"
	"jdximcp/sysex"
	"jdximcp/transport/linktest"
)

var jdxiReply = []byte{0xF0, 0x7E, 0x10, 0x06, 0x02, 0x41, 0x0E, 0x03, 0x00, 0x00, 0x00, 0x03, 0x00, 0x00, 0xF7}

// cutoffFrame writes 64 to the filter cutoff of digital synth 1 partial
// index 0 (panel partial 1, group 0x20).
var cutoffFrame = []byte{0xF0, 0x41, 0x10, 0x00, 0x00, 0x00, 0x0E, 0x12, 0x19, 0x01, 0x20, 0x0C, 0x40, 0x7A, 0xF7}

// answer replies to identity requests and to RQ1 reads with value.
func answer(value byte) func([]byte) [][]byte {
	return func(req []byte) [][]byte {
		if bytes.Equal(req, sysex.IdentityRequest(sysex.DefaultDeviceID)) {
			return [][]byte{jdxiReply}
		}
		m, err := sysex.JDXi.Parse(req)
		if err != nil || m.Command != sysex.CmdRQ1 {
			return nil
		}
		return [][]byte{sysex.JDXi.DataSet(m.Address, []byte{value})}
	}
}

func newTestApp(t *testing.T, capture string) (*app, *linktest.Fake) {
	t.Helper()
	cfg := config.Default()
	cfg.Timing.RequestTimeout = 200 * time.Millisecond
	cfg.Timing.IdentifyTimeout = 200 * time.Millisecond
	cfg.Banks = map[string]int{"user": 1}

	link := linktest.New()
	a, err := newApp(cfg, link, capture)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, link
}

func fastNotes(t *testing.T) {
	t.Helper()
	l, g, r := noteLength, noteGap, restLength
	noteLength, noteGap, restLength = 0, 0, 0
	t.Cleanup(func() { noteLength, noteGap, restLength = l, g, r })
}

func TestParseNoteToken(t *testing.T) {
	cases := map[string]uint8{
		"C4":  60,
		"c4":  60,
		"C#4": 61,
		"Eb4": 63,
		"B3":  59,
		"Bb3": 58,
		"A-1": 9,
		"G9":  127,
	}
	for tok, want := range cases {
		n, rest, err := parseNoteToken(tok)
		require.NoError(t, err, tok)
		assert.False(t, rest, tok)
		assert.Equal(t, want, n, tok)
	}

	for _, tok := range []string{"r", "R", "rest"} {
		_, rest, err := parseNoteToken(tok)
		require.NoError(t, err)
		assert.True(t, rest, tok)
	}

	for _, tok := range []string{"", "C", "H4", "C#", "Cx", "G#9", "C-2"} {
		_, _, err := parseNoteToken(tok)
		assert.Error(t, err, tok)
	}
}

func TestPlayNotesFromText(t *testing.T) {
	fastNotes(t)
	a, link := newTestApp(t, "")

	require.NoError(t, playNotesFromText(a.session, a.channel(), "C4, r | E4"))
	assert.Equal(t, [][]byte{
		{0x9F, 60, 100}, {0x8F, 60, 0},
		{0x9F, 64, 100}, {0x8F, 64, 0},
	}, link.Sent())

	// A bad token plays nothing.
	assert.Error(t, playNotesFromText(a.session, a.channel(), "C4 X9"))
	assert.Error(t, playNotesFromText(a.session, a.channel(), " , "))
	assert.Len(t, link.Sent(), 4)
}

func TestParseTarget(t *testing.T) {
	id, p, err := parseTarget("digital1.partial.filter_cutoff:2")
	require.NoError(t, err)
	assert.Equal(t, param.ID("digital1.partial.filter_cutoff"), id)
	assert.Equal(t, 2, p)

	id, p, err = parseTarget("program.level")
	require.NoError(t, err)
	assert.Equal(t, param.ID("program.level"), id)
	assert.Equal(t, param.NoPartial, p)

	for _, bad := range []string{"", ":1", "x:", "x:-1", "x:one"} {
		_, _, err := parseTarget(bad)
		assert.Error(t, err, bad)
	}
}

func TestListParameters(t *testing.T) {
	reg, err := param.DefaultCatalog()
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, listParameters(&out, reg, "digital1.partial.filter_"))
	assert.Contains(t, out.String(), "19 01 00 0C  linear   0..2  0..127")
	assert.Contains(t, out.String(), "digital1.partial.filter_mode")
	assert.NotContains(t, out.String(), "analog.")

	out.Reset()
	require.NoError(t, listParameters(&out, reg, "analog.osc_wave"))
	assert.Contains(t, out.String(), "enum     -     SAW|TRI|PW-SQR")
}

func TestConsole(t *testing.T) {
	a, link := newTestApp(t, "")
	link.Respond(answer(100))

	var out bytes.Buffer
	c := &console{app: a, out: &out}
	ctx := context.Background()

	require.True(t, c.exec(ctx, "set digital1.partial.filter_cutoff:0 64"))
	assert.Equal(t, "digital1.partial.filter_cutoff:0 = 64\n", out.String())
	require.NotEmpty(t, link.Sent())
	assert.Equal(t, cutoffFrame, link.Sent()[0])

	out.Reset()
	require.True(t, c.exec(ctx, "get digital1.partial.filter_cutoff:0"))
	assert.Equal(t, "digital1.partial.filter_cutoff:0 = 100\n", out.String())

	out.Reset()
	require.True(t, c.exec(ctx, "identify"))
	assert.Contains(t, out.String(), "manufacturer 41 family 0E 03")

	out.Reset()
	before := len(link.Sent())
	require.True(t, c.exec(ctx, "load user 5"))
	assert.Equal(t, "loaded bank 1 program 5\n", out.String())
	assert.Equal(t, [][]byte{{0xBF, 0x00, 0x00}, {0xBF, 0x20, 0x01}, {0xCF, 0x04}}, link.Sent()[before:])

	out.Reset()
	require.True(t, c.exec(ctx, "status"))
	assert.Contains(t, out.String(), "preset   idle")
	assert.Contains(t, out.String(), "device   manufacturer 41")

	out.Reset()
	require.True(t, c.exec(ctx, "set digital1.partial.filter_cutoff:0 200"))
	assert.True(t, strings.HasPrefix(out.String(), "error: "), out.String())

	out.Reset()
	require.True(t, c.exec(ctx, "frobnicate"))
	assert.Contains(t, out.String(), "unknown command")

	assert.True(t, c.exec(ctx, "   "))
	assert.False(t, c.exec(ctx, "quit"))
}

func TestCaptureDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jlog")
	a, _ := newTestApp(t, path)

	var out bytes.Buffer
	require.NoError(t, cmdSet(context.Background(), a, &out, []string{"digital1.partial.filter_cutoff:0", "64"}))
	require.NoError(t, a.Close())

	out.Reset()
	require.NoError(t, runLogDump(&out, []string{path}))
	assert.Contains(t, out.String(), "STATE   open")
	assert.Contains(t, out.String(), "[19 01 20 0C] F0 41 10 00 00 00 0E 12 19 01 20 0C 40 7A F7")
	assert.Contains(t, out.String(), "STATE   close")

	out.Reset()
	require.NoError(t, runLogDump(&out, []string{"-kind", "sysex", "-dir", "out", path}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "OUT SYSEX   [19 01 20 0C]")
	assert.Contains(t, lines[0], a.session.ID()[:8])

	out.Reset()
	require.NoError(t, runLogDump(&out, []string{"-color", "-kind", "sysex", path}))
	assert.Contains(t, out.String(), "SYSEX")
	assert.Contains(t, out.String(), "[19 01 20 0C] F0 41 10")

	assert.Error(t, runLogDump(&out, []string{"-kind", "bogus", path}))
	assert.Error(t, runLogDump(&out, nil))
}

func TestRefreshReads(t *testing.T) {
	got, err := refreshReads([]config.Read{{Address: "18 00 00 00", Size: 0x20}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, sysex.Address{0x18, 0x00, 0x00, 0x00}, got[0].Addr)
	assert.Equal(t, 0x20, got[0].Size)

	_, err = refreshReads([]config.Read{{Address: "18 00", Size: 1}})
	assert.Error(t, err)
}

func TestPalette(t *testing.T) {
	var plain palette
	assert.Equal(t, "ERROR  ", plain.paint(protolog.KindError, "ERROR  "))
	assert.Contains(t, newPalette().paint(protolog.KindError, "ERROR  "), "ERROR")

	e := protolog.Event{Direction: protolog.DirectionIn, Kind: protolog.KindDropped, Error: "bad checksum"}
	assert.True(t, strings.HasSuffix(formatEvent(e, nil), "IN  DROPPED error: bad checksum"), formatEvent(e, nil))
}
