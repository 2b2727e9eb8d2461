package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"jdximcp/protolog"
)

// palette colours the kind column of dumped events. A nil palette prints
// plain text.
type palette map[protolog.Kind]lipgloss.Style

func newPalette() palette {
	return palette{
		protolog.KindSysEx:   lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		protolog.KindChannel: lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		protolog.KindDropped: lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
		protolog.KindState:   lipgloss.NewStyle().Faint(true),
		protolog.KindError:   lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
	}
}

func (p palette) paint(k protolog.Kind, s string) string {
	st, ok := p[k]
	if !ok {
		return s
	}
	return st.Render(s)
}

func parseKind(s string) (protolog.Kind, error) {
	for k := protolog.KindSysEx; k <= protolog.KindError; k++ {
		if strings.EqualFold(k.String(), s) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown kind %q", s)
}

func parseDirection(s string) (protolog.Direction, error) {
	for _, d := range []protolog.Direction{protolog.DirectionIn, protolog.DirectionOut} {
		if strings.EqualFold(d.String(), s) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

func runLogDump(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("log", flag.ContinueOnError)
	session := fs.String("session", "", "only this session id")
	kind := fs.String("kind", "", "only SYSEX, CHANNEL, DROPPED, STATE or ERROR")
	dir := fs.String("dir", "", "only IN or OUT")
	address := fs.String("address", "", `only this parameter address, e.g. "19 01 20 0C"`)
	since := fs.Duration("since", 0, "only events newer than this, relative to now")
	color := fs.Bool("color", false, "colour event kinds")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: log [flags] <file>")
	}

	filter := protolog.Filter{SessionID: *session, Address: strings.ToUpper(*address)}
	if *kind != "" {
		k, err := parseKind(*kind)
		if err != nil {
			return err
		}
		filter.Kind = &k
	}
	if *dir != "" {
		d, err := parseDirection(*dir)
		if err != nil {
			return err
		}
		filter.Direction = &d
	}
	if *since > 0 {
		start := time.Now().Add(-*since)
		filter.TimeStart = &start
	}

	r, err := protolog.NewFilteredReader(fs.Arg(0), filter)
	if err != nil {
		return err
	}
	defer r.Close()

	var p palette
	if *color {
		p = newPalette()
	}
	return dumpEvents(w, r, p)
}

func dumpEvents(w io.Writer, r *protolog.Reader, p palette) error {
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(w, formatEvent(e, p))
	}
}

func formatEvent(e protolog.Event, p palette) string {
	var b strings.Builder
	kind := p.paint(e.Kind, fmt.Sprintf("%-7s", e.Kind))
	fmt.Fprintf(&b, "%s %-8.8s %-3s %s", e.Timestamp.Format("15:04:05.000000"), e.SessionID, e.Direction, kind)
	if e.Address != "" {
		fmt.Fprintf(&b, " [%s]", e.Address)
	}
	if len(e.Frame) > 0 {
		fmt.Fprintf(&b, " % X", e.Frame)
	}
	if e.Note != "" {
		fmt.Fprintf(&b, " %s", e.Note)
	}
	if e.Error != "" {
		fmt.Fprintf(&b, " error: %s", e.Error)
	}
	return b.String()
}
