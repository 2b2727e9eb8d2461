package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"gitlab.com/gomidi/midi/v2"

	"jdximcp/device"
)

// Note timing of playNotesFromText.
var (
	noteLength = 300 * time.Millisecond
	noteGap    = 60 * time.Millisecond
	restLength = 360 * time.Millisecond
	chordHold  = 4 * time.Second
)

func playNote(s device.Sender, channel, n uint8, length time.Duration) error {
	if err := s.Send(midi.NoteOn(channel, n, 100)); err != nil {
		return fmt.Errorf("note on failed for %d: %w", n, err)
	}
	time.Sleep(length)
	if err := s.Send(midi.NoteOff(channel, n)); err != nil {
		return fmt.Errorf("note off failed for %d: %w", n, err)
	}
	return nil
}

func playTestNotes(s device.Sender, channel uint8) error {
	for _, n := range []uint8{midi.C(4), midi.E(4), midi.G(4)} {
		if err := playNote(s, channel, n, 200*time.Millisecond); err != nil {
			return err
		}
	}
	return nil
}

func playMinor7Chord(s device.Sender, channel uint8) error {
	root := midi.C(4)
	chord := []uint8{root, root + 3, root + 7, root + 10}

	for _, n := range chord {
		if err := s.Send(midi.NoteOn(channel, n, 100)); err != nil {
			return fmt.Errorf("note on failed for %d: %w", n, err)
		}
	}

	time.Sleep(chordHold)

	for _, n := range chord {
		if err := s.Send(midi.NoteOff(channel, n)); err != nil {
			return fmt.Errorf("note off failed for %d: %w", n, err)
		}
	}
	return nil
}

// playNotesFromText plays tokens like "C4 Eb4 g#3 r C5". Separators are
// whitespace, ',', ';' and '|'.
func playNotesFromText(s device.Sender, channel uint8, notesText string) error {
	tokens := strings.FieldsFunc(notesText, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == ';' || r == '|'
	})
	if len(tokens) == 0 {
		return fmt.Errorf("no notes provided")
	}

	// Parse everything first so a typo plays nothing.
	notes := make([]int, len(tokens))
	for i, tok := range tokens {
		n, isRest, err := parseNoteToken(tok)
		if err != nil {
			return fmt.Errorf("invalid note %q: %w", tok, err)
		}
		notes[i] = int(n)
		if isRest {
			notes[i] = -1
		}
	}

	for _, n := range notes {
		if n < 0 {
			time.Sleep(restLength)
			continue
		}
		if err := playNote(s, channel, uint8(n), noteLength); err != nil {
			return err
		}
		time.Sleep(noteGap)
	}
	return nil
}

func parseNoteToken(tok string) (uint8, bool, error) {
	t := strings.TrimSpace(tok)
	if t == "" {
		return 0, false, fmt.Errorf("empty token")
	}

	if strings.EqualFold(t, "r") || strings.EqualFold(t, "rest") {
		return 0, true, nil
	}

	if len(t) < 2 {
		return 0, false, fmt.Errorf("too short")
	}

	semitone, ok := map[byte]int{'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11}[byte(unicode.ToUpper(rune(t[0])))]
	if !ok {
		return 0, false, fmt.Errorf("invalid note letter %q", t[:1])
	}

	rest := t[1:]
	switch rest[0] {
	case '#':
		semitone++
		rest = rest[1:]
	case 'b', 'B':
		semitone--
		rest = rest[1:]
	}
	if rest == "" {
		return 0, false, fmt.Errorf("missing octave")
	}

	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false, fmt.Errorf("invalid octave: %w", err)
	}

	n := 12*(octave+1) + semitone
	if n < 0 || n > 127 {
		return 0, false, fmt.Errorf("MIDI note out of range: %d", n)
	}
	return uint8(n), false, nil
}
