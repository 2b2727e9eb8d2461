package protolog

import (
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// FileLogger appends CBOR-encoded events to a capture file. One file may
// hold several sessions; each is told apart by its SessionID.
type FileLogger struct {
	mu      sync.Mutex
	file    *os.File
	encoder *cbor.Encoder
	closed  bool

	// sessions that logged an open state event but no close yet, in the
	// order they opened.
	open []string
}

// NewFileLogger opens path for appending, creating it if needed.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &FileLogger{file: f, encoder: NewEncoder(f)}, nil
}

// Log writes the event. Encoding errors are ignored. State and error
// events are synced to disk so a capture is readable up to the last one
// even if the process dies.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.track(event)
	_ = l.encoder.Encode(event)
	if event.Kind == KindState || event.Kind == KindError {
		_ = l.file.Sync()
	}
}

func (l *FileLogger) track(e Event) {
	if e.Kind != KindState || e.SessionID == "" {
		return
	}
	switch e.Note {
	case NoteOpen:
		for _, id := range l.open {
			if id == e.SessionID {
				return
			}
		}
		l.open = append(l.open, e.SessionID)
	case NoteClose:
		for i, id := range l.open {
			if id == e.SessionID {
				l.open = append(l.open[:i], l.open[i+1:]...)
				return
			}
		}
	}
}

// Sessions returns the ids of sessions still open in this file.
func (l *FileLogger) Sessions() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.open...)
}

// Close closes the file. Sessions still open get a close state event
// first, so every session in the file ends with one. Later Log calls are
// ignored.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true

	now := time.Now()
	for _, id := range l.open {
		_ = l.encoder.Encode(Event{
			Timestamp: now,
			SessionID: id,
			Kind:      KindState,
			Note:      NoteClose,
			Error:     "capture closed before session",
		})
	}
	l.open = nil
	return l.file.Close()
}

var _ Logger = (*FileLogger)(nil)
