package protolog

import (
	"context"
	"encoding/hex"
	"log/slog"
)

// SlogAdapter writes protocol events to an slog.Logger at debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAdapter{logger: logger}
}

func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("session", event.SessionID),
		slog.String("direction", event.Direction.String()),
		slog.String("kind", event.Kind.String()),
	}
	if len(event.Frame) > 0 {
		attrs = append(attrs, slog.String("frame", hex.EncodeToString(event.Frame)))
	}
	if event.Address != "" {
		attrs = append(attrs, slog.String("address", event.Address))
	}
	if event.Note != "" {
		attrs = append(attrs, slog.String("note", event.Note))
	}

	level := slog.LevelDebug
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
		if event.Kind == KindError {
			level = slog.LevelWarn
		}
	}
	a.logger.LogAttrs(context.Background(), level, "protocol", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
