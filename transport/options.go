package transport

import (
	"log/slog"
	"time"

	"jdximcp/protolog"
	"jdximcp/sysex"
)

type Option func(*Session)

// WithHeader sets the SysEx header used to build and parse vendor frames.
func WithHeader(h sysex.Header) Option {
	return func(s *Session) { s.header = h }
}

// WithMinGap overrides DefaultMinGap.
func WithMinGap(d time.Duration) Option {
	return func(s *Session) { s.minGap = d }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithProtocolLogger records every frame in and out.
func WithProtocolLogger(l protolog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.plog = l
		}
	}
}
