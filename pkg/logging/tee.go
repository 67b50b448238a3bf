package logging

import (
	"context"
	"errors"
)

// Tee fans every entry out to several loggers
type Tee struct {
	sinks []Logger
}

// NewTee creates a logger writing to all non-nil sinks
func NewTee(sinks ...Logger) *Tee {
	t := &Tee{}
	for _, s := range sinks {
		if s != nil {
			t.sinks = append(t.sinks, s)
		}
	}
	return t
}

// Debug logs a debug message
func (t *Tee) Debug(ctx context.Context, msg string, fields Fields) {
	for _, s := range t.sinks {
		s.Debug(ctx, msg, fields)
	}
}

// Info logs an info message
func (t *Tee) Info(ctx context.Context, msg string, fields Fields) {
	for _, s := range t.sinks {
		s.Info(ctx, msg, fields)
	}
}

// Warn logs a warning message
func (t *Tee) Warn(ctx context.Context, msg string, fields Fields) {
	for _, s := range t.sinks {
		s.Warn(ctx, msg, fields)
	}
}

// Error logs an error message
func (t *Tee) Error(ctx context.Context, msg string, err error, fields Fields) {
	for _, s := range t.sinks {
		s.Error(ctx, msg, err, fields)
	}
}

// WithFields returns a tee whose sinks all carry the fields
func (t *Tee) WithFields(fields Fields) Logger {
	out := &Tee{sinks: make([]Logger, len(t.sinks))}
	for i, s := range t.sinks {
		out.sinks[i] = s.WithFields(fields)
	}
	return out
}

// Close closes every sink and joins their errors
func (t *Tee) Close() error {
	var errs []error
	for _, s := range t.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
