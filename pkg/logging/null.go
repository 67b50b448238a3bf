package logging

import (
	"context"
	"sync"
)

// NullLogger discards every entry. Components built without a logger
// fall back to it.
type NullLogger struct{}

// NewNullLogger creates a new null logger
func NewNullLogger() *NullLogger {
	return &NullLogger{}
}

func (l *NullLogger) Debug(ctx context.Context, msg string, fields Fields) {}
func (l *NullLogger) Info(ctx context.Context, msg string, fields Fields) {}
func (l *NullLogger) Warn(ctx context.Context, msg string, fields Fields) {}
func (l *NullLogger) Error(ctx context.Context, msg string, err error, fields Fields) {}
func (l *NullLogger) WithFields(fields Fields) Logger { return l }
func (l *NullLogger) Close() error { return nil }

// Record is one entry kept by a Recorder
type Record struct {
	Level   Level
	Message string
	Err     error
	Fields  Fields
}

// Recorder keeps entries in memory so callers can inspect what was logged
type Recorder struct {
	mu      *sync.Mutex
	records *[]Record
	fields  Fields
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{mu: &sync.Mutex{}, records: &[]Record{}}
}

func (r *Recorder) add(level Level, msg string, err error, fields Fields) {
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.records = append(*r.records, Record{Level: level, Message: msg, Err: err, Fields: mergeFields(r.fields, fields)})
}

// Debug records a debug message
func (r *Recorder) Debug(ctx context.Context, msg string, fields Fields) {
	r.add(DebugLevel, msg, nil, fields)
}

// Info records an info message
func (r *Recorder) Info(ctx context.Context, msg string, fields Fields) {
	r.add(InfoLevel, msg, nil, fields)
}

// Warn records a warning message
func (r *Recorder) Warn(ctx context.Context, msg string, fields Fields) {
	r.add(WarnLevel, msg, nil, fields)
}

// Error records an error message
func (r *Recorder) Error(ctx context.Context, msg string, err error, fields Fields) {
	r.add(ErrorLevel, msg, err, fields)
}

// WithFields returns a recorder sharing the same entries
func (r *Recorder) WithFields(fields Fields) Logger {
	return &Recorder{mu: r.mu, records: r.records, fields: mergeFields(r.fields, fields)}
}

// Close does nothing
func (r *Recorder) Close() error {
	return nil
}

// Records returns a copy of the entries at or above level
func (r *Recorder) Records(level Level) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Record
	for _, rec := range *r.records {
		if rec.Level >= level {
			out = append(out, rec)
		}
	}
	return out
}
