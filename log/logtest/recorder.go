/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package logtest provides a recording logger for asserting on log output in tests.
package logtest

import (
	"sync"

	"github.com/ssgreg/logf"

	"github.com/billhaggle/reqguard/log"
)

// RecordedEntry is a single entry written through a Recorder.
type RecordedEntry struct {
	Level  log.Level
	Text   string
	Fields []log.Field
}

// FindField returns the first field of the entry with the given key.
func (re *RecordedEntry) FindField(key string) (*log.Field, bool) {
	for i := range re.Fields {
		if re.Fields[i].Key == key {
			f := re.Fields[i]
			return &f, true
		}
	}
	return nil, false
}

// journal is shared by a Recorder and all loggers derived from it.
type journal struct {
	mu      sync.Mutex
	entries []RecordedEntry
}

//nolint:gocritic // logf.EntryWriter passes entries by value
func (j *journal) WriteEntry(e logf.Entry) {
	fields := make([]log.Field, 0, len(e.Fields)+len(e.DerivedFields))
	fields = append(fields, e.Fields...)
	fields = append(fields, e.DerivedFields...)

	j.mu.Lock()
	j.entries = append(j.entries, RecordedEntry{Level: levelOf(e.Level), Text: e.Text, Fields: fields})
	j.mu.Unlock()
}

func (j *journal) snapshot() []RecordedEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]RecordedEntry(nil), j.entries...)
}

// Recorder is a log.FieldLogger that keeps every entry in memory.
type Recorder struct {
	*log.LogfAdapter
	journal *journal
}

// NewRecorder creates a Recorder that records entries of all levels.
func NewRecorder() *Recorder {
	j := &journal{}
	return &Recorder{LogfAdapter: &log.LogfAdapter{Logger: logf.NewLogger(logf.LevelDebug, j)}, journal: j}
}

// With returns a derived logger writing into the same journal.
func (r *Recorder) With(fs ...log.Field) log.FieldLogger {
	return &Recorder{LogfAdapter: r.LogfAdapter.With(fs...).(*log.LogfAdapter), journal: r.journal}
}

// WithLevel returns a derived logger that additionally drops entries below level.
func (r *Recorder) WithLevel(level log.Level) log.FieldLogger {
	return &Recorder{LogfAdapter: r.LogfAdapter.WithLevel(level).(*log.LogfAdapter), journal: r.journal}
}

// Entries returns a copy of the recorded entries in write order.
func (r *Recorder) Entries() []RecordedEntry {
	return r.journal.snapshot()
}

// FindEntry returns the first entry with exactly the given message.
func (r *Recorder) FindEntry(msg string) (RecordedEntry, bool) {
	found := r.FindAllEntriesByFilter(func(e RecordedEntry) bool { return e.Text == msg })
	if len(found) == 0 {
		return RecordedEntry{}, false
	}
	return found[0], true
}

// FindAllEntriesByFilter returns entries accepted by the filter.
func (r *Recorder) FindAllEntriesByFilter(filter func(entry RecordedEntry) bool) []RecordedEntry {
	var found []RecordedEntry
	for _, e := range r.journal.snapshot() {
		if filter(e) {
			found = append(found, e)
		}
	}
	return found
}

// CountByLevel returns the number of entries logged at level.
func (r *Recorder) CountByLevel(level log.Level) int {
	return len(r.FindAllEntriesByFilter(func(e RecordedEntry) bool { return e.Level == level }))
}

// Reset drops all recorded entries.
func (r *Recorder) Reset() {
	r.journal.mu.Lock()
	r.journal.entries = nil
	r.journal.mu.Unlock()
}

func levelOf(l logf.Level) log.Level {
	switch l {
	case logf.LevelError:
		return log.LevelError
	case logf.LevelWarn:
		return log.LevelWarn
	case logf.LevelDebug:
		return log.LevelDebug
	default:
		return log.LevelInfo
	}
}
