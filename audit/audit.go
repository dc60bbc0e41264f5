// Package audit records every patch-apply outcome to a pluggable sink, for
// deployments that want a durable history of what was applied and when
// beyond the applied-set used for idempotency.
//
// This is an enrichment beyond the source patcher, which keeps no history
// at all past the applied-set file. A sink is observability-only: its
// failure is logged but never blocks or reverses a patch apply, and it is
// never consulted to decide whether a patch is pending (see patchcache).
package audit

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Event is one recorded patch-apply outcome.
type Event struct {
	Filename  string
	Succeeded bool
	Message   string
	AppliedAt time.Time
}

// Sink persists Events. Implementations must not block the caller for
// long; the orchestrator calls Record synchronously after each apply.
type Sink interface {
	Record(Event) error
	Close() error
}

var log = logrus.WithField("pkg", "audit")

// Record writes event to sink, logging (not propagating) any failure. The
// patch-apply pipeline's own success/failure is already decided by the
// time this runs.
func Record(sink Sink, event Event) {
	if sink == nil {
		return
	}
	if err := sink.Record(event); err != nil {
		log.WithFields(logrus.Fields{"filename": event.Filename, "err": err}).Warn("audit sink failed to record event")
	}
}

// NewEvent builds an Event for filename at the current time.
func NewEvent(filename string, succeeded bool, message string) Event {
	return Event{Filename: filename, Succeeded: succeeded, Message: message, AppliedAt: time.Now()}
}

// MultiSink fans a single Record out to every configured sink.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks, skipping any nil entries.
func NewMultiSink(sinks ...Sink) *MultiSink {
	nonNil := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			nonNil = append(nonNil, s)
		}
	}
	return &MultiSink{sinks: nonNil}
}

func (m *MultiSink) Record(e Event) error {
	var first error
	for _, s := range m.sinks {
		if err := s.Record(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *MultiSink) Close() error {
	var first error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
