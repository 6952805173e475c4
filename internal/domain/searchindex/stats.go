package searchindex

import (
	"errors"
	"sync/atomic"

	"github.com/lloydmeta/reqindex/internal/domain/request"
)

// Stats counts what the synchroniser has been doing since startup.
//
// Notifications are counted once per handled message. Everything the Synchronizer does is
// counted per attempt, so a notification that is retried shows up once in Notifications but
// several times in Attempts, LookupFailures and the request counters.
//
// All methods are safe for concurrent use.
type Stats struct {
	notifications      uint64
	attempts           uint64
	notActionable      uint64
	irrelevant         uint64
	lookupFailures     uint64
	requestsWritten    uint64
	requestsUnchanged  uint64
	requestsSkipped    uint64
	requestsFailed     uint64
	requestsUnreadable uint64
	writeConflicts     uint64
	discarded          uint64
	abandoned          uint64
}

// StatsSnapshot is a point in time copy of Stats
type StatsSnapshot struct {
	Notifications      uint64 `json:"notifications"`
	Attempts           uint64 `json:"attempts"`
	NotActionable      uint64 `json:"not_actionable"`
	Irrelevant         uint64 `json:"irrelevant"`
	LookupFailures     uint64 `json:"lookup_failures"`
	RequestsWritten    uint64 `json:"requests_written"`
	RequestsUnchanged  uint64 `json:"requests_unchanged"`
	RequestsSkipped    uint64 `json:"requests_skipped"`
	RequestsFailed     uint64 `json:"requests_failed"`
	RequestsUnreadable uint64 `json:"requests_unreadable"`
	WriteConflicts     uint64 `json:"write_conflicts"`
	Discarded          uint64 `json:"discarded"`
	Abandoned          uint64 `json:"abandoned"`
}

// RecordNotification counts a message that was decoded into a notification for a served tenant
func (s *Stats) RecordNotification() {
	atomic.AddUint64(&s.notifications, 1)
}

func (s *Stats) recordReport(report *Report) {
	atomic.AddUint64(&s.attempts, 1)
	switch report.Outcome {
	case NOT_ACTIONABLE:
		atomic.AddUint64(&s.notActionable, 1)
	case IRRELEVANT:
		atomic.AddUint64(&s.irrelevant, 1)
	case LOOKUP_FAILED:
		atomic.AddUint64(&s.lookupFailures, 1)
	}
	for _, rec := range report.Records {
		switch rec.Outcome {
		case WRITTEN:
			atomic.AddUint64(&s.requestsWritten, 1)
		case UNCHANGED:
			atomic.AddUint64(&s.requestsUnchanged, 1)
		case SKIPPED:
			atomic.AddUint64(&s.requestsSkipped, 1)
			var unreadable request.InvalidPersistedData
			if errors.As(rec.Err, &unreadable) {
				atomic.AddUint64(&s.requestsUnreadable, 1)
			}
		case FAILED:
			atomic.AddUint64(&s.requestsFailed, 1)
		}
	}
}

func (s *Stats) recordWriteConflict() {
	atomic.AddUint64(&s.writeConflicts, 1)
}

// RecordDiscarded counts a message that was dropped without being handled (e.g. undecodable)
func (s *Stats) RecordDiscarded() {
	atomic.AddUint64(&s.discarded, 1)
}

// RecordAbandoned counts a notification that was given up on after running out of attempts
func (s *Stats) RecordAbandoned() {
	atomic.AddUint64(&s.abandoned, 1)
}

// Snapshot returns the current values
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Notifications:      atomic.LoadUint64(&s.notifications),
		Attempts:           atomic.LoadUint64(&s.attempts),
		NotActionable:      atomic.LoadUint64(&s.notActionable),
		Irrelevant:         atomic.LoadUint64(&s.irrelevant),
		LookupFailures:     atomic.LoadUint64(&s.lookupFailures),
		RequestsWritten:    atomic.LoadUint64(&s.requestsWritten),
		RequestsUnchanged:  atomic.LoadUint64(&s.requestsUnchanged),
		RequestsSkipped:    atomic.LoadUint64(&s.requestsSkipped),
		RequestsFailed:     atomic.LoadUint64(&s.requestsFailed),
		RequestsUnreadable: atomic.LoadUint64(&s.requestsUnreadable),
		WriteConflicts:     atomic.LoadUint64(&s.writeConflicts),
		Discarded:          atomic.LoadUint64(&s.discarded),
		Abandoned:          atomic.LoadUint64(&s.abandoned),
	}
}

// Since returns how much each count grew between previous and s
func (s StatsSnapshot) Since(previous StatsSnapshot) StatsSnapshot {
	return StatsSnapshot{
		Notifications:      s.Notifications - previous.Notifications,
		Attempts:           s.Attempts - previous.Attempts,
		NotActionable:      s.NotActionable - previous.NotActionable,
		Irrelevant:         s.Irrelevant - previous.Irrelevant,
		LookupFailures:     s.LookupFailures - previous.LookupFailures,
		RequestsWritten:    s.RequestsWritten - previous.RequestsWritten,
		RequestsUnchanged:  s.RequestsUnchanged - previous.RequestsUnchanged,
		RequestsSkipped:    s.RequestsSkipped - previous.RequestsSkipped,
		RequestsFailed:     s.RequestsFailed - previous.RequestsFailed,
		RequestsUnreadable: s.RequestsUnreadable - previous.RequestsUnreadable,
		WriteConflicts:     s.WriteConflicts - previous.WriteConflicts,
		Discarded:          s.Discarded - previous.Discarded,
		Abandoned:          s.Abandoned - previous.Abandoned,
	}
}
