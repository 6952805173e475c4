package searchindex

import (
	"fmt"
	"strings"

	"github.com/lloydmeta/reqindex/internal/domain/item"
	"github.com/lloydmeta/reqindex/internal/domain/request"
)

// Outcome of handling a whole notification
type Outcome uint

const (
	// Not an update carrying both versions of an Item; nothing was looked up
	NOT_ACTIONABLE Outcome = iota
	// No tracked attribute changed; nothing was looked up
	IRRELEVANT
	// Dependent Requests were looked up and each one synchronised (see the RecordResults)
	SYNCHRONISED
	// Dependent Requests could not be looked up
	LOOKUP_FAILED
)

var outcomesToString = map[Outcome]string{
	NOT_ACTIONABLE: "not_actionable",
	IRRELEVANT:     "irrelevant",
	SYNCHRONISED:   "synchronised",
	LOOKUP_FAILED:  "lookup_failed",
}

func (o Outcome) String() string {
	return outcomesToString[o]
}

// RecordOutcome is the outcome of synchronising a single Request
type RecordOutcome uint

const (
	WRITTEN RecordOutcome = iota
	UNCHANGED
	// The Request vanished, or no longer references the Item
	SKIPPED
	FAILED
)

var recordOutcomesToString = map[RecordOutcome]string{
	WRITTEN:   "written",
	UNCHANGED: "unchanged",
	SKIPPED:   "skipped",
	FAILED:    "failed",
}

func (o RecordOutcome) String() string {
	return recordOutcomesToString[o]
}

// RecordResult is what happened to one Request. Err is only set when Outcome is FAILED.
type RecordResult struct {
	RequestId request.Id
	Outcome   RecordOutcome
	Attempts  uint
	Err       error
}

// Report describes what handling a notification did
type Report struct {
	Outcome Outcome
	ItemId  item.Id
	Changed []item.Attribute
	Records []RecordResult
}

// Count returns the number of Requests that ended up with the given outcome
func (r *Report) Count(outcome RecordOutcome) int {
	count := 0
	for _, rec := range r.Records {
		if rec.Outcome == outcome {
			count++
		}
	}
	return count
}

// <-- Errors

// WriteConflict is returned for a Request that kept being modified concurrently
// until we ran out of attempts
type WriteConflict struct {
	RequestId request.Id
	Attempts  uint
}

func (e WriteConflict) Error() string {
	return fmt.Sprintf("Request [%v] was concurrently modified on each of [%d] attempts", e.RequestId, e.Attempts)
}

// WriteFailures is returned when one or more Requests could not be written
type WriteFailures struct {
	ItemId   item.Id
	Failures []RecordResult
}

func (e WriteFailures) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, fmt.Sprintf("[%v]: %v", f.RequestId, f.Err))
	}
	return fmt.Sprintf("Failed to write [%d] request(s) for item [%v]: %s", len(e.Failures), e.ItemId, strings.Join(msgs, ", "))
}

//     Errors -->
