// searchindex keeps the denormalised searchIndex of Requests in line with the Items they
// reference.
package searchindex

import (
	"context"
	"errors"
	"sort"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/lloydmeta/reqindex/internal/domain/event"
	"github.com/lloydmeta/reqindex/internal/domain/item"
	"github.com/lloydmeta/reqindex/internal/domain/request"
)

// Settings for a Synchronizer
type Settings struct {
	// How many more times a Request is re-read and re-written after a version conflict
	VersionConflictRetryTimes uint
	// Max number of Requests written at the same time for one notification; 0 means unbounded
	WriteConcurrency uint
}

// Synchronizer handles Item change notifications for a single tenant.
type Synchronizer struct {
	service  request.Service
	locator  Locator
	settings Settings
	stats    *Stats
}

// NewSynchronizer returns a Synchronizer that reads and writes Requests through the given
// service. stats may be shared between Synchronizers; when nil a private one is used.
func NewSynchronizer(service request.Service, settings Settings, stats *Stats) *Synchronizer {
	if stats == nil {
		stats = &Stats{}
	}
	return &Synchronizer{
		service:  service,
		locator:  NewLocator(service),
		settings: settings,
		stats:    stats,
	}
}

// OnNotification brings the searchIndex of every Request referencing the notification's Item
// in line with the new version of the Item.
//
// Safe to call again with the same notification: Requests that are already in line are not
// written.
//
// Returns a LookupError if the dependent Requests could not be found, and WriteFailures if any
// of them could not be written. In both cases the Report describes what was done.
func (s *Synchronizer) OnNotification(ctx context.Context, notification *event.Notification) (Report, error) {
	report := s.handle(ctx, notification)
	s.stats.recordReport(&report.Report)

	switch report.Outcome {
	case LOOKUP_FAILED:
		return report.Report, report.lookupErr
	case SYNCHRONISED:
		var failures []RecordResult
		for _, rec := range report.Records {
			if rec.Outcome == FAILED {
				failures = append(failures, rec)
			}
		}
		if len(failures) > 0 {
			return report.Report, WriteFailures{ItemId: report.ItemId, Failures: failures}
		}
	}
	return report.Report, nil
}

type handled struct {
	Report
	lookupErr error
}

func (s *Synchronizer) handle(ctx context.Context, notification *event.Notification) handled {
	if !notification.IsActionable() {
		return handled{Report: Report{Outcome: NOT_ACTIONABLE}}
	}
	itemId := notification.ItemId()
	changed := item.ChangedAttributes(notification.Old, notification.New)
	if len(changed) == 0 {
		log.Debug().
			Str("item_id", string(itemId)).
			Msg("No tracked attribute changed")
		return handled{Report: Report{Outcome: IRRELEVANT, ItemId: itemId}}
	}

	dependents, err := s.locator.Find(ctx, itemId)
	if err != nil {
		return handled{
			Report:    Report{Outcome: LOOKUP_FAILED, ItemId: itemId, Changed: changed},
			lookupErr: err,
		}
	}
	log.Debug().
		Str("item_id", string(itemId)).
		Int("requests", len(dependents.Requests)).
		Int("unreadable", len(dependents.Unreadable)).
		Msg("Synchronising requests")

	records := s.syncAll(ctx, notification.New, dependents.Requests)
	if len(dependents.Unreadable) > 0 {
		records = append(records, skipUnreadable(itemId, dependents.Unreadable)...)
		sort.Slice(records, func(i, j int) bool {
			return records[i].RequestId < records[j].RequestId
		})
	}
	return handled{
		Report: Report{
			Outcome: SYNCHRONISED,
			ItemId:  itemId,
			Changed: changed,
			Records: records,
		},
	}
}

// Retrying cannot make a stored document readable, so unreadable Requests are skipped
func skipUnreadable(itemId item.Id, unreadable []request.UnreadableRequest) []RecordResult {
	results := make([]RecordResult, 0, len(unreadable))
	for _, u := range unreadable {
		log.Error().
			Err(u.Err).
			Str("request_id", string(u.ID)).
			Str("item_id", string(itemId)).
			Msg("Skipping unreadable request")
		results = append(results, RecordResult{RequestId: u.ID, Outcome: SKIPPED, Err: u.Err})
	}
	return results
}

func (s *Synchronizer) syncAll(ctx context.Context, newItem *item.Item, dependents []request.Request) []RecordResult {
	results := make(chan RecordResult, len(dependents))
	var g errgroup.Group
	if s.settings.WriteConcurrency > 0 {
		g.SetLimit(int(s.settings.WriteConcurrency))
	}
	for i := range dependents {
		dependent := dependents[i]
		g.Go(func() error {
			results <- s.syncOne(ctx, newItem, &dependent)
			return nil
		})
	}
	_ = g.Wait()
	close(results)

	collected := make([]RecordResult, 0, len(dependents))
	for result := range results {
		collected = append(collected, result)
	}
	sort.Slice(collected, func(i, j int) bool {
		return collected[i].RequestId < collected[j].RequestId
	})
	return collected
}

// syncOne compares, then writes conditionally on the version that was read. On a version
// conflict the Request is read again and the whole thing repeated.
func (s *Synchronizer) syncOne(ctx context.Context, newItem *item.Item, current *request.Request) RecordResult {
	requestId := current.ID
	maxAttempts := s.settings.VersionConflictRetryTimes + 1
	var attempt uint
	for attempt = 1; ; attempt++ {
		if current.ItemID != newItem.ID {
			log.Debug().
				Str("request_id", string(requestId)).
				Str("item_id", string(newItem.ID)).
				Msg("Request no longer references the item")
			return RecordResult{RequestId: requestId, Outcome: SKIPPED, Attempts: attempt}
		}
		candidate := request.BuildSearchIndex(current.SearchIndex, newItem)
		if request.Equivalent(current.SearchIndex, &candidate) {
			return RecordResult{RequestId: requestId, Outcome: UNCHANGED, Attempts: attempt}
		}

		toWrite := *current
		toWrite.SearchIndex = &candidate
		_, err := s.service.Update(ctx, &toWrite)
		if err == nil {
			log.Debug().
				Str("request_id", string(requestId)).
				Uint("attempt", attempt).
				Msg("Wrote searchIndex")
			return RecordResult{RequestId: requestId, Outcome: WRITTEN, Attempts: attempt}
		}

		var invalidVersion request.InvalidVersion
		var notFound request.NotFound
		switch {
		case errors.As(err, &notFound):
			return RecordResult{RequestId: requestId, Outcome: SKIPPED, Attempts: attempt}
		case errors.As(err, &invalidVersion):
			s.stats.recordWriteConflict()
			if attempt >= maxAttempts {
				return RecordResult{
					RequestId: requestId,
					Outcome:   FAILED,
					Attempts:  attempt,
					Err:       WriteConflict{RequestId: requestId, Attempts: attempt},
				}
			}
			log.Debug().
				Str("request_id", string(requestId)).
				Uint("attempt", attempt).
				Msg("Version conflict, re-reading request")
			reread, getErr := s.service.Get(ctx, requestId)
			if getErr != nil {
				if errors.As(getErr, &notFound) {
					return RecordResult{RequestId: requestId, Outcome: SKIPPED, Attempts: attempt}
				}
				return RecordResult{RequestId: requestId, Outcome: FAILED, Attempts: attempt, Err: getErr}
			}
			current = reread
		default:
			log.Error().
				Err(err).
				Str("request_id", string(requestId)).
				Msg("Failed to write searchIndex")
			return RecordResult{RequestId: requestId, Outcome: FAILED, Attempts: attempt, Err: err}
		}
	}
}
