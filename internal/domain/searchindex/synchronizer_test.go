package searchindex

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lloydmeta/reqindex/internal/domain/event"
	"github.com/lloydmeta/reqindex/internal/domain/item"
	"github.com/lloydmeta/reqindex/internal/domain/metadata"
	"github.com/lloydmeta/reqindex/internal/domain/request"
)

var ctx = context.Background()

func strPtr(s string) *string {
	return &s
}

func mkItem(id item.Id, prefix string, callNumber string, suffix string, shelvingOrder string) *item.Item {
	return &item.Item{
		ID: id,
		EffectiveCallNumberComponents: &item.CallNumberComponents{
			Prefix:     strPtr(prefix),
			CallNumber: strPtr(callNumber),
			Suffix:     strPtr(suffix),
		},
		EffectiveShelvingOrder: strPtr(shelvingOrder),
	}
}

func update(old *item.Item, new *item.Item) *event.Notification {
	return &event.Notification{
		Tenant: "diku",
		Type:   event.UPDATE,
		Old:    old,
		New:    new,
	}
}

// store is a versioned in-memory set of Requests exposed through a MockRequestsService
type store struct {
	mu       sync.Mutex
	requests map[request.Id]request.Request
}

func newStore(requests ...request.Request) *store {
	s := store{requests: make(map[request.Id]request.Request)}
	for _, r := range requests {
		s.requests[r.ID] = r
	}
	return &s
}

func (s *store) get(id request.Id) request.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[id]
}

func (s *store) put(r request.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[r.ID] = r
}

func (s *store) service() *request.MockRequestsService {
	return &request.MockRequestsService{
		GetOverride: func(id request.Id) (*request.Request, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			r, ok := s.requests[id]
			if !ok {
				return nil, request.NotFound{ID: id}
			}
			return &r, nil
		},
		FindByItemIdOverride: func(itemId item.Id) ([]request.Request, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			var found []request.Request
			for _, r := range s.requests {
				if r.ItemID == itemId {
					found = append(found, r)
				}
			}
			return found, nil
		},
		UpdateOverride: func(r *request.Request) (*request.Request, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			existing, ok := s.requests[r.ID]
			if !ok {
				return nil, request.NotFound{ID: r.ID}
			}
			if existing.Metadata.Version != r.Metadata.Version {
				return nil, request.InvalidVersion{ID: r.ID}
			}
			updated := *r
			updated.Metadata.Version.SeqNum++
			s.requests[r.ID] = updated
			return &updated, nil
		},
	}
}

func mkRequest(id request.Id, itemId item.Id, searchIndex *request.SearchIndex) request.Request {
	return request.Request{
		ID:          id,
		ItemID:      itemId,
		SearchIndex: searchIndex,
		Fields:      request.JsonObj{"status": "Open - Not yet filled"},
		Metadata:    metadata.Metadata{Version: metadata.Version{SeqNum: 1, PrimaryTerm: 1}},
	}
}

var defaultSettings = Settings{VersionConflictRetryTimes: 2, WriteConcurrency: 4}

func TestSynchronizer_OnNotification_prefixChange(t *testing.T) {
	old := mkItem("item-1", "A", "CN", "S", "SO")
	new := mkItem("item-1", "B", "CN", "S", "SO")
	s := newStore(mkRequest("r1", "item-1", &request.SearchIndex{
		PickupServicePointName: strPtr("Circ Desk 1"),
		ShelvingOrder:          strPtr("SO"),
		CallNumberComponents: &request.CallNumberComponents{
			CallNumber: strPtr("CN"),
			Prefix:     strPtr("A"),
			Suffix:     strPtr("S"),
		},
	}))
	stats := Stats{}
	synchronizer := NewSynchronizer(s.service(), defaultSettings, &stats)

	report, err := synchronizer.OnNotification(ctx, update(old, new))
	assert.NoError(t, err)
	assert.Equal(t, SYNCHRONISED, report.Outcome)
	assert.Equal(t, []item.Attribute{item.CallNumberPrefix}, report.Changed)
	assert.Equal(t, 1, report.Count(WRITTEN))

	stored := s.get("r1")
	assert.Equal(t, "B", *stored.SearchIndex.CallNumberComponents.Prefix)
	assert.Equal(t, "CN", *stored.SearchIndex.CallNumberComponents.CallNumber)
	assert.Equal(t, "S", *stored.SearchIndex.CallNumberComponents.Suffix)
	assert.Equal(t, "SO", *stored.SearchIndex.ShelvingOrder)
	assert.Equal(t, "Circ Desk 1", *stored.SearchIndex.PickupServicePointName)
	assert.Equal(t, request.JsonObj{"status": "Open - Not yet filled"}, stored.Fields)

	snapshot := stats.Snapshot()
	assert.EqualValues(t, 1, snapshot.Attempts)
	assert.EqualValues(t, 1, snapshot.RequestsWritten)
}

func TestSynchronizer_OnNotification_removedAttributesAreOmitted(t *testing.T) {
	old := mkItem("item-1", "A", "CN", "S", "SO")
	new := &item.Item{ID: "item-1"}
	s := newStore(mkRequest("r1", "item-1", &request.SearchIndex{
		PickupServicePointName: strPtr("Circ Desk 1"),
		ShelvingOrder:          strPtr("SO"),
		CallNumberComponents: &request.CallNumberComponents{
			CallNumber: strPtr("CN"),
			Prefix:     strPtr("A"),
			Suffix:     strPtr("S"),
		},
	}))
	synchronizer := NewSynchronizer(s.service(), defaultSettings, nil)

	report, err := synchronizer.OnNotification(ctx, update(old, new))
	assert.NoError(t, err)
	assert.Equal(t, 1, report.Count(WRITTEN))

	stored := s.get("r1")
	assert.Nil(t, stored.SearchIndex.CallNumberComponents)
	assert.Nil(t, stored.SearchIndex.ShelvingOrder)
	assert.Equal(t, "Circ Desk 1", *stored.SearchIndex.PickupServicePointName)
}

func TestSynchronizer_OnNotification_irrelevantChange(t *testing.T) {
	old := mkItem("item-1", "A", "CN", "S", "SO")
	new := mkItem("item-1", "A", "CN", "S", "SO")
	new.Barcode = strPtr("new-barcode")
	new.Status = item.Status{Name: "Checked out"}

	service := request.MockRequestsService{}
	synchronizer := NewSynchronizer(&service, defaultSettings, nil)

	report, err := synchronizer.OnNotification(ctx, update(old, new))
	assert.NoError(t, err)
	assert.Equal(t, IRRELEVANT, report.Outcome)
	_, _, findCalled, updateCalled := service.Calls()
	assert.Zero(t, findCalled)
	assert.Zero(t, updateCalled)
}

func TestSynchronizer_OnNotification_notActionable(t *testing.T) {
	old := mkItem("item-1", "A", "CN", "S", "SO")
	new := mkItem("item-1", "B", "CN", "S", "SO")
	tests := []struct {
		name         string
		notification *event.Notification
	}{
		{"nil", nil},
		{"create", &event.Notification{Tenant: "diku", Type: event.CREATE, New: new}},
		{"delete", &event.Notification{Tenant: "diku", Type: event.DELETE, Old: old}},
		{"update without old", &event.Notification{Tenant: "diku", Type: event.UPDATE, New: new}},
		{"update without new", &event.Notification{Tenant: "diku", Type: event.UPDATE, Old: old}},
		{"update across items", update(old, mkItem("item-2", "B", "CN", "S", "SO"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := request.MockRequestsService{}
			stats := Stats{}
			synchronizer := NewSynchronizer(&service, defaultSettings, &stats)

			report, err := synchronizer.OnNotification(ctx, tt.notification)
			assert.NoError(t, err)
			assert.Equal(t, NOT_ACTIONABLE, report.Outcome)
			_, _, findCalled, _ := service.Calls()
			assert.Zero(t, findCalled)
			assert.EqualValues(t, 1, stats.Snapshot().NotActionable)
		})
	}
}

func TestSynchronizer_OnNotification_noDependents(t *testing.T) {
	service := request.MockRequestsService{
		FindByItemIdOverride: func(itemId item.Id) ([]request.Request, error) {
			return nil, nil
		},
	}
	synchronizer := NewSynchronizer(&service, defaultSettings, nil)

	report, err := synchronizer.OnNotification(ctx, update(
		mkItem("item-1", "A", "CN", "S", "SO"),
		mkItem("item-1", "A", "CN2", "S", "SO"),
	))
	assert.NoError(t, err)
	assert.Equal(t, SYNCHRONISED, report.Outcome)
	assert.Empty(t, report.Records)
	_, _, _, updateCalled := service.Calls()
	assert.Zero(t, updateCalled)
}

func TestSynchronizer_OnNotification_lookupFailure(t *testing.T) {
	boom := errors.New("cluster unavailable")
	service := request.MockRequestsService{
		FindByItemIdOverride: func(itemId item.Id) ([]request.Request, error) {
			return nil, boom
		},
	}
	stats := Stats{}
	synchronizer := NewSynchronizer(&service, defaultSettings, &stats)

	report, err := synchronizer.OnNotification(ctx, update(
		mkItem("item-1", "A", "CN", "S", "SO"),
		mkItem("item-1", "A", "CN", "S", "SO2"),
	))
	assert.Equal(t, LOOKUP_FAILED, report.Outcome)
	var lookupErr LookupError
	assert.True(t, errors.As(err, &lookupErr))
	assert.Equal(t, item.Id("item-1"), lookupErr.ItemId)
	assert.True(t, errors.Is(err, boom))
	assert.EqualValues(t, 1, stats.Snapshot().LookupFailures)
}

func TestSynchronizer_OnNotification_isIdempotent(t *testing.T) {
	old := mkItem("item-1", "A", "CN", "S", "SO")
	new := mkItem("item-1", "A", "CN", "S", "SO2")
	s := newStore(
		mkRequest("r1", "item-1", &request.SearchIndex{PickupServicePointName: strPtr("Desk")}),
		mkRequest("r2", "item-1", nil),
	)
	service := s.service()
	synchronizer := NewSynchronizer(service, defaultSettings, nil)

	first, err := synchronizer.OnNotification(ctx, update(old, new))
	assert.NoError(t, err)
	assert.Equal(t, 2, first.Count(WRITTEN))
	afterFirst := s.get("r1")

	second, err := synchronizer.OnNotification(ctx, update(old, new))
	assert.NoError(t, err)
	assert.Equal(t, 2, second.Count(UNCHANGED))
	assert.Equal(t, afterFirst, s.get("r1"))
	_, _, _, updateCalled := service.Calls()
	assert.EqualValues(t, 2, updateCalled)
}

func TestSynchronizer_OnNotification_onlyTouchesRequestsOfTheItem(t *testing.T) {
	untouched := mkRequest("other", "item-2", &request.SearchIndex{ShelvingOrder: strPtr("X")})
	s := newStore(
		mkRequest("r1", "item-1", nil),
		untouched,
	)
	synchronizer := NewSynchronizer(s.service(), defaultSettings, nil)

	_, err := synchronizer.OnNotification(ctx, update(
		mkItem("item-1", "A", "CN", "S", "SO"),
		mkItem("item-1", "A", "CN", "S", "SO2"),
	))
	assert.NoError(t, err)
	assert.Equal(t, untouched, s.get("other"))
	assert.Equal(t, "SO2", *s.get("r1").SearchIndex.ShelvingOrder)
}

func TestSynchronizer_OnNotification_skipsRequestsThatMovedToAnotherItem(t *testing.T) {
	stale := mkRequest("r1", "item-1", nil)
	service := request.MockRequestsService{
		FindByItemIdOverride: func(itemId item.Id) ([]request.Request, error) {
			moved := stale
			moved.ItemID = "item-9"
			return []request.Request{moved}, nil
		},
	}
	synchronizer := NewSynchronizer(&service, defaultSettings, nil)

	report, err := synchronizer.OnNotification(ctx, update(
		mkItem("item-1", "A", "CN", "S", "SO"),
		mkItem("item-1", "A", "CN", "S", "SO2"),
	))
	assert.NoError(t, err)
	assert.Equal(t, 1, report.Count(SKIPPED))
	_, _, _, updateCalled := service.Calls()
	assert.Zero(t, updateCalled)
}

func TestSynchronizer_OnNotification_retriesVersionConflicts(t *testing.T) {
	s := newStore(mkRequest("r1", "item-1", &request.SearchIndex{PickupServicePointName: strPtr("Desk")}))
	service := s.service()
	storeUpdate := service.UpdateOverride
	conflicts := 0
	service.UpdateOverride = func(r *request.Request) (*request.Request, error) {
		if conflicts == 0 {
			conflicts++
			// someone else writes in between our read and our write
			concurrent := s.get(r.ID)
			concurrent.Fields = request.JsonObj{"status": "Closed - Filled"}
			concurrent.Metadata.Version.SeqNum++
			s.put(concurrent)
		}
		return storeUpdate(r)
	}
	stats := Stats{}
	synchronizer := NewSynchronizer(service, defaultSettings, &stats)

	report, err := synchronizer.OnNotification(ctx, update(
		mkItem("item-1", "A", "CN", "S", "SO"),
		mkItem("item-1", "A", "CN", "S", "SO2"),
	))
	assert.NoError(t, err)
	assert.Equal(t, 1, report.Count(WRITTEN))
	assert.EqualValues(t, 2, report.Records[0].Attempts)

	stored := s.get("r1")
	assert.Equal(t, "SO2", *stored.SearchIndex.ShelvingOrder)
	assert.Equal(t, "Desk", *stored.SearchIndex.PickupServicePointName)
	assert.Equal(t, request.JsonObj{"status": "Closed - Filled"}, stored.Fields)
	assert.EqualValues(t, 1, stats.Snapshot().WriteConflicts)
}

func TestSynchronizer_OnNotification_givesUpOnPersistentConflicts(t *testing.T) {
	s := newStore(mkRequest("r1", "item-1", nil))
	service := s.service()
	service.UpdateOverride = func(r *request.Request) (*request.Request, error) {
		return nil, request.InvalidVersion{ID: r.ID}
	}
	synchronizer := NewSynchronizer(service, Settings{VersionConflictRetryTimes: 2}, nil)

	report, err := synchronizer.OnNotification(ctx, update(
		mkItem("item-1", "A", "CN", "S", "SO"),
		mkItem("item-1", "A", "CN", "S", "SO2"),
	))
	var failures WriteFailures
	assert.True(t, errors.As(err, &failures))
	assert.Len(t, failures.Failures, 1)
	var conflict WriteConflict
	assert.True(t, errors.As(failures.Failures[0].Err, &conflict))
	assert.EqualValues(t, 3, conflict.Attempts)
	assert.Equal(t, 1, report.Count(FAILED))
	_, getCalled, _, updateCalled := service.Calls()
	assert.EqualValues(t, 3, updateCalled)
	assert.EqualValues(t, 2, getCalled)
}

func TestSynchronizer_OnNotification_conflictThenDeleted(t *testing.T) {
	s := newStore(mkRequest("r1", "item-1", nil))
	service := s.service()
	service.UpdateOverride = func(r *request.Request) (*request.Request, error) {
		return nil, request.InvalidVersion{ID: r.ID}
	}
	service.GetOverride = func(id request.Id) (*request.Request, error) {
		return nil, request.NotFound{ID: id}
	}
	synchronizer := NewSynchronizer(service, defaultSettings, nil)

	report, err := synchronizer.OnNotification(ctx, update(
		mkItem("item-1", "A", "CN", "S", "SO"),
		mkItem("item-1", "A", "CN", "S", "SO2"),
	))
	assert.NoError(t, err)
	assert.Equal(t, 1, report.Count(SKIPPED))
}

func TestSynchronizer_OnNotification_oneFailureDoesNotStopTheOthers(t *testing.T) {
	s := newStore(
		mkRequest("r1", "item-1", nil),
		mkRequest("r2", "item-1", nil),
		mkRequest("r3", "item-1", nil),
	)
	service := s.service()
	storeUpdate := service.UpdateOverride
	boom := errors.New("disk full")
	service.UpdateOverride = func(r *request.Request) (*request.Request, error) {
		if r.ID == "r2" {
			return nil, boom
		}
		return storeUpdate(r)
	}
	stats := Stats{}
	synchronizer := NewSynchronizer(service, Settings{WriteConcurrency: 1}, &stats)

	report, err := synchronizer.OnNotification(ctx, update(
		mkItem("item-1", "A", "CN", "S", "SO"),
		mkItem("item-1", "A", "CN", "S", "SO2"),
	))
	var failures WriteFailures
	assert.True(t, errors.As(err, &failures))
	assert.Equal(t, item.Id("item-1"), failures.ItemId)
	assert.Len(t, failures.Failures, 1)
	assert.Equal(t, request.Id("r2"), failures.Failures[0].RequestId)
	assert.Equal(t, boom, failures.Failures[0].Err)

	assert.Equal(t, 2, report.Count(WRITTEN))
	assert.Equal(t, []request.Id{"r1", "r2", "r3"}, []request.Id{report.Records[0].RequestId, report.Records[1].RequestId, report.Records[2].RequestId})
	assert.Equal(t, "SO2", *s.get("r1").SearchIndex.ShelvingOrder)
	assert.Equal(t, "SO2", *s.get("r3").SearchIndex.ShelvingOrder)
	assert.Nil(t, s.get("r2").SearchIndex)
	assert.EqualValues(t, 1, stats.Snapshot().RequestsFailed)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "synchronised", SYNCHRONISED.String())
	assert.Equal(t, "skipped", SKIPPED.String())
}

func TestSynchronizer_OnNotification_unreadableSiblingDoesNotBlockOthers(t *testing.T) {
	s := newStore(mkRequest("good", "item-1", &request.SearchIndex{ShelvingOrder: strPtr("OLD")}))
	service := s.service()
	findReadable := service.FindByItemIdOverride
	unreadable := request.UnreadableRequest{
		ID:  "bad",
		Err: request.InvalidPersistedData{PersistedData: `{"id": "bad", "searchIndex": {"shelvingOrder": 5}}`},
	}
	service.FindByItemIdOverride = func(itemId item.Id) ([]request.Request, error) {
		found, _ := findReadable(itemId)
		return found, request.UnreadableRequests{ItemID: itemId, Unreadable: []request.UnreadableRequest{unreadable}}
	}
	stats := Stats{}
	synchronizer := NewSynchronizer(service, defaultSettings, &stats)

	report, err := synchronizer.OnNotification(ctx, update(
		mkItem("item-1", "", "", "", "OLD"),
		mkItem("item-1", "", "", "", "NEW"),
	))
	assert.NoError(t, err)
	assert.Equal(t, SYNCHRONISED, report.Outcome)
	assert.Equal(t, []RecordResult{
		{RequestId: "bad", Outcome: SKIPPED, Err: unreadable.Err},
		{RequestId: "good", Outcome: WRITTEN, Attempts: 1},
	}, report.Records)
	assert.Equal(t, "NEW", *s.get("good").SearchIndex.ShelvingOrder)

	snapshot := stats.Snapshot()
	assert.EqualValues(t, 1, snapshot.RequestsUnreadable)
	assert.Zero(t, snapshot.LookupFailures)
}
