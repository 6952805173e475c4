package request

import (
	"context"
	"fmt"

	"github.com/lloydmeta/reqindex/internal/domain/item"
)

// A Service that takes care of the persistence of Requests for a single tenant.
//
// This is the only view we have of request storage: we look requests up by the Item they
// reference, get them by Id and write them back by Id.
type Service interface {
	// Persists the given Request. If it has no ID, one is generated.
	//
	// Errors out with AlreadyExists if a Request with the same ID exists.
	Create(ctx context.Context, request *Request) (*Request, error)

	// Retrieves a Request by Id, returns NotFound if no such Request exists
	Get(ctx context.Context, id Id) (*Request, error)

	// Finds all Requests that reference the given Item. Returns an empty slice and no error
	// if there are none.
	//
	// Documents that cannot be read do not fail the lookup: the readable Requests are returned
	// along with an UnreadableRequests error listing the others.
	FindByItemId(ctx context.Context, itemId item.Id) ([]Request, error)

	// Writes the given Request back, using its Metadata Version for optimistic locking.
	//
	// Errors out if the Request
	//  1. Does not exist (NotFound)
	//  2. Has been updated since it was read (InvalidVersion)
	Update(ctx context.Context, request *Request) (*Request, error)
}

// <-- Domain Errors

// NotFound is returned when the service cannot find
// a Request by a given Id
type NotFound struct {
	ID Id
}

func (e NotFound) Error() string {
	return fmt.Sprintf("Could not find request [%v]", e.ID)
}

// InvalidVersion is returned when the version of the Request being written
// no longer matches the persisted one
type InvalidVersion struct {
	ID Id
}

func (e InvalidVersion) Error() string {
	return fmt.Sprintf("Version provided did not match persisted version for request [%v]", e.ID)
}

// AlreadyExists is returned when the service tries to create
// a Request, but there already exists one with the same ID
type AlreadyExists struct {
	ID Id
}

func (e AlreadyExists) Error() string {
	return fmt.Sprintf("Request with Id [%v] already exists", e.ID)
}

// Invalid data
type InvalidPersistedData struct {
	PersistedData interface{}
}

func (e InvalidPersistedData) Error() string {
	return fmt.Sprintf("Invalid persisted data [%v]", e.PersistedData)
}

// UnreadableRequest identifies a persisted Request whose document could not be read
type UnreadableRequest struct {
	ID  Id
	Err InvalidPersistedData
}

// UnreadableRequests is returned by FindByItemId, next to every Request that could be read,
// when some of the documents referencing the Item could not be read
type UnreadableRequests struct {
	ItemID     item.Id
	Unreadable []UnreadableRequest
}

func (e UnreadableRequests) Error() string {
	ids := make([]Id, 0, len(e.Unreadable))
	for _, u := range e.Unreadable {
		ids = append(ids, u.ID)
	}
	return fmt.Sprintf("Could not read requests %v referencing item [%v]", ids, e.ItemID)
}

//     Errors -->
