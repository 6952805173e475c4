package searchindex

import (
	"context"
	"errors"
	"fmt"

	"github.com/lloydmeta/reqindex/internal/domain/item"
	"github.com/lloydmeta/reqindex/internal/domain/request"
)

// Locator finds the Requests that depend on an Item
type Locator struct {
	service request.Service
}

func NewLocator(service request.Service) Locator {
	return Locator{service: service}
}

// Dependents are the Requests referencing an Item. Unreadable ones are kept apart so that
// they do not hold the others back.
type Dependents struct {
	Requests   []request.Request
	Unreadable []request.UnreadableRequest
}

// Find returns every Request referencing the given Item; Requests is never nil on success.
//
// Failures are wrapped in a LookupError.
func (l Locator) Find(ctx context.Context, itemId item.Id) (Dependents, error) {
	found, err := l.service.FindByItemId(ctx, itemId)
	var dependents Dependents
	if err != nil {
		var unreadable request.UnreadableRequests
		if !errors.As(err, &unreadable) {
			return dependents, LookupError{ItemId: itemId, Underlying: err}
		}
		dependents.Unreadable = unreadable.Unreadable
	}
	if found == nil {
		found = []request.Request{}
	}
	dependents.Requests = found
	return dependents, nil
}

// LookupError is returned when the Requests referencing an Item could not be looked up
type LookupError struct {
	ItemId     item.Id
	Underlying error
}

func (e LookupError) Error() string {
	return fmt.Sprintf("Could not look up requests for item [%v]: %v", e.ItemId, e.Underlying)
}

func (e LookupError) Unwrap() error {
	return e.Underlying
}
