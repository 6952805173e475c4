package request

import (
	"strings"

	"github.com/google/uuid"

	"github.com/lloydmeta/reqindex/internal/domain/item"
	"github.com/lloydmeta/reqindex/internal/domain/metadata"
)

type JsonObj map[string]interface{}

// Id of a circulation request
type Id string

// Generates a random id
func GenerateId() Id {
	return Id(uuid.New().String())
}

// Call number components as copied into a SearchIndex
type CallNumberComponents struct {
	CallNumber *string
	Prefix     *string
	Suffix     *string
}

// SearchIndex is the read-optimised projection embedded in a Request.
//
// PickupServicePointName is supplied by whoever creates the Request and is never derived from
// the Item; everything else is a copy of the Item's tracked attributes.
type SearchIndex struct {
	PickupServicePointName *string
	ShelvingOrder          *string
	CallNumberComponents   *CallNumberComponents
}

// A Request that has been persisted. Fields holds every other attribute of the stored document,
// which we carry around untouched so that writes never drop data we don't own.
type Request struct {
	ID          Id
	ItemID      item.Id
	SearchIndex *SearchIndex
	Fields      JsonObj
	Metadata    metadata.Metadata
}

// BuildSearchIndex returns the SearchIndex that a Request should hold given its existing one and
// the latest version of the Item it references.
//
// The pickup service point name is carried over from existing as is; the tracked portion is
// rebuilt from newItem, omitting blank values and omitting the call number components entirely
// when all of them are blank.
func BuildSearchIndex(existing *SearchIndex, newItem *item.Item) SearchIndex {
	var built SearchIndex
	if existing != nil {
		built.PickupServicePointName = copyStr(existing.PickupServicePointName)
	}
	if newItem == nil {
		return built
	}
	built.ShelvingOrder = nonBlank(newItem.EffectiveShelvingOrder)
	if c := newItem.EffectiveCallNumberComponents; c != nil {
		components := CallNumberComponents{
			CallNumber: nonBlank(c.CallNumber),
			Prefix:     nonBlank(c.Prefix),
			Suffix:     nonBlank(c.Suffix),
		}
		if components.CallNumber != nil || components.Prefix != nil || components.Suffix != nil {
			built.CallNumberComponents = &components
		}
	}
	return built
}

// Equivalent returns true if both SearchIndexes hold the same values, treating absent and
// empty values as equal. A nil SearchIndex is equivalent to an empty one.
func Equivalent(a *SearchIndex, b *SearchIndex) bool {
	return a.normalised() == b.normalised()
}

type normalisedSearchIndex struct {
	pickupServicePointName string
	shelvingOrder          string
	callNumber             string
	prefix                 string
	suffix                 string
}

func (s *SearchIndex) normalised() normalisedSearchIndex {
	var n normalisedSearchIndex
	if s == nil {
		return n
	}
	n.pickupServicePointName = deref(s.PickupServicePointName)
	n.shelvingOrder = deref(s.ShelvingOrder)
	if c := s.CallNumberComponents; c != nil {
		n.callNumber = deref(c.CallNumber)
		n.prefix = deref(c.Prefix)
		n.suffix = deref(c.Suffix)
	}
	return n
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func copyStr(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func nonBlank(s *string) *string {
	if s == nil || len(strings.TrimSpace(*s)) == 0 {
		return nil
	}
	return copyStr(s)
}
