package request

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/lloydmeta/reqindex/internal/domain/item"
	"github.com/lloydmeta/reqindex/internal/domain/metadata"
)

// The JSON keys of a request document that we interpret. Everything else is passed through.
const (
	idKey          = "id"
	itemIdKey      = "itemId"
	searchIndexKey = "searchIndex"
)

type persistedCallNumberComponents struct {
	CallNumber *string `json:"callNumber,omitempty"`
	Prefix     *string `json:"prefix,omitempty"`
	Suffix     *string `json:"suffix,omitempty"`
}

type persistedSearchIndex struct {
	PickupServicePointName *string                        `json:"pickupServicePointName,omitempty"`
	ShelvingOrder          *string                        `json:"shelvingOrder,omitempty"`
	CallNumberComponents   *persistedCallNumberComponents `json:"callNumberComponents,omitempty"`
}

type persistedKnownFields struct {
	ID          string                `json:"id"`
	ItemID      string                `json:"itemId"`
	SearchIndex *persistedSearchIndex `json:"searchIndex,omitempty"`
}

// MarshalDocument renders the Request as the JSON document stores persist.
func MarshalDocument(r *Request) ([]byte, error) {
	doc := make(map[string]interface{}, len(r.Fields)+3)
	for k, v := range r.Fields {
		doc[k] = v
	}
	doc[idKey] = string(r.ID)
	if len(r.ItemID) > 0 {
		doc[itemIdKey] = string(r.ItemID)
	} else {
		delete(doc, itemIdKey)
	}
	if r.SearchIndex != nil {
		doc[searchIndexKey] = toPersistedSearchIndex(r.SearchIndex)
	} else {
		delete(doc, searchIndexKey)
	}
	return json.Marshal(doc)
}

// UnmarshalDocument reads a persisted request document. The version is supplied by the store
// since it does not live inside the document.
//
// Numbers in pass-through fields are kept as json.Number so that writing the document back out
// does not change them.
func UnmarshalDocument(data []byte, version metadata.Version) (*Request, error) {
	var known persistedKnownFields
	if err := json.Unmarshal(data, &known); err != nil {
		return nil, err
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var fields JsonObj
	if err := decoder.Decode(&fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, fmt.Errorf("request document is not a JSON object")
	}
	delete(fields, idKey)
	delete(fields, itemIdKey)
	delete(fields, searchIndexKey)

	return &Request{
		ID:          Id(known.ID),
		ItemID:      item.Id(known.ItemID),
		SearchIndex: known.SearchIndex.toDomain(),
		Fields:      fields,
		Metadata:    metadata.Metadata{Version: version},
	}, nil
}

func toPersistedSearchIndex(s *SearchIndex) *persistedSearchIndex {
	p := persistedSearchIndex{
		PickupServicePointName: s.PickupServicePointName,
		ShelvingOrder:          s.ShelvingOrder,
	}
	if c := s.CallNumberComponents; c != nil {
		p.CallNumberComponents = &persistedCallNumberComponents{
			CallNumber: c.CallNumber,
			Prefix:     c.Prefix,
			Suffix:     c.Suffix,
		}
	}
	return &p
}

func (p *persistedSearchIndex) toDomain() *SearchIndex {
	if p == nil {
		return nil
	}
	s := SearchIndex{
		PickupServicePointName: p.PickupServicePointName,
		ShelvingOrder:          p.ShelvingOrder,
	}
	if c := p.CallNumberComponents; c != nil {
		s.CallNumberComponents = &CallNumberComponents{
			CallNumber: c.CallNumber,
			Prefix:     c.Prefix,
			Suffix:     c.Suffix,
		}
	}
	return &s
}
