package item

// Id of an inventory Item
type Id string

// Status of an Item, e.g. "Paged"
type Status struct {
	Name string
}

// The effective call number pieces of an Item. Any of them may be absent.
type CallNumberComponents struct {
	Prefix     *string
	CallNumber *string
	Suffix     *string
}

// An inventory Item as carried in update notifications.
//
// Items are owned by inventory; we only ever observe snapshots of them.
type Item struct {
	ID                            Id
	HoldingsRecordID              string
	Status                        Status
	Barcode                       *string
	EffectiveShelvingOrder        *string
	EffectiveCallNumberComponents *CallNumberComponents
}

// Attribute identifies one of the tracked attributes of an Item
type Attribute uint

const (
	CallNumberPrefix Attribute = iota
	CallNumber
	CallNumberSuffix
	ShelvingOrder
)

var attributesToString = map[Attribute]string{
	CallNumberPrefix: "callNumberPrefix",
	CallNumber:       "callNumber",
	CallNumberSuffix: "callNumberSuffix",
	ShelvingOrder:    "shelvingOrder",
}

func (a Attribute) String() string {
	return attributesToString[a]
}

// TrackedAttributes is the ordered tuple of Item attributes that the request search index
// is derived from. Values are normalised: an absent attribute and an empty one are both "".
type TrackedAttributes [4]string

// Get returns the normalised value of the given attribute
func (t TrackedAttributes) Get(a Attribute) string {
	return t[a]
}

// TrackedAttributes extracts the tracked attribute tuple from the Item.
//
// A nil Item yields the all-absent tuple.
func (i *Item) TrackedAttributes() TrackedAttributes {
	var t TrackedAttributes
	if i == nil {
		return t
	}
	if c := i.EffectiveCallNumberComponents; c != nil {
		t[CallNumberPrefix] = normalise(c.Prefix)
		t[CallNumber] = normalise(c.CallNumber)
		t[CallNumberSuffix] = normalise(c.Suffix)
	}
	t[ShelvingOrder] = normalise(i.EffectiveShelvingOrder)
	return t
}

// ChangedAttributes returns the tracked attributes that differ between the old and new
// versions of an Item, in tracked order.
//
// Absent and empty values compare equal, so going from "" to absent is not a change, but
// removing a previously non-empty value is.
func ChangedAttributes(old *Item, new *Item) []Attribute {
	oldAttrs := old.TrackedAttributes()
	newAttrs := new.TrackedAttributes()
	var changed []Attribute
	for idx := range oldAttrs {
		if oldAttrs[idx] != newAttrs[idx] {
			changed = append(changed, Attribute(idx))
		}
	}
	return changed
}

// IsRelevantChange returns true if any tracked attribute differs between old and new.
// Attributes outside of the tracked set (barcode, status, etc) never count.
func IsRelevantChange(old *Item, new *Item) bool {
	return old.TrackedAttributes() != new.TrackedAttributes()
}

func normalise(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

