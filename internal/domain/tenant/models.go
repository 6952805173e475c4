package tenant

import (
	"fmt"
	"strings"
	"unicode"
)

// Id of a tenant
//
// Tenant ids end up in topic names, Elasticsearch index names and SQLite table names, so they
// are restricted to lower case ASCII letters, digits and underscores.
type Id string

const maxIdLength = 63

// IdFromString takes a string and returns a tenant Id if valid, otherwise returns an InvalidId error.
func IdFromString(s string) (*Id, error) {
	var errs []error

	if len(s) == 0 {
		errs = append(errs, fmt.Errorf("empty string"))
	}
	if len(s) > maxIdLength {
		errs = append(errs, fmt.Errorf("longer than [%d] chars", maxIdLength))
	}
	for _, r := range s {
		if !(('a' <= r && r <= 'z') || unicode.IsDigit(r) && r < unicode.MaxASCII || r == '_') {
			errs = append(errs, fmt.Errorf("contains invalid char [%q]", r))
			break
		}
	}
	if len(s) > 0 {
		if first := rune(s[0]); first == '_' || unicode.IsDigit(first) {
			errs = append(errs, fmt.Errorf("starts with illegal char [%q]", first))
		}
	}
	if len(errs) == 0 {
		id := Id(s)
		return &id, nil
	} else {
		return nil, &InvalidId{
			Value:  s,
			Errors: errs,
		}
	}
}

type InvalidId struct {
	Value  string
	Errors []error
}

func (i *InvalidId) Error() string {
	return fmt.Sprintf("Illegal tenant id [%s]: [%v]", i.Value, i.Errors)
}

// IdsFromStrings parses all the given strings, trimming surrounding whitespace and
// dropping duplicates while keeping order.
func IdsFromStrings(ss []string) ([]Id, error) {
	seen := make(map[Id]struct{}, len(ss))
	ids := make([]Id, 0, len(ss))
	for _, s := range ss {
		id, err := IdFromString(strings.TrimSpace(s))
		if err != nil {
			return nil, err
		}
		if _, ok := seen[*id]; !ok {
			seen[*id] = struct{}{}
			ids = append(ids, *id)
		}
	}
	return ids, nil
}
