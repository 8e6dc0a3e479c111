package query

import (
	"fmt"
	"strings"
)

// Direction is the sort order of a single field.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// sortSeparator splits the field from the direction in the encoded form.
const sortSeparator = ":"

// Sort is the structured form of the "<field>:<asc|desc>" sort parameter.
type Sort struct {
	Field     string
	Direction Direction
}

// String encodes the sort as "field:direction". A zero direction encodes as asc.
func (s Sort) String() string {
	dir := s.Direction
	if dir == "" {
		dir = Asc
	}
	return s.Field + sortSeparator + string(dir)
}

// ParseSort decodes "field:direction". An empty string yields nil; a bare
// field name sorts ascending.
func ParseSort(raw string) (*Sort, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	idx := strings.LastIndex(raw, sortSeparator)
	if idx < 0 {
		return &Sort{Field: raw, Direction: Asc}, nil
	}

	field := raw[:idx]
	dir := Direction(strings.ToLower(raw[idx+1:]))
	if field == "" {
		return nil, fmt.Errorf("sort %q: missing field", raw)
	}
	if dir != Asc && dir != Desc {
		return nil, fmt.Errorf("sort %q: direction must be %q or %q", raw, Asc, Desc)
	}

	return &Sort{Field: field, Direction: dir}, nil
}

// ToggleSort cycles a column header click: no sort -> asc -> desc -> cleared.
// Clicking a different field always starts at asc.
func ToggleSort(field string, current *Sort) *Sort {
	if current == nil || current.Field != field {
		return &Sort{Field: field, Direction: Asc}
	}
	if current.Direction == Desc {
		return nil
	}
	return &Sort{Field: field, Direction: Desc}
}
