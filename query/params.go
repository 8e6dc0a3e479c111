// Package query turns sparse list filters into canonical query strings and
// models the pagination envelope returned by collection endpoints.
package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// NoLimit is the reserved perpage value meaning "return every record".
const NoLimit = -1

// Query string parameter names understood by the backend.
const (
	ParamSearch  = "search"
	ParamSort    = "sort"
	ParamStatus  = "status"
	ParamPage    = "page"
	ParamPerPage = "perpage"
)

// Params is the filter/sort/page state of a list view. Every field is optional;
// unset and empty fields never reach the wire.
type Params struct {
	Search  string
	Sort    *Sort
	Status  string
	Page    *int
	PerPage *int
	// Extra carries resource specific filters (e.g. "category", "location").
	Extra map[string]string
}

// Int returns a pointer to v, for building Params literals.
func Int(v int) *int {
	return &v
}

// WithPage returns a copy of p positioned on page.
func (p Params) WithPage(page int) Params {
	p.Page = Int(page)
	return p
}

// WithSort returns a copy of p sorted by s (nil clears the sort).
func (p Params) WithSort(s *Sort) Params {
	p.Sort = s
	return p
}

// Values renders p as url.Values, omitting empty strings and nil pointers.
// Numeric fields are passed through untouched, including NoLimit.
func (p Params) Values() url.Values {
	v := url.Values{}
	setIfPresent(v, ParamSearch, p.Search)
	if p.Sort != nil && p.Sort.Field != "" {
		v.Set(ParamSort, p.Sort.String())
	}
	setIfPresent(v, ParamStatus, p.Status)
	if p.Page != nil {
		v.Set(ParamPage, strconv.Itoa(*p.Page))
	}
	if p.PerPage != nil {
		v.Set(ParamPerPage, strconv.Itoa(*p.PerPage))
	}
	for key, value := range p.Extra {
		if reserved(key) {
			continue
		}
		setIfPresent(v, key, value)
	}
	return v
}

// Encode renders p as a query string sorted by key, so two Params with the
// same content always encode identically.
func (p Params) Encode() string {
	return p.Values().Encode()
}

// CacheKey is the canonical, order independent representation of p used in
// cache keys.
func (p Params) CacheKey() string {
	return p.Encode()
}

// IsZero reports whether p carries no filter at all.
func (p Params) IsZero() bool {
	return len(p.Values()) == 0
}

// FromValues rebuilds Params from addressable UI state. page and perpage are
// coerced to integers here and nowhere else; their semantics are not checked.
func FromValues(values url.Values) (Params, error) {
	var p Params
	p.Search = strings.TrimSpace(values.Get(ParamSearch))
	p.Status = strings.TrimSpace(values.Get(ParamStatus))

	sort, err := ParseSort(values.Get(ParamSort))
	if err != nil {
		return Params{}, err
	}
	p.Sort = sort

	if p.Page, err = intParam(values, ParamPage); err != nil {
		return Params{}, err
	}
	if p.PerPage, err = intParam(values, ParamPerPage); err != nil {
		return Params{}, err
	}

	for key, vals := range values {
		if reserved(key) || len(vals) == 0 || vals[0] == "" {
			continue
		}
		if p.Extra == nil {
			p.Extra = make(map[string]string)
		}
		p.Extra[key] = vals[0]
	}

	return p, nil
}

// Parse is FromValues over a raw query string.
func Parse(rawQuery string) (Params, error) {
	values, err := url.ParseQuery(strings.TrimPrefix(rawQuery, "?"))
	if err != nil {
		return Params{}, fmt.Errorf("parse query: %w", err)
	}
	return FromValues(values)
}

func intParam(values url.Values, key string) (*int, error) {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %q is not an integer", key, raw)
	}
	return &n, nil
}

func setIfPresent(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}

func reserved(key string) bool {
	switch key {
	case ParamSearch, ParamSort, ParamStatus, ParamPage, ParamPerPage:
		return true
	}
	return false
}
