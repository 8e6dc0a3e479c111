package mockapi

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-resource-cache/query"
)

// Store keeps records per scope and resource. Collections are seeded on
// first access so any scope can be used without setup.
type Store struct {
	mu         sync.RWMutex
	seed       int64
	size       int
	generators map[string]Generator
	data       map[string][]Record
	now        func() time.Time
}

// NewStore returns a store seeding size records per collection.
func NewStore(seed int64, size int, generators map[string]Generator) *Store {
	if generators == nil {
		generators = DefaultGenerators()
	}
	return &Store{
		seed:       seed,
		size:       size,
		generators: generators,
		data:       make(map[string][]Record),
		now:        time.Now,
	}
}

func collectionKey(scope, resource string) string {
	return scope + "/" + resource
}

// collection returns the records of scope/resource, seeding them if needed.
// Callers hold the write lock.
func (s *Store) collection(scope, resource string) []Record {
	key := collectionKey(scope, resource)
	if records, ok := s.data[key]; ok {
		return records
	}

	gen, ok := s.generators[resource]
	if !ok {
		gen = fallback
	}
	f := seedFor(s.seed, scope, resource)

	records := make([]Record, 0, s.size)
	for i := 0; i < s.size; i++ {
		rec, err := toRecord(gen(f, i, seedEpoch.Add(time.Duration(i)*time.Hour)))
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	s.data[key] = records
	return records
}

// List filters, sorts and pages a collection.
func (s *Store) List(scope, resource string, params query.Params) query.Page[Record] {
	s.mu.Lock()
	all := s.collection(scope, resource)
	matched := make([]Record, 0, len(all))
	for _, rec := range all {
		if matches(rec, params) {
			matched = append(matched, rec)
		}
	}
	s.mu.Unlock()

	if params.Sort != nil {
		field, desc := params.Sort.Field, params.Sort.Direction == query.Desc
		sort.SliceStable(matched, func(i, j int) bool {
			c := compare(matched[i][field], matched[j][field])
			if desc {
				return c > 0
			}
			return c < 0
		})
	}

	page := 1
	if params.Page != nil && *params.Page > 0 {
		page = *params.Page
	}
	perPage := 10
	if params.PerPage != nil && (*params.PerPage > 0 || *params.PerPage == query.NoLimit) {
		perPage = *params.PerPage
	}

	total := len(matched)
	data := matched
	if perPage != query.NoLimit {
		start := (page - 1) * perPage
		end := start + perPage
		if start > total {
			start = total
		}
		if end > total {
			end = total
		}
		data = matched[start:end]
	}

	return query.Page[Record]{
		Data:     append([]Record{}, data...),
		Paginate: query.NewPagination(total, page, perPage),
	}
}

// All returns every record of a collection.
func (s *Store) All(scope, resource string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record{}, s.collection(scope, resource)...)
}

// Get returns one record.
func (s *Store) Get(scope, resource, id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.collection(scope, resource) {
		if fmt.Sprint(rec["id"]) == id {
			return rec, true
		}
	}
	return nil, false
}

// Create stores rec under a new id and returns it.
func (s *Store) Create(scope, resource string, rec Record) Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := clone(rec)
	stored["id"] = uuid.NewString()
	stored["updatedAt"] = s.now().UTC().Format(time.RFC3339)

	key := collectionKey(scope, resource)
	s.data[key] = append(s.collection(scope, resource), stored)
	return stored
}

// Update replaces (merge false) or patches (merge true) a record.
func (s *Store) Update(scope, resource, id string, rec Record, merge bool) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.collection(scope, resource)
	for i, existing := range records {
		if fmt.Sprint(existing["id"]) != id {
			continue
		}
		next := clone(rec)
		if merge {
			next = clone(existing)
			for k, v := range rec {
				next[k] = v
			}
		}
		next["id"] = existing["id"]
		next["updatedAt"] = s.now().UTC().Format(time.RFC3339)
		records[i] = next
		return next, true
	}
	return nil, false
}

// Delete removes a record.
func (s *Store) Delete(scope, resource, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := collectionKey(scope, resource)
	records := s.collection(scope, resource)
	for i, existing := range records {
		if fmt.Sprint(existing["id"]) == id {
			s.data[key] = append(records[:i:i], records[i+1:]...)
			return true
		}
	}
	return false
}

func clone(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

func matches(rec Record, params query.Params) bool {
	if params.Status != "" && fmt.Sprint(rec["status"]) != params.Status {
		return false
	}
	for k, want := range params.Extra {
		if fmt.Sprint(rec[k]) != want {
			return false
		}
	}
	if params.Search == "" {
		return true
	}
	needle := strings.ToLower(params.Search)
	for _, v := range rec {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

// compare orders numbers numerically and everything else as text. Missing
// values sort first.
func compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	fa, aok := a.(float64)
	fb, bok := b.(float64)
	if aok && bok {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(strings.ToLower(fmt.Sprint(a)), strings.ToLower(fmt.Sprint(b)))
}
