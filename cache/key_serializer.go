package cache

import (
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

// Operation segments used by the resource client.
const (
	OpList   = "list"
	OpRecord = "record"
)

// defaultKeySerializer builds keys shaped resource::scope::op::hash where hash
// is the xxhash of the canonical argument encoding. Resource and scope are
// escaped, not hashed, so a whole resource/scope pair can be dropped by prefix.
type defaultKeySerializer struct{}

// NewDefaultKeySerializer creates a new instance of the default key serializer.
func NewDefaultKeySerializer() KeySerializer {
	return &defaultKeySerializer{}
}

// SerializeKey builds the cache key for one read.
func (s *defaultKeySerializer) SerializeKey(resource, scope, op string, args ...any) string {
	parts := []string{escapeSegment(resource), escapeSegment(scope), op}
	if len(args) > 0 {
		parts = append(parts, s.hash(args))
	}
	return strings.Join(parts, KeySeparator)
}

// Prefix returns the prefix shared by every key of resource in scope. It ends
// with the separator so "acme" never matches keys of "acme2".
func (s *defaultKeySerializer) Prefix(resource, scope string) string {
	return escapeSegment(resource) + KeySeparator + escapeSegment(scope) + KeySeparator
}

// ResourcePrefix returns the prefix shared by every key of resource in any scope.
func (s *defaultKeySerializer) ResourcePrefix(resource string) string {
	return escapeSegment(resource) + KeySeparator
}

func (s *defaultKeySerializer) hash(args []any) string {
	encoded := make([]string, len(args))
	for i, arg := range args {
		encoded[i] = canonical(arg)
	}
	return strconv.FormatUint(xxhash.Sum64String(strings.Join(encoded, "|")), 16)
}

// escapeSegment path-escapes s and then ':', which PathEscape leaves alone.
// The mapping is injective: two resources or scopes that reach different
// URLs never share a key. Whitespace is kept, as the resolver keeps it.
func escapeSegment(s string) string {
	return strings.ReplaceAll(url.PathEscape(s), ":", "%3A")
}

// canonical renders v deterministically: map keys are sorted, struct fields
// are listed by name and pointers are followed.
func canonical(v any) string {
	if v == nil {
		return "nil"
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return canonical(rv.Elem().Interface())

	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil"
		}
		return "[" + canonicalElems(rv) + "]"

	case reflect.Array:
		return "[" + canonicalElems(rv) + "]"

	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		pairs := make([]string, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			pairs = append(pairs, canonical(iter.Key().Interface())+"="+canonical(iter.Value().Interface()))
		}
		sort.Strings(pairs)
		return "{" + strings.Join(pairs, ",") + "}"

	case reflect.Struct:
		rt := rv.Type()
		fields := make([]string, 0, rt.NumField())
		for i := 0; i < rt.NumField(); i++ {
			field := rt.Field(i)
			if !field.IsExported() {
				continue
			}
			fields = append(fields, field.Name+":"+canonical(rv.Field(i).Interface()))
		}
		return "struct{" + strings.Join(fields, ",") + "}"

	case reflect.Func, reflect.Chan:
		// stable only within one process
		return fmt.Sprintf("%s:%p", rv.Kind(), v)

	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return fmt.Sprintf("%v", v)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return "fallback:" + reflect.TypeOf(v).String()
	}
	return "json:" + string(data)
}

func canonicalElems(rv reflect.Value) string {
	parts := make([]string, rv.Len())
	for i := range parts {
		parts[i] = canonical(rv.Index(i).Interface())
	}
	return strings.Join(parts, ",")
}
