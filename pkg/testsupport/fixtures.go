package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// LoadFixture reads testdata relative to the test package directory.
func LoadFixture(t testing.TB, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}
	return data
}

// LoadFixtureJSON reads a JSON fixture into dest.
func LoadFixtureJSON(t testing.TB, path string, dest any) {
	t.Helper()

	if err := json.Unmarshal(LoadFixture(t, path), dest); err != nil {
		t.Fatalf("failed to unmarshal JSON fixture from %s: %v", path, err)
	}
}

// TempFile writes content to name inside a directory removed after the test.
func TempFile(t testing.TB, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to write temp file %s: %v", path, err)
	}
	return path
}

// FixturePath constructs a path to a fixture file relative to the testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}

// PageEnvelope builds a paginated backend reply. pages follows
// ceil(total/perpage), with perpage -1 meaning a single page.
func PageEnvelope(data any, total, page, perPage int) map[string]any {
	pages := 0
	switch {
	case total <= 0:
	case perPage <= 0:
		pages = 1
	default:
		pages = (total + perPage - 1) / perPage
	}
	return map[string]any{
		"data": data,
		"paginate": map[string]int{
			"total":   total,
			"page":    page,
			"perpage": perPage,
			"pages":   pages,
		},
	}
}

// RecordEnvelope wraps a single record as {"data": record}.
func RecordEnvelope(record any) map[string]any {
	return map[string]any{"data": record}
}
