package manifest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func joined(files []string) string {
	return strings.Join(files, ",")
}

func TestRecord(t *testing.T) {
	tests := []struct {
		name     string
		records  []string
		expected []string
	}{
		{
			name:     "first record creates group",
			records:  []string{"site.1a2b.css"},
			expected: []string{"site.1a2b.css"},
		},
		{
			name:     "distinct names keep call order",
			records:  []string{"a.css", "b.css", "c.css"},
			expected: []string{"a.css", "b.css", "c.css"},
		},
		{
			name:     "duplicate moves to the end",
			records:  []string{"a.css", "b.css", "a.css"},
			expected: []string{"b.css", "a.css"},
		},
		{
			name:     "duplicate of last entry is stable",
			records:  []string{"a.css", "b.css", "b.css"},
			expected: []string{"a.css", "b.css"},
		},
		{
			name:     "repeated single name",
			records:  []string{"a.css", "a.css", "a.css"},
			expected: []string{"a.css"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			for _, name := range tt.records {
				assert.Equal(t, name, m.Record("styles", name))
			}

			entries, ok := m.Lookup("styles")
			require.True(t, ok)
			assert.Equal(t, tt.expected, entries)
		})
	}
}

func TestRecordGroupsAreIndependent(t *testing.T) {
	m := New()
	m.Record("styles", "site.css")
	m.Record("print", "site.css")
	m.Record("styles", "admin.css")

	styles, ok := m.Lookup("styles")
	require.True(t, ok)
	assert.Equal(t, []string{"site.css", "admin.css"}, styles)

	printEntries, ok := m.Lookup("print")
	require.True(t, ok)
	assert.Equal(t, []string{"site.css"}, printEntries)

	assert.Equal(t, []string{"print", "styles"}, m.Groups())
}

func TestLookupReturnsCopy(t *testing.T) {
	m := New()
	m.Record("styles", "a.css")

	entries, ok := m.Lookup("styles")
	require.True(t, ok)
	entries[0] = "mutated.css"

	again, _ := m.Lookup("styles")
	assert.Equal(t, []string{"a.css"}, again)
}

func TestQuery(t *testing.T) {
	t.Run("unknown group is not found", func(t *testing.T) {
		m := New()
		called := false
		result, ok := Query(m, "missing", func(files []string) string {
			called = true
			return "x"
		})

		assert.False(t, ok)
		assert.False(t, called)
		assert.Empty(t, result.Value)
		assert.Nil(t, result.Entries)
	})

	t.Run("transform value is returned", func(t *testing.T) {
		m := New()
		m.Record("styles", "a.css")
		m.Record("styles", "b.css")

		result, ok := Query(m, "styles", joined)
		require.True(t, ok)
		assert.False(t, result.Fallback)
		assert.Equal(t, "a.css,b.css", result.Value)
		assert.Equal(t, []string{"a.css", "b.css"}, result.Entries)
	})

	t.Run("empty transform falls back to entries", func(t *testing.T) {
		m := New()
		m.Record("styles", "a.css")

		result, ok := Query(m, "styles", func([]string) string { return "" })
		require.True(t, ok)
		assert.True(t, result.Fallback)
		assert.Empty(t, result.Value)
		assert.Equal(t, []string{"a.css"}, result.Entries)
	})

	t.Run("cleared group renders through fallback", func(t *testing.T) {
		m := New()
		m.Record("styles", "a.css")
		m.Clear("styles")

		result, ok := Query(m, "styles", LinkTags("assets/css"))
		require.True(t, ok)
		assert.True(t, result.Fallback)
		assert.Empty(t, result.Entries)
	})

	t.Run("nil transform yields raw entries", func(t *testing.T) {
		m := New()
		m.Record("styles", "a.css")

		result, ok := Query[string](m, "styles", nil)
		require.True(t, ok)
		assert.True(t, result.Fallback)
		assert.Equal(t, []string{"a.css"}, result.Entries)
	})

	t.Run("non string transform", func(t *testing.T) {
		m := New()
		m.Record("styles", "a.css")
		m.Record("styles", "b.css")

		result, ok := Query(m, "styles", func(files []string) int { return len(files) })
		require.True(t, ok)
		assert.Equal(t, 2, result.Value)
	})
}

func TestClear(t *testing.T) {
	m := New()
	assert.False(t, m.Clear("styles"))

	_, ok := m.Lookup("styles")
	assert.False(t, ok, "clearing an unknown group must not create it")

	m.Record("styles", "a.css")
	m.Record("styles", "b.css")
	assert.True(t, m.Clear("styles"))

	entries, ok := m.Lookup("styles")
	require.True(t, ok)
	assert.Empty(t, entries)

	m.Record("styles", "c.css")
	entries, _ = m.Lookup("styles")
	assert.Equal(t, []string{"c.css"}, entries)
}

func TestSnapshot(t *testing.T) {
	m := New()
	m.Record("styles", "a.css")
	m.Record("scripts", "app.js")

	snapshot := m.Snapshot()
	assert.Equal(t, map[string][]string{
		"styles":  {"a.css"},
		"scripts": {"app.js"},
	}, snapshot)

	snapshot["styles"][0] = "changed.css"
	entries, _ := m.Lookup("styles")
	assert.Equal(t, []string{"a.css"}, entries)
}
