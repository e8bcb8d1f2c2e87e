package manifest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderLinks(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		files    []string
		expected string
	}{
		{
			name:     "empty list",
			base:     "assets/css",
			files:    nil,
			expected: "",
		},
		{
			name:  "two files keep order",
			base:  "assets/css",
			files: []string{"a.hash1.css", "b.hash2.css"},
			expected: `<link rel="stylesheet" href="assets/css/a.hash1.css">` +
				`<link rel="stylesheet" href="assets/css/b.hash2.css">`,
		},
		{
			name:     "trailing slash on base",
			base:     "/assets/css/",
			files:    []string{"site.css"},
			expected: `<link rel="stylesheet" href="/assets/css/site.css">`,
		},
		{
			name:     "empty base",
			base:     "",
			files:    []string{"site.css"},
			expected: `<link rel="stylesheet" href="site.css">`,
		},
		{
			name:     "attribute is escaped",
			base:     "assets",
			files:    []string{`x"y.css`},
			expected: `<link rel="stylesheet" href="assets/x&#34;y.css">`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RenderLinks(tt.base, tt.files))
		})
	}
}

func TestLinkTagsWithQuery(t *testing.T) {
	m := New()
	m.Record("styles", "site.abc123.css")
	m.Record("styles", "print.def456.css")

	result, ok := Query(m, "styles", LinkTags("assets/css"))
	require.True(t, ok)
	assert.False(t, result.Fallback)
	assert.Equal(t, 2, strings.Count(result.Value, "<link "))
	assert.Less(t,
		strings.Index(result.Value, "site.abc123.css"),
		strings.Index(result.Value, "print.def456.css"),
	)
}

func TestHrefs(t *testing.T) {
	assert.Equal(t,
		[]string{"assets/css/a.css", "assets/css/b.css"},
		Hrefs("assets/css", []string{"a.css", "b.css"}),
	)
	assert.Empty(t, Hrefs("assets/css", nil))
}
