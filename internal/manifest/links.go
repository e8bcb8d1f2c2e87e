package manifest

import (
	"strings"

	"github.com/a-h/templ"
)

// RenderLinks builds one stylesheet <link> element per file, in order, with
// the href formed by joining base and the filename with "/". No separator is
// placed between elements. An empty list renders as "".
func RenderLinks(base string, files []string) string {
	var sb strings.Builder
	for _, file := range files {
		sb.WriteString(`<link rel="stylesheet" href="`)
		sb.WriteString(templ.EscapeString(PublicPath(base, file)))
		sb.WriteString(`">`)
	}
	return sb.String()
}

// LinkTags returns RenderLinks bound to base, in the shape Query expects.
func LinkTags(base string) func([]string) string {
	return func(files []string) string {
		return RenderLinks(base, files)
	}
}

// PublicPath joins the public base path and a filename the way browsers will
// request it.
func PublicPath(base, file string) string {
	base = strings.TrimSuffix(base, "/")
	if base == "" {
		return file
	}
	return base + "/" + strings.TrimPrefix(file, "/")
}

// Hrefs returns the public paths of files, used by the live reload client to
// swap stylesheets without reloading the page.
func Hrefs(base string, files []string) []string {
	hrefs := make([]string, 0, len(files))
	for _, file := range files {
		hrefs = append(hrefs, PublicPath(base, file))
	}
	return hrefs
}
