package styles

import (
	"context"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
)

// Minifier compresses CSS.
type Minifier struct {
	m *minify.M
}

// NewMinifier creates a CSS minifier.
func NewMinifier() *Minifier {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	return &Minifier{m: m}
}

func (m *Minifier) Name() string { return "minify" }

// Transform minifies src.
func (m *Minifier) Transform(_ context.Context, src []byte) ([]byte, error) {
	return m.m.Bytes("text/css", src)
}
