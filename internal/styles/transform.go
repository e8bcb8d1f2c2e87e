package styles

import (
	"context"
	"fmt"

	"github.com/conneroisu/assetpipe/internal/errors"
)

// Transformer rewrites compiled CSS.
type Transformer interface {
	Name() string
	Transform(ctx context.Context, src []byte) ([]byte, error)
}

// Chain applies transformers in order.
type Chain []Transformer

// Apply runs every transformer on src. The first failure stops the chain and
// is reported as a build error naming the failing step.
func (c Chain) Apply(ctx context.Context, file string, src []byte) ([]byte, error) {
	out := src
	for _, t := range c {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var err error
		out, err = t.Transform(ctx, out)
		if err != nil {
			return nil, errors.NewBuildError(errors.ErrCodeTransformFailed,
				fmt.Sprintf("%s transform failed", t.Name()), err).
				WithLocation(file, 0, 0).
				WithContext("transform", t.Name())
		}
	}
	return out, nil
}

// Names lists the transformers in application order.
func (c Chain) Names() []string {
	names := make([]string, len(c))
	for i, t := range c {
		names[i] = t.Name()
	}
	return names
}

// NewOptimizeChain returns the production chain: vendor prefixing, then
// media query grouping, then minification.
func NewOptimizeChain(prefixes []string) Chain {
	return Chain{
		NewPrefixer(prefixes),
		MediaQueryGrouper{},
		NewMinifier(),
	}
}
