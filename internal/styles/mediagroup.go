package styles

import (
	"bytes"
	"context"
)

// MediaQueryGrouper merges top-level @media blocks that share a query and
// moves the merged blocks to the end of the stylesheet, in order of first
// appearance. Everything else keeps its relative order.
type MediaQueryGrouper struct{}

func (MediaQueryGrouper) Name() string { return "group-media" }

type mediaGroup struct {
	query  []token
	bodies [][]token
}

// Transform groups the @media blocks of src.
func (MediaQueryGrouper) Transform(_ context.Context, src []byte) ([]byte, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}

	var (
		buf    bytes.Buffer
		order  []string
		groups = make(map[string]*mediaGroup)
	)
	buf.Grow(len(src))

	for _, stmt := range splitStatements(tokens) {
		if stmt.atKeyword() != "@media" || stmt.open < 0 {
			writeTokens(&buf, stmt.tokens)
			continue
		}

		query := stmt.prelude()
		key := normalizePrelude(query)
		group, ok := groups[key]
		if !ok {
			group = &mediaGroup{query: query}
			groups[key] = group
			order = append(order, key)
		}
		group.bodies = append(group.bodies, stmt.body())
	}

	for _, key := range order {
		group := groups[key]
		if b := buf.Bytes(); len(b) > 0 && b[len(b)-1] != '\n' {
			buf.WriteByte('\n')
		}
		buf.WriteString("@media ")
		writeTokens(&buf, group.query)
		buf.WriteString(" {")
		for _, body := range group.bodies {
			writeTokens(&buf, body)
		}
		buf.WriteString("}\n")
	}

	return buf.Bytes(), nil
}
