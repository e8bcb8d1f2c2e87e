package styles

import (
	"bytes"
	"context"
	"strings"

	"github.com/tdewolff/parse/v2/css"
)

// prefixedProperties lists the properties that still need vendor-prefixed
// copies, and which vendors ship a prefixed form of each.
var prefixedProperties = map[string][]string{
	"appearance":           {"-webkit-", "-moz-"},
	"backdrop-filter":      {"-webkit-"},
	"box-decoration-break": {"-webkit-"},
	"clip-path":            {"-webkit-"},
	"hyphens":              {"-webkit-", "-ms-"},
	"mask":                 {"-webkit-"},
	"mask-image":           {"-webkit-"},
	"print-color-adjust":   {"-webkit-"},
	"tab-size":             {"-moz-"},
	"text-size-adjust":     {"-webkit-", "-moz-", "-ms-"},
	"user-select":          {"-webkit-", "-moz-", "-ms-"},
}

// Prefixer inserts vendor-prefixed copies of declarations ahead of the
// standard declaration. Only vendors listed in Prefixes are emitted.
type Prefixer struct {
	enabled map[string]bool
}

// NewPrefixer creates a prefixer for the given vendor prefixes, such as
// "-webkit-". An empty list makes the prefixer a no-op.
func NewPrefixer(prefixes []string) *Prefixer {
	enabled := make(map[string]bool, len(prefixes))
	for _, prefix := range prefixes {
		prefix = strings.ToLower(strings.TrimSpace(prefix))
		if prefix == "" {
			continue
		}
		if !strings.HasPrefix(prefix, "-") {
			prefix = "-" + prefix
		}
		if !strings.HasSuffix(prefix, "-") {
			prefix += "-"
		}
		enabled[prefix] = true
	}
	return &Prefixer{enabled: enabled}
}

func (p *Prefixer) Name() string { return "prefix" }

// Transform rewrites src with prefixed declarations added.
func (p *Prefixer) Transform(_ context.Context, src []byte) ([]byte, error) {
	if len(p.enabled) == 0 {
		return src, nil
	}

	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(src))

	// atDeclarationStart is true right after '{' or ';', the only places a
	// declaration may begin.
	atDeclarationStart := false
	for i := 0; i < len(tokens); i++ {
		t := tokens[i]

		if atDeclarationStart && t.tt == css.IdentToken {
			if end, ok := declarationEnd(tokens, i); ok {
				p.writePrefixed(&buf, tokens[i:end])
			}
		}

		buf.Write(t.data)

		switch t.tt {
		case css.LeftBraceToken, css.SemicolonToken:
			atDeclarationStart = true
		case css.WhitespaceToken, css.CommentToken:
		default:
			atDeclarationStart = false
		}
	}

	return buf.Bytes(), nil
}

// declarationEnd reports where the declaration starting at tokens[start]
// ends. It returns false when the tokens are not a declaration, such as a
// nested selector like "a:hover {".
func declarationEnd(tokens []token, start int) (int, bool) {
	colon := nextSignificant(tokens, start+1)
	if colon >= len(tokens) || tokens[colon].tt != css.ColonToken {
		return 0, false
	}

	for i := colon + 1; i < len(tokens); i++ {
		switch tokens[i].tt {
		case css.SemicolonToken, css.RightBraceToken:
			end := i
			for end > colon && isTrivia(tokens[end-1]) {
				end--
			}
			return end, true
		case css.LeftBraceToken:
			return 0, false
		}
	}
	return 0, false
}

func (p *Prefixer) writePrefixed(buf *bytes.Buffer, declaration []token) {
	property := strings.ToLower(string(declaration[0].data))
	vendors, ok := prefixedProperties[property]
	if !ok {
		return
	}

	for _, vendor := range vendors {
		if !p.enabled[vendor] {
			continue
		}
		buf.WriteString(vendor)
		buf.WriteString(property)
		writeTokens(buf, declaration[1:])
		buf.WriteByte(';')
	}
}
