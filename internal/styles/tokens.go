package styles

import (
	"bytes"
	"io"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

type token struct {
	tt   css.TokenType
	data []byte
}

// tokenize lexes src into tokens whose concatenation reproduces src exactly.
func tokenize(src []byte) ([]token, error) {
	lexer := css.NewLexer(parse.NewInputBytes(src))

	var tokens []token
	for {
		tt, data := lexer.Next()
		if tt == css.ErrorToken {
			if err := lexer.Err(); err != nil && err != io.EOF {
				return nil, err
			}
			return tokens, nil
		}
		tokens = append(tokens, token{tt: tt, data: append([]byte(nil), data...)})
	}
}

func writeTokens(buf *bytes.Buffer, tokens []token) {
	for _, t := range tokens {
		buf.Write(t.data)
	}
}

func isTrivia(t token) bool {
	return t.tt == css.WhitespaceToken || t.tt == css.CommentToken
}

// nextSignificant returns the index of the first non-trivia token at or after
// i, or len(tokens).
func nextSignificant(tokens []token, i int) int {
	for i < len(tokens) && isTrivia(tokens[i]) {
		i++
	}
	return i
}

// statement is one top-level item: a rule, an at-rule with or without a
// block, or trailing trivia.
type statement struct {
	tokens []token
	// open is the index of the block's '{' in tokens, -1 without a block.
	open int
}

// splitStatements cuts a token stream into top-level statements. Leading
// trivia belongs to the statement that follows it.
func splitStatements(tokens []token) []statement {
	var statements []statement
	start, depth, open := 0, 0, -1

	for i, t := range tokens {
		switch t.tt {
		case css.LeftBraceToken:
			if depth == 0 {
				open = i - start
			}
			depth++
		case css.RightBraceToken:
			if depth > 0 {
				depth--
			}
			if depth == 0 {
				statements = append(statements, statement{tokens: tokens[start : i+1], open: open})
				start, open = i+1, -1
			}
		case css.SemicolonToken:
			if depth == 0 {
				statements = append(statements, statement{tokens: tokens[start : i+1], open: -1})
				start = i + 1
			}
		}
	}

	if start < len(tokens) {
		statements = append(statements, statement{tokens: tokens[start:], open: open})
	}

	return statements
}

// atKeyword returns the lower-cased at-keyword that starts the statement, or
// "" for ordinary rules.
func (s statement) atKeyword() string {
	i := nextSignificant(s.tokens, 0)
	if i >= len(s.tokens) || s.tokens[i].tt != css.AtKeywordToken {
		return ""
	}
	return string(bytes.ToLower(s.tokens[i].data))
}

// prelude returns the tokens between the at-keyword and the block's '{' with
// surrounding trivia removed.
func (s statement) prelude() []token {
	if s.open < 0 {
		return nil
	}
	i := nextSignificant(s.tokens, 0) + 1
	end := s.open
	for i < end && isTrivia(s.tokens[i]) {
		i++
	}
	for end > i && isTrivia(s.tokens[end-1]) {
		end--
	}
	if i >= end {
		return nil
	}
	return s.tokens[i:end]
}

// body returns the tokens inside the statement's block.
func (s statement) body() []token {
	if s.open < 0 || len(s.tokens) == 0 {
		return nil
	}
	end := len(s.tokens)
	if s.tokens[end-1].tt == css.RightBraceToken {
		end--
	}
	if s.open+1 > end {
		return nil
	}
	return s.tokens[s.open+1 : end]
}

// normalizePrelude lower-cases a prelude and drops insignificant whitespace so
// "(max-width:600px)" and "(max-width: 600px)" compare equal.
func normalizePrelude(tokens []token) string {
	var buf bytes.Buffer
	space := false
	last := css.ErrorToken
	for _, t := range tokens {
		switch t.tt {
		case css.WhitespaceToken:
			space = true
		case css.CommentToken:
		default:
			if space && buf.Len() > 0 && !hugsPunctuation(last, t.tt) {
				buf.WriteByte(' ')
			}
			space = false
			last = t.tt
			buf.Write(bytes.ToLower(t.data))
		}
	}
	return buf.String()
}

func hugsPunctuation(prev, next css.TokenType) bool {
	switch prev {
	case css.ColonToken, css.CommaToken, css.LeftParenthesisToken, css.FunctionToken:
		return true
	}
	switch next {
	case css.ColonToken, css.CommaToken, css.RightParenthesisToken:
		return true
	}
	return false
}
