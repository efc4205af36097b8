package expr

import (
	"fmt"
	"strings"

	"github.com/viant/parsly"
	"github.com/viant/parsly/matcher"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokDot
	tokComma
	tokNot
	tokMinus
	tokAnd
	tokOr
	tokEq
	tokNe
	tokLt
	tokLe
	tokGt
	tokGe
	tokStar
	tokWhitespace
)

var tokenNames = map[tokenKind]string{
	tokEOF:      "end of expression",
	tokIdent:    "identifier",
	tokNumber:   "number",
	tokString:   "string",
	tokLParen:   "'('",
	tokRParen:   "')'",
	tokLBracket: "'['",
	tokRBracket: "']'",
	tokDot:      "'.'",
	tokComma:    "','",
	tokNot:      "'!'",
	tokMinus:    "'-'",
	tokAnd:      "'&&'",
	tokOr:       "'||'",
	tokEq:       "'=='",
	tokNe:       "'!='",
	tokLt:       "'<'",
	tokLe:       "'<='",
	tokGt:       "'>'",
	tokGe:       "'>='",
	tokStar:     "'*'",
}

func (k tokenKind) String() string {
	return tokenNames[k]
}

type token struct {
	kind  tokenKind
	text  string
	value string
	pos   int
}

var (
	whitespaceToken = parsly.NewToken(int(tokWhitespace), "whitespace", matcher.NewWhiteSpace())

	// Two-character operators come before their one-character prefixes, and numbers
	// before '.', so MatchAny picks the longest token.
	expressionTokens = []*parsly.Token{
		parsly.NewToken(int(tokIdent), "identifier", &identMatcher{}),
		parsly.NewToken(int(tokNumber), "number", &numberMatcher{}),
		parsly.NewToken(int(tokString), "string", &stringMatcher{}),
		parsly.NewToken(int(tokAnd), "&&", matcher.NewFragment("&&")),
		parsly.NewToken(int(tokOr), "||", matcher.NewFragment("||")),
		parsly.NewToken(int(tokEq), "==", matcher.NewFragment("==")),
		parsly.NewToken(int(tokNe), "!=", matcher.NewFragment("!=")),
		parsly.NewToken(int(tokLe), "<=", matcher.NewFragment("<=")),
		parsly.NewToken(int(tokGe), ">=", matcher.NewFragment(">=")),
		parsly.NewToken(int(tokLParen), "(", matcher.NewByte('(')),
		parsly.NewToken(int(tokRParen), ")", matcher.NewByte(')')),
		parsly.NewToken(int(tokLBracket), "[", matcher.NewByte('[')),
		parsly.NewToken(int(tokRBracket), "]", matcher.NewByte(']')),
		parsly.NewToken(int(tokDot), ".", matcher.NewByte('.')),
		parsly.NewToken(int(tokComma), ",", matcher.NewByte(',')),
		parsly.NewToken(int(tokNot), "!", matcher.NewByte('!')),
		parsly.NewToken(int(tokMinus), "-", matcher.NewByte('-')),
		parsly.NewToken(int(tokLt), "<", matcher.NewByte('<')),
		parsly.NewToken(int(tokGt), ">", matcher.NewByte('>')),
		parsly.NewToken(int(tokStar), "*", matcher.NewByte('*')),
	}
)

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '-'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isNumberPart(c byte) bool {
	return isDigit(c) || c == '.' || c == 'x' || c == 'X' || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// identMatcher matches names such as matrix, python-version or startsWith.
type identMatcher struct{}

func (m *identMatcher) Match(cursor *parsly.Cursor) int {
	input, pos := cursor.Input, cursor.Pos
	if pos >= cursor.InputSize || !isIdentStart(input[pos]) {
		return 0
	}
	end := pos + 1
	for end < cursor.InputSize && isIdentPart(input[end]) {
		end++
	}
	return end - pos
}

// numberMatcher matches decimal, exponent and hex literals; parseNumber validates them.
type numberMatcher struct{}

func (m *numberMatcher) Match(cursor *parsly.Cursor) int {
	input, pos := cursor.Input, cursor.Pos
	if pos >= cursor.InputSize {
		return 0
	}
	startsNumber := isDigit(input[pos]) || (input[pos] == '.' && pos+1 < cursor.InputSize && isDigit(input[pos+1]))
	if !startsNumber {
		return 0
	}
	end := pos
	for end < cursor.InputSize && isNumberPart(input[end]) {
		end++
	}
	return end - pos
}

// stringMatcher matches a single-quoted string where '' stands for a quote. An unterminated
// string matches the rest of the input so the tokenizer can report it.
type stringMatcher struct{}

func (m *stringMatcher) Match(cursor *parsly.Cursor) int {
	input, pos := cursor.Input, cursor.Pos
	if pos >= cursor.InputSize || input[pos] != '\'' {
		return 0
	}
	for i := pos + 1; i < cursor.InputSize; i++ {
		if input[i] != '\'' {
			continue
		}
		if i+1 < cursor.InputSize && input[i+1] == '\'' {
			i++
			continue
		}
		return i + 1 - pos
	}
	return cursor.InputSize - pos
}

// unquote returns the value of a matched string literal, and false if it is unterminated.
func unquote(text string) (string, bool) {
	var b strings.Builder
	for i := 1; i < len(text); i++ {
		if text[i] != '\'' {
			b.WriteByte(text[i])
			continue
		}
		if i+1 < len(text) && text[i+1] == '\'' {
			b.WriteByte('\'')
			i++
			continue
		}
		return b.String(), i == len(text)-1
	}
	return "", false
}

func tokenize(input string) ([]token, error) {
	cursor := parsly.NewCursor("", []byte(input), 0)

	var tokens []token
	for {
		cursor.MatchOne(whitespaceToken)
		if cursor.Pos >= cursor.InputSize {
			break
		}

		pos := cursor.Pos
		matched := cursor.MatchAny(expressionTokens...)
		kind := tokenKind(matched.Code)
		if cursor.Pos == pos || kind <= tokEOF || kind > tokStar {
			return nil, fmt.Errorf("unexpected character %q at position %d", input[pos], pos+1)
		}

		text := input[pos:cursor.Pos]
		tok := token{kind: kind, text: text, pos: pos}
		if kind == tokString {
			value, ok := unquote(text)
			if !ok {
				return nil, fmt.Errorf("unterminated string starting at position %d", pos+1)
			}
			tok.value = value
		}
		tokens = append(tokens, tok)
	}
	return append(tokens, token{kind: tokEOF, pos: len(input)}), nil
}
