package formula

import (
	"strconv"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent
	tokLParen
	tokRParen
	tokComma
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokEq
	tokNe
	tokLt
	tokLe
	tokGt
	tokGe
	tokAnd
	tokOr
	tokNot
)

var tokenNames = map[tokenKind]string{
	tokEOF:    "end of expression",
	tokNumber: "number",
	tokString: "string",
	tokIdent:  "identifier",
	tokLParen: "'('",
	tokRParen: "')'",
	tokComma:  "','",
	tokPlus:   "'+'",
	tokMinus:  "'-'",
	tokStar:   "'*'",
	tokSlash:  "'/'",
	tokEq:     "'=='",
	tokNe:     "'!='",
	tokLt:     "'<'",
	tokLe:     "'<='",
	tokGt:     "'>'",
	tokGe:     "'>='",
	tokAnd:    "'&&'",
	tokOr:     "'||'",
	tokNot:    "'!'",
}

func (k tokenKind) String() string { return tokenNames[k] }

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

func isIdentStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }

func isIdentPart(r rune) bool {
	return r == '_' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func lex(src string) ([]token, error) {
	var tokens []token

	i := 0
	for i < len(src) {
		c := src[i]

		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
			continue

		case isDigit(c) || (c == '.' && i+1 < len(src) && isDigit(src[i+1])):
			start := i
			for i < len(src) && isDigit(src[i]) {
				i++
			}
			if i < len(src) && src[i] == '.' {
				i++
				for i < len(src) && isDigit(src[i]) {
					i++
				}
			}
			if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
				j := i + 1
				if j < len(src) && (src[j] == '+' || src[j] == '-') {
					j++
				}
				if j < len(src) && isDigit(src[j]) {
					i = j
					for i < len(src) && isDigit(src[i]) {
						i++
					}
				}
			}
			text := src[start:i]
			n, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, newError(ErrSyntax, start, "invalid number %q", text)
			}
			tokens = append(tokens, token{kind: tokNumber, text: text, num: n, pos: start})
			continue

		case c == '\'' || c == '"':
			start := i
			i++
			for i < len(src) && src[i] != c {
				i++
			}
			if i >= len(src) {
				return nil, newError(ErrSyntax, start, "unterminated string")
			}
			tokens = append(tokens, token{kind: tokString, text: src[start+1 : i], pos: start})
			i++
			continue
		}

		r, size := utf8.DecodeRuneInString(src[i:])
		if isIdentStart(r) {
			start := i
			i += size
			for i < len(src) {
				r, size = utf8.DecodeRuneInString(src[i:])
				if !isIdentPart(r) {
					break
				}
				i += size
			}
			text := src[start:i]
			if text[len(text)-1] == '.' {
				return nil, newError(ErrSyntax, start, "identifier %q ends with '.'", text)
			}
			tokens = append(tokens, token{kind: tokIdent, text: text, pos: start})
			continue
		}

		start := i
		two := ""
		if i+1 < len(src) {
			two = src[i : i+2]
		}
		switch two {
		case "==":
			tokens = append(tokens, token{kind: tokEq, text: two, pos: start})
			i += 2
			continue
		case "!=":
			tokens = append(tokens, token{kind: tokNe, text: two, pos: start})
			i += 2
			continue
		case "<=":
			tokens = append(tokens, token{kind: tokLe, text: two, pos: start})
			i += 2
			continue
		case ">=":
			tokens = append(tokens, token{kind: tokGe, text: two, pos: start})
			i += 2
			continue
		case "&&":
			tokens = append(tokens, token{kind: tokAnd, text: two, pos: start})
			i += 2
			continue
		case "||":
			tokens = append(tokens, token{kind: tokOr, text: two, pos: start})
			i += 2
			continue
		}

		var kind tokenKind
		switch c {
		case '(':
			kind = tokLParen
		case ')':
			kind = tokRParen
		case ',':
			kind = tokComma
		case '+':
			kind = tokPlus
		case '-':
			kind = tokMinus
		case '*':
			kind = tokStar
		case '/':
			kind = tokSlash
		case '<':
			kind = tokLt
		case '>':
			kind = tokGt
		case '!':
			kind = tokNot
		case '=':
			return nil, newError(ErrSyntax, start, "assignment is not allowed, use '=='")
		default:
			return nil, newError(ErrSyntax, start, "unexpected character %q", r)
		}
		tokens = append(tokens, token{kind: kind, text: string(c), pos: start})
		i++
	}

	tokens = append(tokens, token{kind: tokEOF, pos: len(src)})
	return tokens, nil
}
