package synth

import (
	"strings"
	"unicode"
)

// TokenKind classifies a SQL token.
type TokenKind int

const (
	TokenWord   TokenKind = iota // identifier or keyword
	TokenString                  // quoted string literal
	TokenNumber                  // numeric literal
	TokenSymbol                  // operator or punctuation
)

// Token is one lexical element of a SQL statement. Depth is the parenthesis
// nesting level at the token's position, so clause scans can stay top-level.
type Token struct {
	Kind  TokenKind
	Text  string
	Depth int
}

// Upper returns the token text upper-cased, for keyword comparison.
func (t Token) Upper() string {
	return strings.ToUpper(t.Text)
}

// Tokenize splits a SQL statement into tokens. The rewrite rules in this
// package operate on the token list rather than nested regular expressions so
// their behavior stays auditable.
func Tokenize(sql string) []Token {
	var tokens []Token
	depth := 0
	runes := []rune(sql)
	i := 0

	for i < len(runes) {
		r := runes[i]

		switch {
		case unicode.IsSpace(r):
			i++

		case r == '(':
			tokens = append(tokens, Token{Kind: TokenSymbol, Text: "(", Depth: depth})
			depth++
			i++

		case r == ')':
			if depth > 0 {
				depth--
			}
			tokens = append(tokens, Token{Kind: TokenSymbol, Text: ")", Depth: depth})
			i++

		case r == '\'' || r == '"' || r == '`':
			quote := r
			j := i + 1
			for j < len(runes) {
				if runes[j] == quote {
					// Doubled quote is an escaped quote inside the literal.
					if j+1 < len(runes) && runes[j+1] == quote {
						j += 2
						continue
					}
					break
				}
				j++
			}
			if j < len(runes) {
				j++
			}
			kind := TokenString
			if quote != '\'' {
				// Double quotes and backticks delimit identifiers.
				kind = TokenWord
			}
			tokens = append(tokens, Token{Kind: kind, Text: string(runes[i:j]), Depth: depth})
			i = j

		case unicode.IsDigit(r):
			j := i
			for j < len(runes) && (unicode.IsDigit(runes[j]) || runes[j] == '.') {
				j++
			}
			tokens = append(tokens, Token{Kind: TokenNumber, Text: string(runes[i:j]), Depth: depth})
			i = j

		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_' || runes[j] == '.' || runes[j] == '$') {
				j++
			}
			tokens = append(tokens, Token{Kind: TokenWord, Text: string(runes[i:j]), Depth: depth})
			i = j

		default:
			// Multi-character operators stay single tokens.
			j := i
			for j < len(runes) && strings.ContainsRune("<>=!|", runes[j]) {
				j++
			}
			if j == i {
				j = i + 1
			}
			tokens = append(tokens, Token{Kind: TokenSymbol, Text: string(runes[i:j]), Depth: depth})
			i = j
		}
	}
	return tokens
}

// Join renders a token list back into executable SQL. Spacing is normalized;
// SQL is whitespace-insensitive so the result stays semantically identical.
func Join(tokens []Token) string {
	var b strings.Builder
	for i, t := range tokens {
		if i > 0 && needsSpace(tokens[i-1], t) {
			b.WriteByte(' ')
		}
		b.WriteString(t.Text)
	}
	return b.String()
}

func needsSpace(prev, cur Token) bool {
	if cur.Text == "," || cur.Text == ")" || cur.Text == ";" {
		return false
	}
	if prev.Text == "(" {
		return false
	}
	return true
}
