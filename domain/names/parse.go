package names

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ParseError reports malformed name syntax.
type ParseError struct {
	Input  string
	Offset int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse name %q at offset %d: %s", e.Input, e.Offset, e.Reason)
}

// Parse parses the dotted string form of a name, e.g. "a.b[2].c".
// The empty string parses to Empty. Input must be valid UTF-8.
func Parse(s string) (Name, error) {
	if s == "" {
		return Empty, nil
	}
	if !utf8.ValidString(s) {
		return Empty, &ParseError{Input: s, Offset: invalidOffset(s), Reason: "invalid UTF-8"}
	}

	var (
		tokens  []Token
		body    strings.Builder
		index   strings.Builder
		inIndex bool
		closed  bool // index bracket closed, only '.' may follow
	)

	fail := func(offset int, reason string) (Name, error) {
		return Empty, &ParseError{Input: s, Offset: offset, Reason: reason}
	}

	flush := func(offset int) error {
		if body.Len() == 0 {
			return &ParseError{Input: s, Offset: offset, Reason: "empty segment"}
		}
		tokens = append(tokens, Token{Body: body.String(), Index: index.String()})
		body.Reset()
		index.Reset()
		closed = false
		return nil
	}

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if closed && r != '.' {
			return fail(i, "unexpected character after index")
		}

		switch {
		case r == '\\':
			if i+1 >= len(runes) {
				return fail(i, "dangling escape")
			}
			i++
			if inIndex {
				index.WriteRune(runes[i])
			} else {
				body.WriteRune(runes[i])
			}
		case inIndex:
			switch r {
			case ']':
				if index.Len() == 0 {
					return fail(i, "empty index")
				}
				inIndex = false
				closed = true
			case '[':
				return fail(i, "nested index bracket")
			default:
				index.WriteRune(r)
			}
		case r == '[':
			if body.Len() == 0 {
				return fail(i, "index without segment")
			}
			inIndex = true
		case r == ']':
			return fail(i, "unbalanced closing bracket")
		case r == '.':
			if err := flush(i); err != nil {
				return Empty, err
			}
		default:
			body.WriteRune(r)
		}
	}

	if inIndex {
		return fail(len(runes), "unterminated index")
	}
	if err := flush(len(runes)); err != nil {
		return Empty, err
	}

	return Name{tokens: tokens}, nil
}

// invalidOffset returns the rune offset of the first invalid UTF-8 byte.
func invalidOffset(s string) int {
	offset := 0
	for i := 0; i < len(s); offset++ {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			return offset
		}
		i += size
	}
	return offset
}

// MustParse is like Parse but panics on malformed input.
// Use it for names written as literals in code.
func MustParse(s string) Name {
	n, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return n
}

// ParseToken parses a single token such as "item[key]".
func ParseToken(s string) (Token, error) {
	n, err := Parse(s)
	if err != nil {
		return Token{}, err
	}
	if n.Len() != 1 {
		return Token{}, &ParseError{Input: s, Offset: 0, Reason: "expected a single token"}
	}
	return n.tokens[0], nil
}
