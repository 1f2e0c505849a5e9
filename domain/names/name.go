// Package names provides the immutable path type used to address every
// position in meta and data trees.
// This package has NO dependencies on I/O or external packages.
package names

import (
	"slices"
	"strings"
)

// Token is a single path segment with an optional index qualifier.
// An empty Index means the token is not indexed.
type Token struct {
	Body  string
	Index string
}

// NewToken creates a token without an index.
func NewToken(body string) Token {
	return Token{Body: body}
}

// HasIndex reports whether the token carries an index qualifier.
func (t Token) HasIndex() bool {
	return t.Index != ""
}

// WithIndex returns a copy of the token with the given index.
func (t Token) WithIndex(index string) Token {
	return Token{Body: t.Body, Index: index}
}

// WithoutIndex returns the token with the index qualifier dropped.
func (t Token) WithoutIndex() Token {
	return Token{Body: t.Body}
}

// String renders the token as body or body[index], escaping reserved characters.
func (t Token) String() string {
	if !t.HasIndex() {
		return escape(t.Body)
	}
	return escape(t.Body) + "[" + escape(t.Index) + "]"
}

// AsName wraps the token into a single-segment Name.
func (t Token) AsName() Name {
	return Name{tokens: []Token{t}}
}

// Name is an ordered, immutable sequence of tokens.
// The zero value is the empty name.
type Name struct {
	tokens []Token
}

// Empty is the zero-length name, the identity of concatenation.
var Empty = Name{}

// Of creates a name from tokens.
func Of(tokens ...Token) Name {
	if len(tokens) == 0 {
		return Empty
	}
	return Name{tokens: slices.Clone(tokens)}
}

// FromBodies creates a name of non-indexed tokens without parsing them.
func FromBodies(bodies ...string) Name {
	tokens := make([]Token, len(bodies))
	for i, b := range bodies {
		tokens[i] = Token{Body: b}
	}
	return Name{tokens: tokens}
}

// Len returns the number of tokens.
func (n Name) Len() int {
	return len(n.tokens)
}

// IsEmpty reports whether the name has no tokens.
func (n Name) IsEmpty() bool {
	return len(n.tokens) == 0
}

// Tokens returns a copy of the name's tokens.
func (n Name) Tokens() []Token {
	return slices.Clone(n.tokens)
}

// At returns the i-th token.
func (n Name) At(i int) Token {
	return n.tokens[i]
}

// First returns the first token. ok is false for the empty name.
func (n Name) First() (tok Token, ok bool) {
	if len(n.tokens) == 0 {
		return Token{}, false
	}
	return n.tokens[0], true
}

// Last returns the last token. ok is false for the empty name.
func (n Name) Last() (tok Token, ok bool) {
	if len(n.tokens) == 0 {
		return Token{}, false
	}
	return n.tokens[len(n.tokens)-1], true
}

// CutFirst returns the name without its first token.
func (n Name) CutFirst() Name {
	if len(n.tokens) <= 1 {
		return Empty
	}
	return Name{tokens: n.tokens[1:]}
}

// CutLast returns the name without its last token.
func (n Name) CutLast() Name {
	if len(n.tokens) <= 1 {
		return Empty
	}
	return Name{tokens: n.tokens[:len(n.tokens)-1]}
}

// Append returns a new name with the tokens added at the end.
func (n Name) Append(tokens ...Token) Name {
	if len(tokens) == 0 {
		return n
	}
	out := make([]Token, 0, len(n.tokens)+len(tokens))
	out = append(out, n.tokens...)
	out = append(out, tokens...)
	return Name{tokens: out}
}

// Plus concatenates two names.
func Plus(a, b Name) Name {
	if a.IsEmpty() {
		return b
	}
	return a.Append(b.tokens...)
}

// Plus concatenates other to the end of n.
func (n Name) Plus(other Name) Name {
	return Plus(n, other)
}

// Equal reports whether two names have the same tokens.
func (n Name) Equal(other Name) bool {
	return slices.Equal(n.tokens, other.tokens)
}

// StartsWith reports whether prefix is a leading subsequence of n.
func (n Name) StartsWith(prefix Name) bool {
	if prefix.Len() > n.Len() {
		return false
	}
	return slices.Equal(n.tokens[:prefix.Len()], prefix.tokens)
}

// RemoveHead strips prefix from n. ok is false when prefix is not a
// leading subsequence of n.
func (n Name) RemoveHead(prefix Name) (rest Name, ok bool) {
	if !n.StartsWith(prefix) {
		return Empty, false
	}
	if prefix.Len() == n.Len() {
		return Empty, true
	}
	return Name{tokens: n.tokens[prefix.Len():]}, true
}

// String renders the canonical dotted form, e.g. a.b[2].c.
func (n Name) String() string {
	if len(n.tokens) == 0 {
		return ""
	}
	parts := make([]string, len(n.tokens))
	for i, t := range n.tokens {
		parts[i] = t.String()
	}
	return strings.Join(parts, ".")
}

// MarshalText implements encoding.TextMarshaler.
func (n Name) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *Name) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

func escape(s string) string {
	if !strings.ContainsAny(s, `.[]\`) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '.', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
