// Package zonematch implements the label-at-a-time pattern language zones
// use to claim query names: literal labels, per-label regular expressions,
// and three wildcard kinds matched right-to-left against a query name.
package zonematch

import (
	"errors"
	"regexp"
)

// Kind tags the variant a Label holds. Matching dispatches on Kind rather
// than through a class hierarchy.
type Kind int

const (
	KindLiteral Kind = iota
	KindRegex
	KindWildcard
	KindSubWildcard
	KindAllWildcard
)

// ErrEagerRegexUnsupported is returned when a configuration tries to use an
// eager regex label. Eager matching (a regex consuming multiple labels) has
// no defined semantics, so configurations that ask for it are rejected
// rather than guessed at.
var ErrEagerRegexUnsupported = errors.New("zonematch: eager regex labels are not implemented")

// Label is one element of a Matcher. Exactly one of the fields below is
// meaningful, selected by Kind.
type Label struct {
	Kind    Kind
	Literal string         // KindLiteral: lowercase, 1-63 chars
	Eager   bool           // KindRegex: true is rejected, see ErrEagerRegexUnsupported
	Regex   *regexp.Regexp // KindRegex
}

// NewLiteral builds a literal label, lowercasing per the matcher's
// case-insensitivity contract.
func NewLiteral(s string) Label {
	return Label{Kind: KindLiteral, Literal: toLower(s)}
}

// NewRegex compiles a per-label regex. Eager regexes are rejected at
// construction time (see ErrEagerRegexUnsupported) rather than silently
// given a guessed greedy/minimal semantics.
func NewRegex(pattern string, eager bool) (Label, error) {
	if eager {
		return Label{}, ErrEagerRegexUnsupported
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Label{}, err
	}
	return Label{Kind: KindRegex, Eager: eager, Regex: re}, nil
}

// Wildcard, SubWildcard and AllWildcard are the three terminal/non-terminal
// wildcard labels; they carry no payload so a single shared value suffices.
var (
	Wildcard    = Label{Kind: KindWildcard}
	SubWildcard = Label{Kind: KindSubWildcard}
	AllWildcard = Label{Kind: KindAllWildcard}
)

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
