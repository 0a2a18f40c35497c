// Package scope implements the flat scope-set algebra used by every
// credential in the system. Scopes are opaque string tokens; there is no
// hierarchical implication except for the reserved client-management scope,
// which also matches its colon-prefixed sub-scopes.
package scope

import (
	"regexp"
	"sort"
	"strings"
)

// ClientManagement is the reserved administrative scope. A credential
// carrying it is considered to also carry every "oauth:*" sub-scope. The
// prefix exception applies to operator authorization checks only, never to
// scope narrowing during exchange.
const ClientManagement = "oauth"

// TokenManagement guards the per-user client-tokens listing/revocation
// surface.
const TokenManagement = "oauth:tokens"

// Scope name rules, same shape the rest of the stack validates against:
// lowercase, starts/ends with [a-z0-9], middle chars may include [a-z0-9:_.-],
// length 1..64.
var nameRe = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9:_\.-]{0,62}[a-z0-9])?$`)

// ValidName returns true if name matches the allowed scope-name pattern.
func ValidName(name string) bool {
	return nameRe.MatchString(name)
}

// Set is a set of scope tokens. The zero value is an empty, usable set.
type Set struct {
	tokens map[string]struct{}
}

var splitRe = regexp.MustCompile(`[\s,]+`)

// Parse builds a Set from a whitespace/comma separated string.
func Parse(s string) Set {
	return New(splitRe.Split(strings.TrimSpace(s), -1)...)
}

// New builds a Set from individual tokens. Empty tokens are dropped.
func New(tokens ...string) Set {
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if t != "" {
			m[t] = struct{}{}
		}
	}
	return Set{tokens: m}
}

// Values returns the tokens sorted lexicographically.
func (s Set) Values() []string {
	out := make([]string, 0, len(s.tokens))
	for t := range s.tokens {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// String serializes the set as a space-joined, sorted scope string.
func (s Set) String() string {
	return strings.Join(s.Values(), " ")
}

// Len returns the number of tokens in the set.
func (s Set) Len() int { return len(s.tokens) }

// Empty reports whether the set has no tokens.
func (s Set) Empty() bool { return len(s.tokens) == 0 }

// Has reports exact membership of tok.
func (s Set) Has(tok string) bool {
	_, ok := s.tokens[tok]
	return ok
}

// Contains reports membership of tok, honoring the single administrative
// prefix exception: ClientManagement matches any "oauth:*" token.
func (s Set) Contains(tok string) bool {
	if s.Has(tok) {
		return true
	}
	if tok == ClientManagement || strings.HasPrefix(tok, ClientManagement+":") {
		return s.Has(ClientManagement)
	}
	return false
}

// SubsetOf reports whether every token of s is an exact member of granted.
// No prefix matching: a refresh exchange cannot widen "foo" into "foo:write".
// The empty set is a subset of everything.
func (s Set) SubsetOf(granted Set) bool {
	for t := range s.tokens {
		if !granted.Has(t) {
			return false
		}
	}
	return true
}

// Difference returns the tokens of s that are not exact members of granted,
// sorted. Used to report every offending token on a scope rejection.
func (s Set) Difference(granted Set) []string {
	var out []string
	for t := range s.tokens {
		if !granted.Has(t) {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// Union returns a new set with the tokens of both sets.
func (s Set) Union(other Set) Set {
	m := make(map[string]struct{}, len(s.tokens)+len(other.tokens))
	for t := range s.tokens {
		m[t] = struct{}{}
	}
	for t := range other.tokens {
		m[t] = struct{}{}
	}
	return Set{tokens: m}
}
