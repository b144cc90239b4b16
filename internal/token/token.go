package token

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedToken is wrapped by every ParseError.
var ErrMalformedToken = errors.New("malformed token")

// ParseError describes why a raw token could not be parsed.
type ParseError struct {
	Raw    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed token %q: %s", e.Raw, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return ErrMalformedToken
}

// Modifier is one '@name' or '@name(arg)' segment of a value pattern.
type Modifier struct {
	Name   string
	Arg    string
	HasArg bool
}

func (m Modifier) String() string {
	if m.HasArg {
		return "@" + m.Name + "(" + m.Arg + ")"
	}
	return "@" + m.Name
}

// Token is a parsed reference token. Values are immutable after Parse.
type Token struct {
	raw          string
	prefix       string
	valuePattern string
	path         string
	modifiers    []Modifier
}

// Parse splits raw into prefix and value pattern and parses the modifiers.
//
// The prefix is everything before the first ':'. The value pattern is the
// remainder. Within the value pattern, the first '@' starts the modifier list.
func Parse(raw string) (Token, error) {
	prefix, pattern, ok := strings.Cut(raw, ":")
	if !ok {
		return Token{}, &ParseError{Raw: raw, Reason: "missing ':' separator"}
	}
	if prefix == "" {
		return Token{}, &ParseError{Raw: raw, Reason: "empty prefix"}
	}
	if pattern == "" {
		return Token{}, &ParseError{Raw: raw, Reason: "empty value pattern"}
	}

	path, rest, hasMods := strings.Cut(pattern, "@")
	if path == "" {
		return Token{}, &ParseError{Raw: raw, Reason: "empty path"}
	}

	t := Token{
		raw:          raw,
		prefix:       prefix,
		valuePattern: pattern,
		path:         path,
	}

	if hasMods {
		mods, err := parseModifiers(rest)
		if err != nil {
			return Token{}, &ParseError{Raw: raw, Reason: err.Error()}
		}
		t.modifiers = mods
	}

	return t, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level values.
func MustParse(raw string) Token {
	t, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// PrefixOf returns the prefix of raw without parsing modifiers.
func PrefixOf(raw string) (string, bool) {
	prefix, _, ok := strings.Cut(raw, ":")
	if !ok || prefix == "" {
		return "", false
	}
	return prefix, true
}

// Raw returns the token exactly as it appeared in the document.
func (t Token) Raw() string { return t.raw }

// Prefix returns the source selector.
func (t Token) Prefix() string { return t.prefix }

// ValuePattern returns everything after the prefix separator.
func (t Token) ValuePattern() string { return t.valuePattern }

// Path returns the source-specific part of the value pattern.
func (t Token) Path() string { return t.path }

// Modifiers returns a copy of the modifier list in declaration order.
func (t Token) Modifiers() []Modifier {
	if len(t.modifiers) == 0 {
		return nil
	}
	out := make([]Modifier, len(t.modifiers))
	copy(out, t.modifiers)
	return out
}

func (t Token) String() string { return t.raw }

// parseModifiers parses "name", "name(arg)" segments separated by '@'.
func parseModifiers(s string) ([]Modifier, error) {
	var mods []Modifier
	for _, seg := range strings.Split(s, "@") {
		if seg == "" {
			return nil, errors.New("empty modifier")
		}

		open := strings.IndexByte(seg, '(')
		if open < 0 {
			if strings.ContainsRune(seg, ')') {
				return nil, fmt.Errorf("unbalanced ')' in modifier %q", seg)
			}
			mods = append(mods, Modifier{Name: seg})
			continue
		}

		if !strings.HasSuffix(seg, ")") {
			return nil, fmt.Errorf("modifier %q must end with ')'", seg)
		}
		name := seg[:open]
		arg := seg[open+1 : len(seg)-1]
		if name == "" {
			return nil, fmt.Errorf("modifier %q has no name", seg)
		}
		if strings.ContainsAny(arg, "()") {
			return nil, fmt.Errorf("nested parentheses in modifier %q", seg)
		}
		mods = append(mods, Modifier{Name: name, Arg: arg, HasArg: true})
	}
	return mods, nil
}
