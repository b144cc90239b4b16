// Package transform applies value-pattern modifiers to fetched values.
//
// The replacement engine treats this step as opaque: an optional fetched value
// goes in, an optional single value or list of values comes out. Supported
// modifiers:
//
//	@default(x)   use x when the source had no value
//	@upper        upper case
//	@lower        lower case
//	@title        title case
//	@trim         strip surrounding whitespace
//	@split        split on ',' into a list
//	@split(name)  split on a named separator (comma, colon, semicolon, slash, pipe, space)
//
// Modifiers apply in declaration order. Casing and trimming apply to every
// list item once a value has been split. Every resulting string is NFC
// normalised.
package transform

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/configur8/internal/token"
)

// Translator turns an optional fetched value into an optional resolved value.
type Translator interface {
	Translate(tok token.Token, value string, found bool) (Value, bool, error)
}

// Value is a resolution outcome: a single string or an ordered list.
type Value struct {
	Text   string
	List   []string
	IsList bool
}

// Single returns a scalar Value.
func Single(s string) Value { return Value{Text: s} }

// Many returns a list Value.
func Many(items ...string) Value { return Value{List: items, IsList: true} }

// Any returns the value in the shape a document update expects:
// string for scalars, []string for lists.
func (v Value) Any() any {
	if v.IsList {
		out := make([]string, len(v.List))
		copy(out, v.List)
		return out
	}
	return v.Text
}

// Empty reports whether the value carries nothing to substitute. An empty
// scalar counts as empty; a list is never empty, even with zero items.
func (v Value) Empty() bool {
	return !v.IsList && v.Text == ""
}

func (v Value) String() string {
	if v.IsList {
		return "[" + strings.Join(v.List, ", ") + "]"
	}
	return v.Text
}

// ErrUnknownModifier is wrapped by Error when a modifier name is not supported.
var ErrUnknownModifier = errors.New("unknown modifier")

// Error reports a modifier that could not be applied.
type Error struct {
	Token    string
	Modifier string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transform %s in %q: %v", e.Modifier, e.Token, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var separators = map[string]string{
	"":          ",",
	"comma":     ",",
	"colon":     ":",
	"semicolon": ";",
	"slash":     "/",
	"pipe":      "|",
	"space":     " ",
}

// Modifiers is the default Translator.
type Modifiers struct{}

// Translate applies tok's modifiers to value.
//
// Returns ok=false when there is nothing to substitute: the source had no
// value and no @default supplied one, or the result is an empty string.
func (Modifiers) Translate(tok token.Token, value string, found bool) (Value, bool, error) {
	mods := tok.Modifiers()

	// Defaults apply before anything else so later modifiers see the value.
	for _, m := range mods {
		if m.Name == "default" && !found {
			value, found = m.Arg, true
			break
		}
	}
	if !found {
		return Value{}, false, nil
	}

	out := Single(value)
	for _, m := range mods {
		next, err := apply(out, m)
		if err != nil {
			return Value{}, false, &Error{Token: tok.Raw(), Modifier: m.String(), Err: err}
		}
		out = next
	}

	out = normalize(out)
	if out.Empty() {
		return Value{}, false, nil
	}
	return out, true, nil
}

func apply(v Value, m token.Modifier) (Value, error) {
	switch m.Name {
	case "default":
		return v, nil
	case "upper":
		return mapEach(v, cases.Upper(language.Und).String), nil
	case "lower":
		return mapEach(v, cases.Lower(language.Und).String), nil
	case "title":
		return mapEach(v, cases.Title(language.Und).String), nil
	case "trim":
		return mapEach(v, strings.TrimSpace), nil
	case "split":
		if v.IsList {
			return Value{}, errors.New("value is already a list")
		}
		sep, ok := separators[m.Arg]
		if !ok {
			return Value{}, fmt.Errorf("unknown separator %q", m.Arg)
		}
		return splitValue(v.Text, sep), nil
	default:
		return Value{}, ErrUnknownModifier
	}
}

func splitValue(s, sep string) Value {
	items := make([]string, 0)
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		items = append(items, part)
	}
	return Many(items...)
}

func mapEach(v Value, fn func(string) string) Value {
	if !v.IsList {
		return Single(fn(v.Text))
	}
	items := make([]string, len(v.List))
	for i, s := range v.List {
		items[i] = fn(s)
	}
	return Many(items...)
}

func normalize(v Value) Value {
	return mapEach(v, norm.NFC.String)
}
