package harness

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/configur8/internal/document"
	"github.com/roach88/configur8/internal/injector"
)

// AssertionError is returned when an assertion fails.
// It includes the fetch log to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Fetches  []FetchEvent // Full fetch log for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFetches:\n")
	for _, f := range e.Fetches {
		fmt.Fprintf(&buf, "  [%d] %s\n", f.Seq, f.Token)
	}

	return buf.String()
}

func evaluate(r *Result, tree *document.Tree, a Assertion) error {
	switch a.Type {
	case AssertValue:
		return assertValue(r, tree, a)
	case AssertUnchanged:
		return assertUnchanged(r, tree, a)
	case AssertUpdateCount:
		return assertUpdateCount(r, a)
	case AssertFetchCount:
		return assertFetchCount(r, a)
	case AssertFetchOrder:
		return assertFetchOrder(r, a)
	case AssertUnresolved:
		return assertUnresolved(r, a)
	case AssertFailed:
		return assertFailed(r, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertValue(r *Result, tree *document.Tree, a Assertion) error {
	got, ok := tree.Get(a.Key)
	if !ok {
		return &AssertionError{
			Type:     AssertValue,
			Expected: fmt.Sprintf("%s = %v", a.Key, a.Expect),
			Actual:   "key not found",
			Fetches:  r.Fetches,
		}
	}
	if !valuesEqual(got, a.Expect) {
		return &AssertionError{
			Type:     AssertValue,
			Expected: fmt.Sprintf("%s = %v", a.Key, a.Expect),
			Actual:   fmt.Sprintf("%s = %v", a.Key, got),
			Fetches:  r.Fetches,
		}
	}
	return nil
}

func assertUnchanged(r *Result, tree *document.Tree, a Assertion) error {
	before, ok := document.NewTree(r.Before).Get(a.Key)
	if !ok {
		return fmt.Errorf("key %q not in document", a.Key)
	}
	after, _ := tree.Get(a.Key)
	if !valuesEqual(before, after) {
		return &AssertionError{
			Type:     AssertUnchanged,
			Expected: fmt.Sprintf("%s = %v", a.Key, before),
			Actual:   fmt.Sprintf("%s = %v", a.Key, after),
			Fetches:  r.Fetches,
		}
	}
	return nil
}

func assertUpdateCount(r *Result, a Assertion) error {
	if got := r.Updates(a.Key); got != a.Count {
		return &AssertionError{
			Type:     AssertUpdateCount,
			Expected: fmt.Sprintf("%d updates of %s", a.Count, a.Key),
			Actual:   fmt.Sprintf("%d updates (updated keys: %v)", got, r.updatedKeys()),
			Fetches:  r.Fetches,
		}
	}
	return nil
}

func assertFetchCount(r *Result, a Assertion) error {
	if got := r.fetchCounts()[a.Token]; got != a.Count {
		return &AssertionError{
			Type:     AssertFetchCount,
			Expected: fmt.Sprintf("%s fetched %d times", a.Token, a.Count),
			Actual:   fmt.Sprintf("fetched %d times", got),
			Fetches:  r.Fetches,
		}
	}
	return nil
}

// assertFetchOrder checks tokens were first fetched in the given order.
// Fetches of other tokens may appear in between.
func assertFetchOrder(r *Result, a Assertion) error {
	first := map[string]int64{}
	for _, f := range r.Fetches {
		if _, seen := first[f.Token]; !seen {
			first[f.Token] = f.Seq
		}
	}

	var prev int64
	for i, tok := range a.Tokens {
		seq, ok := first[tok]
		if !ok {
			return &AssertionError{
				Type:     AssertFetchOrder,
				Expected: fmt.Sprintf("%s fetched", tok),
				Actual:   "never fetched",
				Fetches:  r.Fetches,
			}
		}
		if i > 0 && seq < prev {
			return &AssertionError{
				Type:     AssertFetchOrder,
				Expected: fmt.Sprintf("%s fetched after %s", tok, a.Tokens[i-1]),
				Actual:   fmt.Sprintf("%s at seq %d, %s at seq %d", tok, seq, a.Tokens[i-1], prev),
				Fetches:  r.Fetches,
			}
		}
		prev = seq
	}
	return nil
}

func assertUnresolved(r *Result, a Assertion) error {
	for _, u := range r.Report.Unresolved {
		if u.Key == a.Key && u.Token == a.Token {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertUnresolved,
		Expected: fmt.Sprintf("%s unresolved in %s", a.Token, a.Key),
		Actual:   fmt.Sprintf("unresolved: %v", r.Report.Unresolved),
		Fetches:  r.Fetches,
	}
}

func assertFailed(r *Result, a Assertion) error {
	var pe *injector.PassError
	if errors.As(r.PassErr, &pe) {
		for _, f := range pe.Failures {
			if f.Key == a.Key && (a.Stage == "" || string(f.Stage) == a.Stage) {
				return nil
			}
		}
	}
	return &AssertionError{
		Type:     AssertFailed,
		Expected: fmt.Sprintf("%s failed at stage %q", a.Key, a.Stage),
		Actual:   fmt.Sprintf("failed keys: %v", injector.FailedKeys(r.PassErr)),
		Fetches:  r.Fetches,
	}
}

// valuesEqual compares document values, treating numbers of different Go
// types as equal when their values match.
func valuesEqual(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}

	as, aok := a.([]any)
	bs, bok := b.([]any)
	if aok && bok && len(as) == len(bs) {
		for i := range as {
			if !valuesEqual(as[i], bs[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
