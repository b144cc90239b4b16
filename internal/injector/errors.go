package injector

import (
	"errors"
	"fmt"
	"strings"
)

// Stage identifies the resolution step an entry failed in.
type Stage string

const (
	// StageParse indicates the token could not be parsed.
	StageParse Stage = "parse"

	// StageFetch indicates the value source returned an error.
	StageFetch Stage = "fetch"

	// StageTransform indicates a modifier could not be applied.
	StageTransform Stage = "transform"

	// StageUpdate indicates the document rejected the write.
	StageUpdate Stage = "update"
)

// EntryError records why one entry's resolution chain aborted.
type EntryError struct {
	Key   string
	Token string
	Stage Stage
	Err   error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("%s %q in %q: %v", e.Stage, e.Token, e.Key, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

// PassError aggregates every entry failure of one pass.
type PassError struct {
	PassID   string
	Failures []*EntryError
}

func (e *PassError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("pass %s: %d entries failed: %s", e.PassID, len(e.Failures), strings.Join(msgs, "; "))
}

// Unwrap exposes each failure to errors.Is and errors.As.
func (e *PassError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// FailedKeys returns the keys of every failed entry in err, or nil when err
// carries no entry failures.
func FailedKeys(err error) []string {
	var pe *PassError
	if errors.As(err, &pe) {
		keys := make([]string, len(pe.Failures))
		for i, f := range pe.Failures {
			keys[i] = f.Key
		}
		return keys
	}
	var ee *EntryError
	if errors.As(err, &ee) {
		return []string{ee.Key}
	}
	return nil
}

// IsStage returns true if err contains an entry failure at the given stage.
// Uses errors.As to handle wrapped errors.
func IsStage(err error, stage Stage) bool {
	var pe *PassError
	if errors.As(err, &pe) {
		for _, f := range pe.Failures {
			if f.Stage == stage {
				return true
			}
		}
		return false
	}
	var ee *EntryError
	if errors.As(err, &ee) {
		return ee.Stage == stage
	}
	return false
}
