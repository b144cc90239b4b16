package harness

import "github.com/roach88/configur8/internal/injector"

// FetchEvent is one source call recorded during the pass.
type FetchEvent struct {
	Seq    int64  `json:"seq"`
	Prefix string `json:"prefix"`
	Token  string `json:"token"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all assertions hold.
	Pass bool `json:"pass"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Before and After are deep copies of the document around the pass.
	Before map[string]any `json:"before"`
	After  map[string]any `json:"after"`

	// Report is the engine's description of the pass.
	Report *injector.Report `json:"report"`

	// PassErr is the error returned by the pass, if any.
	PassErr error `json:"-"`

	// Fetches lists every source call in global sequence order.
	Fetches []FetchEvent `json:"fetches"`

	updates map[string]int
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Errors:  []string{},
		Fetches: []FetchEvent{},
		updates: map[string]int{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Updates returns how many times key was updated during the pass.
func (r *Result) Updates(key string) int {
	return r.updates[key]
}
