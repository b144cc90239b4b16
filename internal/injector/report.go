package injector

import (
	"sort"
	"sync"
)

// Report summarises one resolution pass. Slices are sorted by key, then
// token, so reports compare equal across runs regardless of scheduling.
type Report struct {
	PassID string `json:"pass_id"`

	// EntriesScanned counts string entries handed to the matcher.
	EntriesScanned int `json:"entries_scanned"`

	// EntriesMatched counts entries carrying at least one token.
	EntriesMatched int `json:"entries_matched"`

	Replaced   []Replacement `json:"replaced"`
	Unresolved []TokenRef    `json:"unresolved"`
	Failures   []*EntryError `json:"-"`
}

// Replacement is one committed update.
type Replacement struct {
	Key   string `json:"key"`
	Token string `json:"token"`
	Value any    `json:"value"`
}

// TokenRef names a token inside an entry.
type TokenRef struct {
	Key   string `json:"key"`
	Token string `json:"token"`
}

// Err returns a *PassError when any entry failed, nil otherwise.
func (r *Report) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return &PassError{PassID: r.PassID, Failures: r.Failures}
}

// collector gathers outcomes from concurrent entry goroutines.
type collector struct {
	mu     sync.Mutex
	report Report
}

func newCollector(passID string) *collector {
	return &collector{report: Report{PassID: passID}}
}

func (c *collector) scanned(matched bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report.EntriesScanned++
	if matched {
		c.report.EntriesMatched++
	}
}

func (c *collector) replaced(key, tok string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report.Replaced = append(c.report.Replaced, Replacement{Key: key, Token: tok, Value: value})
}

func (c *collector) unresolved(key, tok string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report.Unresolved = append(c.report.Unresolved, TokenRef{Key: key, Token: tok})
}

func (c *collector) failed(err *EntryError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.report.Failures = append(c.report.Failures, err)
}

// finish sorts and returns the report. Call only after all goroutines are done.
func (c *collector) finish() *Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.report
	sort.SliceStable(r.Replaced, func(i, j int) bool {
		return less(r.Replaced[i].Key, r.Replaced[i].Token, r.Replaced[j].Key, r.Replaced[j].Token)
	})
	sort.SliceStable(r.Unresolved, func(i, j int) bool {
		return less(r.Unresolved[i].Key, r.Unresolved[i].Token, r.Unresolved[j].Key, r.Unresolved[j].Token)
	})
	sort.SliceStable(r.Failures, func(i, j int) bool {
		return less(r.Failures[i].Key, r.Failures[i].Token, r.Failures[j].Key, r.Failures[j].Token)
	})
	return &r
}

func less(k1, t1, k2, t2 string) bool {
	if k1 != k2 {
		return k1 < k2
	}
	return t1 < t2
}
