package testutil

import "sync"

// Call is one Value invocation observed by a RecordingSource.
type Call struct {
	// Seq is the global order of the call across every source sharing a CallLog.
	Seq    int64
	Prefix string
	Token  string
}

// CallLog stamps source calls with a monotonic sequence number.
//
// Several RecordingSources may share one CallLog, which makes the relative
// order of calls across prefixes observable.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type CallLog struct {
	mu    sync.Mutex
	seq   int64
	calls []Call
}

// NewCallLog creates an empty call log. The first recorded call gets Seq 1.
func NewCallLog() *CallLog {
	return &CallLog{}
}

// Record appends a call. Sources outside this package use it to share a log
// with RecordingSources.
func (l *CallLog) Record(prefix, token string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	l.calls = append(l.calls, Call{Seq: l.seq, Prefix: prefix, Token: token})
}

// Calls returns a copy of the recorded calls in sequence order.
func (l *CallLog) Calls() []Call {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Call, len(l.calls))
	copy(out, l.calls)
	return out
}

// Tokens returns the token of every recorded call in sequence order.
func (l *CallLog) Tokens() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	for i, c := range l.calls {
		out[i] = c.Token
	}
	return out
}

// Count returns how many times token was fetched.
func (l *CallLog) Count(token string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.calls {
		if c.Token == token {
			n++
		}
	}
	return n
}

// Reset clears the log. After Reset the next call gets Seq 1.
func (l *CallLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq = 0
	l.calls = nil
}
