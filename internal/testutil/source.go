package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// RecordingSource is a configurable value source for engine tests.
//
// Values and errors are keyed by the full token string. Every call is
// recorded in the source's CallLog. Optional behaviours:
//
//   - WithDelay holds each call for a fixed duration
//   - WithBarrier holds each call until n calls are in flight at once
//
// Thread-safety: safe for concurrent use. Configure before first use.
type RecordingSource struct {
	prefix string
	values map[string]string
	errs   map[string]error
	log    *CallLog

	delay   time.Duration
	barrier *barrier

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

// NewRecordingSource creates a source that owns prefix and serves values.
func NewRecordingSource(prefix string, values map[string]string) *RecordingSource {
	v := make(map[string]string, len(values))
	for k, val := range values {
		v[k] = val
	}
	return &RecordingSource{
		prefix: prefix,
		values: v,
		errs:   make(map[string]error),
		log:    NewCallLog(),
	}
}

// WithLog makes the source record into a shared log.
func (s *RecordingSource) WithLog(l *CallLog) *RecordingSource {
	s.log = l
	return s
}

// WithError makes fetching token fail with err.
func (s *RecordingSource) WithError(token string, err error) *RecordingSource {
	s.errs[token] = err
	return s
}

// WithDelay holds each call for d, or until the context is done.
func (s *RecordingSource) WithDelay(d time.Duration) *RecordingSource {
	s.delay = d
	return s
}

// WithBarrier holds each call until n calls have arrived. A call that waits
// longer than timeout fails, which surfaces callers that never overlap.
func (s *RecordingSource) WithBarrier(n int, timeout time.Duration) *RecordingSource {
	s.barrier = newBarrier(n, timeout)
	return s
}

// Log returns the source's call log.
func (s *RecordingSource) Log() *CallLog {
	return s.log
}

// MaxInFlight returns the highest number of concurrent calls observed.
func (s *RecordingSource) MaxInFlight() int {
	return int(s.maxInFlight.Load())
}

func (s *RecordingSource) Prefix() string { return s.prefix }

func (s *RecordingSource) Value(ctx context.Context, raw string) (string, bool, error) {
	s.log.Record(s.prefix, raw)

	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		peak := s.maxInFlight.Load()
		if n <= peak || s.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}

	if s.barrier != nil {
		if err := s.barrier.wait(ctx); err != nil {
			return "", false, err
		}
	}

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}

	if err, ok := s.errs[raw]; ok {
		return "", false, err
	}
	v, ok := s.values[raw]
	return v, ok, nil
}

type barrier struct {
	mu      sync.Mutex
	n       int
	arrived int
	release chan struct{}
	timeout time.Duration
}

func newBarrier(n int, timeout time.Duration) *barrier {
	return &barrier{n: n, release: make(chan struct{}), timeout: timeout}
}

func (b *barrier) wait(ctx context.Context) error {
	b.mu.Lock()
	b.arrived++
	if b.arrived == b.n {
		close(b.release)
	}
	b.mu.Unlock()

	select {
	case <-b.release:
		return nil
	case <-time.After(b.timeout):
		return fmt.Errorf("barrier: %d of %d callers arrived within %s", b.arrivedCount(), b.n, b.timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *barrier) arrivedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.arrived
}
