package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/roach88/configur8/internal/document"
	"github.com/roach88/configur8/internal/injector"
	"github.com/roach88/configur8/internal/source"
	"github.com/roach88/configur8/internal/store"
	"github.com/roach88/configur8/internal/testutil"
)

// Option configures a harness run.
type Option func(*runConfig)

type runConfig struct {
	logger *slog.Logger
}

// WithLogger routes engine logs to logger. Runs are silent by default.
func WithLogger(logger *slog.Logger) Option {
	return func(c *runConfig) { c.logger = logger }
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory store for isolation.
//
// Execution flow:
// 1. Build the document and snapshot it
// 2. Register a recording source per scenario source, plus kv if seeded
// 3. Run one ReplacingInjector pass with a fixed pass ID
// 4. Evaluate assertions and return the result
//
// A pass that reports entry failures is not a harness error: failures are
// part of the outcome and are checked with "failed" assertions. Run returns
// an error only when the scenario cannot be set up.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx := context.Background()

	tree := document.NewTree(scenario.Document)
	doc := testutil.NewRecordingDocument(tree)

	calls := testutil.NewCallLog()
	var sources []source.Source
	for _, decl := range scenario.Sources {
		src := testutil.NewRecordingSource(decl.Prefix, decl.Values).WithLog(calls)
		for tok, msg := range decl.Errors {
			src.WithError(tok, errors.New(msg))
		}
		sources = append(sources, src)
	}

	if len(scenario.KV) > 0 {
		st, err := store.Open(":memory:")
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		defer st.Close()

		for key, value := range scenario.KV {
			if _, err := st.Put(ctx, key, value); err != nil {
				return nil, fmt.Errorf("failed to seed kv %q: %w", key, err)
			}
		}
		kv := source.NewKV(KVPrefix, st)
		sources = append(sources, &recordingWrapper{Source: kv, log: calls})
	}

	registry, err := source.NewRegistry(sources...)
	if err != nil {
		return nil, fmt.Errorf("failed to register sources: %w", err)
	}

	inj := injector.New(registry,
		injector.WithLogger(cfg.logger, "harness"),
		injector.WithPassIDGenerator(testutil.NewFixedPassIDGenerator(scenario.PassID)),
		injector.WithMaxConcurrency(scenario.MaxConcurrency),
	)

	result := NewResult()
	result.Before = tree.Root()

	report, passErr := inj.ReplaceAllInWithReport(ctx, doc)
	result.Report = report
	result.PassErr = passErr
	result.After = tree.Root()

	for _, c := range calls.Calls() {
		result.Fetches = append(result.Fetches, FetchEvent{Seq: c.Seq, Prefix: c.Prefix, Token: c.Token})
	}
	result.updates = doc.Counts()

	for i, assertion := range scenario.Assertions {
		if err := evaluate(result, tree, assertion); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}

	return result, nil
}

// fetchCounts returns the number of calls per token, keys sorted.
func (r *Result) fetchCounts() map[string]int {
	counts := map[string]int{}
	for _, f := range r.Fetches {
		counts[f.Token]++
	}
	return counts
}

func (r *Result) updatedKeys() []string {
	keys := make([]string, 0, len(r.updates))
	for k := range r.updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// recordingWrapper records calls to a real source in the shared call log.
type recordingWrapper struct {
	source.Source
	log *testutil.CallLog
}

func (w *recordingWrapper) Value(ctx context.Context, raw string) (string, bool, error) {
	w.log.Record(w.Prefix(), raw)
	return w.Source.Value(ctx, raw)
}
