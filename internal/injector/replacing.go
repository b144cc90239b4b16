package injector

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/roach88/configur8/internal/document"
	"github.com/roach88/configur8/internal/source"
	"github.com/roach88/configur8/internal/token"
	"github.com/roach88/configur8/internal/transform"
)

// DefaultPriority is the priority of a ReplacingInjector unless overridden.
const DefaultPriority = 100

// LoggerName is appended to the parent logger's name for injector events.
const LoggerName = "replacing-injector"

const redacted = "***"

// SourceFinder maps a token string to the source that owns its prefix.
// Implemented by *source.Registry.
type SourceFinder interface {
	FindSource(raw string) (source.Source, bool)
}

// ReplacingInjector replaces every string entry that carries a resolvable
// token with the token's resolved value. The whole entry value is replaced,
// not only the token's span within it.
//
// Thread-safety: a ReplacingInjector is immutable after construction and may
// run concurrent passes over different documents.
type ReplacingInjector struct {
	sources        SourceFinder
	translator     transform.Translator
	logger         *slog.Logger
	tracer         trace.Tracer
	ids            PassIDGenerator
	priority       int
	maxConcurrency int
	redact         bool
}

// Option configures a ReplacingInjector.
type Option func(*ReplacingInjector)

// WithLogger sets the parent logger. Events are logged on a child logger
// whose "logger" attribute is parentName + "." + LoggerName.
func WithLogger(parent *slog.Logger, parentName string) Option {
	return func(r *ReplacingInjector) {
		if parent == nil {
			return
		}
		child := LoggerName
		if parentName != "" {
			child = parentName + "." + LoggerName
		}
		r.logger = parent.With("logger", child)
	}
}

// WithTranslator replaces the default modifier translator.
func WithTranslator(t transform.Translator) Option {
	return func(r *ReplacingInjector) {
		if t != nil {
			r.translator = t
		}
	}
}

// WithPriority overrides DefaultPriority.
func WithPriority(p int) Option {
	return func(r *ReplacingInjector) { r.priority = p }
}

// WithMaxConcurrency bounds how many entries resolve at once.
// Zero or negative means unbounded.
func WithMaxConcurrency(n int) Option {
	return func(r *ReplacingInjector) { r.maxConcurrency = n }
}

// WithPassIDGenerator sets the generator for pass IDs.
func WithPassIDGenerator(g PassIDGenerator) Option {
	return func(r *ReplacingInjector) {
		if g != nil {
			r.ids = g
		}
	}
}

// WithTracer sets the tracer used for pass and entry spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *ReplacingInjector) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithRedaction masks resolved values in log output.
func WithRedaction(on bool) Option {
	return func(r *ReplacingInjector) { r.redact = on }
}

// New creates a ReplacingInjector resolving tokens against sources.
func New(sources SourceFinder, opts ...Option) *ReplacingInjector {
	r := &ReplacingInjector{
		sources:    sources,
		translator: transform.Modifiers{},
		logger:     slog.New(slog.DiscardHandler).With("logger", LoggerName),
		tracer:     noop.NewTracerProvider().Tracer("configur8/injector"),
		ids:        UUIDv7Generator{},
		priority:   DefaultPriority,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Priority returns the injector's ordering key. Lower runs earlier.
func (r *ReplacingInjector) Priority() int {
	return r.priority
}

// ReplaceAllIn runs one pass over doc and returns it. The document is
// returned even when the error is non-nil: entries that resolved are
// committed, and the error is a *PassError naming the entries that failed.
func (r *ReplacingInjector) ReplaceAllIn(ctx context.Context, doc document.Document) (document.Document, error) {
	_, err := r.ReplaceAllInWithReport(ctx, doc)
	return doc, err
}

// ReplaceAllInWithReport runs one pass over doc and describes what happened.
// The report is always non-nil. The error equals report.Err().
func (r *ReplacingInjector) ReplaceAllInWithReport(ctx context.Context, doc document.Document) (*Report, error) {
	passID := r.ids.Generate()
	log := r.logger.With("pass", passID)

	ctx, span := r.tracer.Start(ctx, "injector.replace_all",
		trace.WithAttributes(attribute.String("pass.id", passID)))
	defer span.End()

	log.Debug("replace pass started")

	col := newCollector(passID)

	var sem chan struct{}
	if r.maxConcurrency > 0 {
		sem = make(chan struct{}, r.maxConcurrency)
	}

	var wg sync.WaitGroup
	for _, entry := range doc.Flatten() {
		value, ok := entry.Value.(string)
		if !ok {
			continue
		}

		matches := token.Scan(value)
		col.scanned(len(matches) > 0)
		if len(matches) == 0 {
			continue
		}

		log.Debug("entry has tokens", "key", entry.Key, "value", value, "tokens", matches)

		wg.Add(1)
		go func(key string, matches []string) {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			r.resolveEntry(ctx, log, doc, key, matches, col)
		}(entry.Key, matches)
	}
	wg.Wait()

	report := col.finish()
	span.SetAttributes(
		attribute.Int("entries.matched", report.EntriesMatched),
		attribute.Int("entries.replaced", len(report.Replaced)),
	)

	err := report.Err()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "entries failed")
		log.Warn("replace pass finished with failures", "failed", len(report.Failures))
	}

	log.Debug("replace pass finished",
		"scanned", report.EntriesScanned,
		"matched", report.EntriesMatched,
		"replaced", len(report.Replaced),
		"unresolved", len(report.Unresolved))

	return report, err
}

// resolveEntry tries the entry's tokens in order until one replaces the
// entry. Only one token is in flight at a time.
func (r *ReplacingInjector) resolveEntry(ctx context.Context, log *slog.Logger, doc document.Document, key string, matches []string, col *collector) {
	ctx, span := r.tracer.Start(ctx, "injector.resolve_entry",
		trace.WithAttributes(
			attribute.String("entry.key", key),
			attribute.StringSlice("entry.tokens", matches),
		))
	defer span.End()

	for _, match := range matches {
		replaced, ee := r.replaceOne(ctx, log, doc, key, match, col)
		if ee != nil {
			col.failed(ee)
			span.RecordError(ee)
			span.SetStatus(codes.Error, string(ee.Stage))
			log.Error("entry failed", "key", key, "token", match, "stage", ee.Stage, "error", ee.Err)
			return
		}
		if replaced {
			span.SetAttributes(attribute.String("entry.token", match))
			return
		}
	}
}

// replaceOne attempts a single token. It returns true when the entry was
// updated, false when the token did not resolve.
func (r *ReplacingInjector) replaceOne(ctx context.Context, log *slog.Logger, doc document.Document, key, match string, col *collector) (bool, *EntryError) {
	// Text that only looks like a token stays unresolved unless a source
	// owns its prefix.
	src, ok := r.sources.FindSource(match)
	if !ok {
		log.Debug("no value found", "key", key, "token", match, "reason", "no source for prefix")
		col.unresolved(key, match)
		return false, nil
	}

	tok, err := token.Parse(match)
	if err != nil {
		return false, &EntryError{Key: key, Token: match, Stage: StageParse, Err: err}
	}

	fetched, found, err := src.Value(ctx, match)
	if err != nil {
		return false, &EntryError{Key: key, Token: match, Stage: StageFetch, Err: err}
	}

	resolved, ok, err := r.translator.Translate(tok, fetched, found)
	if err != nil {
		return false, &EntryError{Key: key, Token: match, Stage: StageTransform, Err: err}
	}
	if !ok || resolved.Empty() {
		log.Debug("no value found", "key", key, "token", match, "source_found", found)
		col.unresolved(key, match)
		return false, nil
	}

	if err := doc.Update(key, resolved.Any()); err != nil {
		return false, &EntryError{Key: key, Token: match, Stage: StageUpdate, Err: err}
	}

	log.Info("replaced token",
		"key", key,
		"prefix", tok.Prefix(),
		"pattern", tok.ValuePattern(),
		"value", r.display(resolved))
	col.replaced(key, match, resolved.Any())
	return true, nil
}

func (r *ReplacingInjector) display(v transform.Value) string {
	if r.redact {
		return redacted
	}
	return v.String()
}
