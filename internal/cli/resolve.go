package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/configur8/internal/config"
	"github.com/roach88/configur8/internal/document"
	"github.com/roach88/configur8/internal/injector"
	"github.com/roach88/configur8/internal/tracing"
	"github.com/roach88/configur8/internal/watch"
)

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	*RootOptions
	Output       string
	OutputFormat string
	Watch        bool
	Debounce     time.Duration
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve <file>",
		Short: "Replace reference tokens in a document",
		Long: `Resolve loads a YAML, JSON or CUE document, replaces every entry whose
value carries a resolvable token and writes the result.

Entries that fail to resolve keep their original value. The document is
written regardless and the command exits 1 when any entry failed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().StringVar(&opts.OutputFormat, "output-format", "", "output format yaml|json (default: input format, yaml for cue)")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "re-resolve when the document or config file changes")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", watch.DefaultDebounce, "how long to wait for writes to settle in watch mode")
	cmd.Flags().Int("concurrency", 0, "maximum entries resolved at once (0 = unbounded)")
	cmd.Flags().Bool("redact", false, "mask resolved values in logs")
	cmd.Flags().String("kv-db", "", "path to the kv value store")

	return cmd
}

func runResolve(cmd *cobra.Command, opts *ResolveOptions, path string) error {
	formatter := opts.formatter(cmd)
	// The document owns stdout; summaries go to stderr.
	summary := &OutputFormatter{Format: opts.Format, Writer: cmd.ErrOrStderr(), Verbose: opts.Verbose}

	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		_ = summary.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}

	var outFormat document.Format
	if opts.OutputFormat != "" {
		outFormat, err = document.ParseFormat(opts.OutputFormat)
		if err != nil {
			_ = summary.Error(ErrCodeDocument, err.Error(), nil)
			return WrapExitError(ExitCommandError, "invalid output format", err)
		}
	}

	if opts.Watch && opts.Output != "" {
		for _, watched := range []string{path, cfg.File} {
			if watched != "" && samePath(opts.Output, watched) {
				msg := fmt.Sprintf("output %s is a watched file; writing it would re-trigger the watch", opts.Output)
				_ = summary.Error(ErrCodeDocument, msg, nil)
				return NewExitError(ExitCommandError, msg)
			}
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := newResolver(ctx, cmd, cfg, opts)
	if err != nil {
		_ = summary.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}
	defer func() { r.close() }()

	formatter.VerboseLog("resolving %s", path)
	resolveErr := r.resolve(ctx, path, outFormat, summary)
	if !opts.Watch {
		return resolveErr
	}
	if resolveErr != nil && GetExitCode(resolveErr) == ExitCommandError {
		return resolveErr
	}

	files := []string{path}
	if cfg.File != "" {
		files = append(files, cfg.File)
	}
	w, err := watch.New(opts.Debounce, files...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start watcher", err)
	}
	defer func() { _ = w.Stop() }()

	onChange, watchErrs := w.Start()
	r.logger.Info("watching for changes", "files", files)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("watch stopped")
			return nil
		case err := <-watchErrs:
			r.logger.Warn("watch error", "error", err)
		case <-onChange:
			if cfg.File != "" {
				r = reloadResolver(ctx, cmd, opts, r)
			}
			r.logger.Info("change detected, resolving", "file", path)
			if err := r.resolve(ctx, path, outFormat, summary); err != nil {
				r.logger.Error("resolve failed", "error", err)
			}
		}
	}
}

// reloadResolver rereads the config and swaps in a resolver built from it.
// The current resolver is kept when the new config is invalid or its sources
// cannot be built.
func reloadResolver(ctx context.Context, cmd *cobra.Command, opts *ResolveOptions, current *resolver) *resolver {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		current.logger.Warn("config reload failed, keeping previous config", "error", err)
		return current
	}
	next, err := newResolver(ctx, cmd, cfg, opts)
	if err != nil {
		current.logger.Warn("config reload failed, keeping previous config", "error", err)
		return current
	}
	current.close()
	next.logger.Debug("config reloaded", "config", cfg.File)
	return next
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

// resolver holds the sources, tracer and pipeline shared by every resolve in
// a command run.
type resolver struct {
	cmd      *cobra.Command
	opts     *ResolveOptions
	logger   *slog.Logger
	sources  *config.Sources
	tracer   *tracing.Provider
	recorder *reportingInjector
	pipeline *injector.Pipeline
}

func newResolver(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts *ResolveOptions) (*resolver, error) {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	srcs, err := config.BuildSources(cfg, nil, logger.With("logger", loggerName+".source-cache"))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to build sources", err)
	}

	tp, err := tracing.NewProvider(ctx, cfg.Tracing, tracing.WithStdoutWriter(cmd.ErrOrStderr()))
	if err != nil {
		_ = srcs.Close()
		return nil, WrapExitError(ExitCommandError, "failed to start tracing", err)
	}

	inj := injector.New(srcs.Registry,
		injector.WithLogger(logger, loggerName),
		injector.WithMaxConcurrency(cfg.Concurrency),
		injector.WithRedaction(cfg.Redact),
		injector.WithTracer(tp.Tracer()),
	)
	rec := &reportingInjector{ReplacingInjector: inj}

	logger.Debug("sources registered", "prefixes", srcs.Registry.Prefixes(), "config", cfg.File)

	return &resolver{
		cmd:      cmd,
		opts:     opts,
		logger:   logger,
		sources:  srcs,
		tracer:   tp,
		recorder: rec,
		pipeline: injector.NewPipeline(rec),
	}, nil
}

func (r *resolver) close() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.tracer.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("tracer shutdown failed", "error", err)
	}
	if err := r.sources.Close(); err != nil {
		r.logger.Warn("closing kv store failed", "error", err)
	}
}

// resolve runs one load, pipeline, write cycle.
func (r *resolver) resolve(ctx context.Context, path string, outFormat document.Format, summary *OutputFormatter) error {
	tree, inFormat, err := document.Load(path)
	if err != nil {
		_ = summary.Error(ErrCodeDocument, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load document", err)
	}
	if outFormat == "" {
		outFormat = inFormat
	}

	_, runErr := r.pipeline.Run(ctx, tree)

	var passErr *injector.PassError
	if runErr != nil && !errors.As(runErr, &passErr) {
		_ = summary.Error(ErrCodeResolve, runErr.Error(), nil)
		return WrapExitError(ExitCommandError, "resolve failed", runErr)
	}

	if err := r.write(tree, outFormat); err != nil {
		_ = summary.Error(ErrCodeDocument, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to write document", err)
	}

	if report := r.recorder.LastReport(); report != nil {
		if err := summary.Report(report); err != nil {
			return err
		}
	}

	if passErr != nil {
		return WrapExitError(ExitFailure,
			fmt.Sprintf("%d entries failed to resolve", len(passErr.Failures)), passErr)
	}
	return nil
}

// write encodes into memory first so a failed encode never truncates an
// existing output file.
func (r *resolver) write(tree *document.Tree, format document.Format) error {
	var buf bytes.Buffer
	if err := document.Encode(&buf, tree, format); err != nil {
		return err
	}
	if r.opts.Output == "" {
		_, err := r.cmd.OutOrStdout().Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(r.opts.Output, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", r.opts.Output, err)
	}
	return nil
}

// reportingInjector keeps the report of the most recent pass so the command
// can summarize a pipeline run.
type reportingInjector struct {
	*injector.ReplacingInjector

	mu   sync.Mutex
	last *injector.Report
}

func (i *reportingInjector) ReplaceAllIn(ctx context.Context, doc document.Document) (document.Document, error) {
	report, err := i.ReplaceAllInWithReport(ctx, doc)
	i.mu.Lock()
	i.last = report
	i.mu.Unlock()
	return doc, err
}

// LastReport returns the report of the most recent pass, nil before the first.
func (i *reportingInjector) LastReport() *injector.Report {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.last
}
