package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/configur8/internal/store"
)

// KVOptions holds flags for the kv commands.
type KVOptions struct {
	*RootOptions
	DB string
}

// KVRecords is the text rendering of a kv listing.
type KVRecords []store.Record

func (r KVRecords) String() string {
	if len(r) == 0 {
		return "no values"
	}
	var b strings.Builder
	for i, rec := range r {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s = %s (v%d)", rec.Key, rec.Value, rec.Version)
	}
	return b.String()
}

// NewKVCommand creates the kv command group.
func NewKVCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &KVOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "kv",
		Short: "Manage the sqlite value store behind kv: tokens",
	}
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "value store path (default: sources.kv.db from config)")

	cmd.AddCommand(newKVPutCommand(opts))
	cmd.AddCommand(newKVGetCommand(opts))
	cmd.AddCommand(newKVDeleteCommand(opts))
	cmd.AddCommand(newKVListCommand(opts))
	return cmd
}

func newKVPutCommand(opts *KVOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "put <key> <value>",
		Short: "Store a value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts, func(st *store.Store, f *OutputFormatter) error {
				version, err := st.Put(cmd.Context(), args[0], args[1])
				if err != nil {
					_ = f.Error(ErrCodeStore, err.Error(), nil)
					return WrapExitError(ExitCommandError, "put failed", err)
				}
				if f.Format == "json" {
					return f.Success(map[string]any{"key": args[0], "version": version})
				}
				return f.Success(fmt.Sprintf("%s stored (v%d)", args[0], version))
			})
		},
	}
}

func newKVGetCommand(opts *KVOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print a stored value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts, func(st *store.Store, f *OutputFormatter) error {
				rec, found, err := st.Get(cmd.Context(), args[0])
				if err != nil {
					_ = f.Error(ErrCodeStore, err.Error(), nil)
					return WrapExitError(ExitCommandError, "get failed", err)
				}
				if !found {
					_ = f.Error(ErrCodeNotFound, fmt.Sprintf("key %q not found", args[0]), nil)
					return NewExitError(ExitFailure, "key not found")
				}
				if f.Format == "json" {
					return f.Success(rec)
				}
				return f.Success(rec.Value)
			})
		},
	}
}

func newKVDeleteCommand(opts *KVOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <key>",
		Aliases: []string{"rm"},
		Short:   "Remove a stored value",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts, func(st *store.Store, f *OutputFormatter) error {
				deleted, err := st.Delete(cmd.Context(), args[0])
				if err != nil {
					_ = f.Error(ErrCodeStore, err.Error(), nil)
					return WrapExitError(ExitCommandError, "delete failed", err)
				}
				if !deleted {
					_ = f.Error(ErrCodeNotFound, fmt.Sprintf("key %q not found", args[0]), nil)
					return NewExitError(ExitFailure, "key not found")
				}
				if f.Format == "json" {
					return f.Success(map[string]any{"key": args[0], "deleted": true})
				}
				return f.Success(args[0] + " deleted")
			})
		},
	}
}

func newKVListCommand(opts *KVOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "list [prefix]",
		Aliases: []string{"ls"},
		Short:   "List stored values, optionally under a key prefix",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			return withStore(cmd, opts, func(st *store.Store, f *OutputFormatter) error {
				records, err := st.List(cmd.Context(), prefix)
				if err != nil {
					_ = f.Error(ErrCodeStore, err.Error(), nil)
					return WrapExitError(ExitCommandError, "list failed", err)
				}
				if records == nil {
					records = []store.Record{}
				}
				return f.Success(KVRecords(records))
			})
		},
	}
}

// withStore opens the store named by --db, or by the config when --db is
// unset, and closes it after fn.
func withStore(cmd *cobra.Command, opts *KVOptions, fn func(*store.Store, *OutputFormatter) error) error {
	f := opts.formatter(cmd)

	path := opts.DB
	if path == "" {
		cfg, err := opts.loadConfig(cmd)
		if err != nil {
			_ = f.Error(ErrCodeConfig, err.Error(), nil)
			return err
		}
		path = cfg.Sources.KV.DB
	}
	f.VerboseLog("using value store %s", path)

	st, err := store.Open(path)
	if err != nil {
		_ = f.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open value store", err)
	}
	defer func() { _ = st.Close() }()

	return fn(st, f)
}
