package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/configur8/internal/document"
	"github.com/roach88/configur8/internal/token"
)

// ScanEntry is one document entry that carries tokens.
type ScanEntry struct {
	Key    string   `json:"key"`
	Tokens []string `json:"tokens"`
}

// ScanResult lists the token-bearing entries of a document in key order.
type ScanResult struct {
	File    string      `json:"file"`
	Entries []ScanEntry `json:"entries"`
}

func (r ScanResult) String() string {
	if len(r.Entries) == 0 {
		return fmt.Sprintf("%s: no tokens", r.File)
	}
	var b strings.Builder
	for i, e := range r.Entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", e.Key, strings.Join(e.Tokens, ", "))
	}
	return b.String()
}

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <file>",
		Short: "List entries that carry reference tokens",
		Long: `Scan loads a document and lists every entry whose string value contains
one or more tokens, with the distinct tokens in the order they appear.
Nothing is resolved and no source is contacted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)

			result, err := scanFile(args[0])
			if err != nil {
				_ = formatter.Error(ErrCodeDocument, err.Error(), nil)
				return WrapExitError(ExitCommandError, "failed to load document", err)
			}
			return formatter.Success(result)
		},
	}
}

func scanFile(path string) (ScanResult, error) {
	tree, _, err := document.Load(path)
	if err != nil {
		return ScanResult{}, err
	}

	result := ScanResult{File: path, Entries: []ScanEntry{}}
	for _, e := range tree.Flatten() {
		s, ok := e.Value.(string)
		if !ok {
			continue
		}
		if toks := token.Scan(s); len(toks) > 0 {
			result.Entries = append(result.Entries, ScanEntry{Key: e.Key, Tokens: toks})
		}
	}
	return result, nil
}
