package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Format identifies a document encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatCUE  Format = "cue"
)

// ErrUnsupportedFormat is returned for unknown extensions and format names.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// LoadError wraps a failure to read or decode a document.
type LoadError struct {
	Path   string
	Format Format
	Err    error
}

func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("load %s document %s: %v", e.Format, e.Path, e.Err)
	}
	return fmt.Sprintf("load %s document: %v", e.Format, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// ParseFormat converts a user supplied name ("yaml", "yml", "json", "jsonc", "cue").
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "yaml", "yml":
		return FormatYAML, nil
	case "json", "jsonc":
		return FormatJSON, nil
	case "cue":
		return FormatCUE, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}

// FormatFromPath picks a format from the file extension.
func FormatFromPath(path string) (Format, error) {
	ext := filepath.Ext(path)
	if ext == "" {
		return "", fmt.Errorf("%w: %s has no extension", ErrUnsupportedFormat, path)
	}
	return ParseFormat(ext)
}

// Load reads and parses the document at path.
func Load(path string) (*Tree, Format, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, format, &LoadError{Path: path, Format: format, Err: err}
	}

	tree, err := parse(data, format, path)
	if err != nil {
		return nil, format, &LoadError{Path: path, Format: format, Err: err}
	}
	return tree, format, nil
}

// Parse decodes data in the given format. The top level must be a mapping.
func Parse(data []byte, format Format) (*Tree, error) {
	tree, err := parse(data, format, "")
	if err != nil {
		return nil, &LoadError{Format: format, Err: err}
	}
	return tree, nil
}

func parse(data []byte, format Format, filename string) (*Tree, error) {
	switch format {
	case FormatYAML:
		return parseYAML(data)
	case FormatJSON:
		return parseJSON(data)
	case FormatCUE:
		return parseCUE(data, filename)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func parseYAML(data []byte) (*Tree, error) {
	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return NewTree(root), nil
}

// parseJSON accepts JSON with comments and trailing commas.
func parseJSON(data []byte) (*Tree, error) {
	stripped := jsonc.ToJSON(data)
	if len(bytes.TrimSpace(stripped)) == 0 {
		return NewTree(nil), nil
	}

	dec := json.NewDecoder(bytes.NewReader(stripped))
	dec.UseNumber()
	var root map[string]any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return NewTree(root), nil
}

// parseCUE evaluates a CUE file and exports its concrete value.
func parseCUE(data []byte, filename string) (*Tree, error) {
	ctx := cuecontext.New()

	var opts []cue.BuildOption
	if filename != "" {
		opts = append(opts, cue.Filename(filename))
	}
	value := ctx.CompileBytes(data, opts...)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("compile cue: %w", err)
	}
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("cue value is not concrete: %w", err)
	}
	if value.Kind() != cue.StructKind {
		return nil, fmt.Errorf("cue top level must be a struct, got %s", value.Kind())
	}

	exported, err := value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("export cue: %w", err)
	}
	return parseJSON(exported)
}

// Encode writes the tree in the given format. CUE documents are written as
// YAML since the evaluated value no longer carries CUE structure.
func Encode(w io.Writer, tree *Tree, format Format) error {
	root := tree.Root()

	switch format {
	case FormatYAML, FormatCUE:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(root); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(root); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}
