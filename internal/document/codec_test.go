package document

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func flatMap(tree *Tree) map[string]any {
	out := make(map[string]any)
	for _, e := range tree.Flatten() {
		out[e.Key] = e.Value
	}
	return out
}

func TestParseFormat(t *testing.T) {
	testCases := []struct {
		in   string
		want Format
	}{
		{"yaml", FormatYAML},
		{".yml", FormatYAML},
		{"JSON", FormatJSON},
		{"jsonc", FormatJSON},
		{"cue", FormatCUE},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseFormat(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := ParseFormat("toml")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestFormatFromPath_NoExtension(t *testing.T) {
	_, err := FormatFromPath("config")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "app.yaml", `
db:
  host: ssm:/prod/db/host
  port: 5432
list:
  - env:A
  - 3
`)
	tree, format, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, format)

	got := flatMap(tree)
	assert.Equal(t, "ssm:/prod/db/host", got["db.host"])
	assert.Equal(t, 5432, got["db.port"])
	assert.Equal(t, "env:A", got["list[0]"])
	assert.Equal(t, 3, got["list[1]"])
}

func TestLoad_JSONC(t *testing.T) {
	path := writeFile(t, "app.jsonc", `{
  // database settings
  "db": {"host": "kv:/db/host", "port": 5432,},
  /* feature flags */
  "flag": {"enabled": "env:FEATURE_X"},
}`)
	tree, format, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, format)

	got := flatMap(tree)
	assert.Equal(t, "kv:/db/host", got["db.host"])
	assert.Equal(t, int64(5432), got["db.port"])
	assert.Equal(t, "env:FEATURE_X", got["flag.enabled"])
}

func TestLoad_CUE(t *testing.T) {
	path := writeFile(t, "app.cue", `
defaultPort: 5432
db: {
	host: "ssm:/prod/db/host"
	port: defaultPort
}
`)
	tree, format, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, FormatCUE, format)

	got := flatMap(tree)
	assert.Equal(t, "ssm:/prod/db/host", got["db.host"])
	assert.Equal(t, int64(5432), got["db.port"])
}

func TestLoad_CUENotConcrete(t *testing.T) {
	path := writeFile(t, "app.cue", `host: string`)
	_, _, err := Load(path)
	require.Error(t, err)

	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, FormatCUE, le.Format)
	assert.Equal(t, path, le.Path)
}

func TestLoad_MissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParse_InvalidInput(t *testing.T) {
	testCases := []struct {
		name   string
		data   string
		format Format
	}{
		{"yaml list at top level", "- a\n- b\n", FormatYAML},
		{"broken json", `{"a":`, FormatJSON},
		{"cue syntax", `a: {`, FormatCUE},
		{"cue scalar", `"just a string"`, FormatCUE},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.data), tc.format)
			assert.Error(t, err)
		})
	}
}

func TestParse_EmptyDocuments(t *testing.T) {
	for _, format := range []Format{FormatYAML, FormatJSON} {
		tree, err := Parse(nil, format)
		require.NoError(t, err)
		assert.Empty(t, tree.Flatten())
	}
}

func TestEncode_YAMLRoundTrip(t *testing.T) {
	tree := sampleTree()
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, tree, FormatYAML))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, flatMap(tree), flatMap(NewTree(decoded)))
}

func TestEncode_JSON(t *testing.T) {
	tree := sampleTree()
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, tree, FormatJSON))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "ssm:/prod/db/host", decoded["db"].(map[string]any)["host"])
}

func TestEncode_Unsupported(t *testing.T) {
	err := Encode(&bytes.Buffer{}, sampleTree(), Format("toml"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
