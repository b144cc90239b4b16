package source

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/configur8/internal/store"
)

type countingSource struct {
	prefix string
	value  string
	found  bool
	err    error
	calls  atomic.Int32
}

func (c *countingSource) Prefix() string { return c.prefix }

func (c *countingSource) Value(context.Context, string) (string, bool, error) {
	c.calls.Add(1)
	return c.value, c.found, c.err
}

func TestRegistry_FindSource(t *testing.T) {
	ssm := NewStatic("ssm", nil)
	env := NewEnv("env", nil)
	reg, err := NewRegistry(ssm, env)
	require.NoError(t, err)

	got, ok := reg.FindSource("ssm:/prod/db/host")
	require.True(t, ok)
	assert.Same(t, ssm, got)

	got, ok = reg.FindSource("env:HOME@upper")
	require.True(t, ok)
	assert.Same(t, env, got)

	_, ok = reg.FindSource("vault:secret/x")
	assert.False(t, ok)

	_, ok = reg.FindSource("no-colon")
	assert.False(t, ok)

	assert.Equal(t, []string{"env", "ssm"}, reg.Prefixes())
}

func TestRegistry_DuplicatePrefix(t *testing.T) {
	_, err := NewRegistry(NewStatic("ssm", nil), NewStatic("ssm", nil))
	assert.ErrorIs(t, err, ErrDuplicatePrefix)
}

func TestRegistry_InvalidPrefix(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	for _, p := range []string{"", "a:b", "has space", "dots.bad"} {
		assert.ErrorIs(t, reg.Register(NewStatic(p, nil)), ErrInvalidPrefix, "prefix %q", p)
	}
}

func TestStatic_FullTokenBeatsPath(t *testing.T) {
	s := NewStatic("ssm", map[string]string{
		"ssm:/prod/db/host": "exact",
		"/prod/db/host":     "by-path",
		"/other":            "other",
	})
	ctx := context.Background()

	v, ok, err := s.Value(ctx, "ssm:/prod/db/host")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "exact", v)

	v, ok, err = s.Value(ctx, "ssm:/other@upper")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "other", v)

	_, ok, err = s.Value(ctx, "ssm:/missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStatic_Set(t *testing.T) {
	s := NewStatic("ref", nil)
	s.Set("a", "1")

	v, ok, err := s.Value(context.Background(), "ref:a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestEnv(t *testing.T) {
	env := NewEnv("env", func(name string) (string, bool) {
		if name == "FEATURE_X" {
			return "on", true
		}
		return "", false
	})
	ctx := context.Background()

	v, ok, err := env.Value(ctx, "env:FEATURE_X@upper")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "on", v)

	_, ok, err = env.Value(ctx, "env:MISSING")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnv_DefaultLookup(t *testing.T) {
	t.Setenv("CONFIGUR8_TEST_VAR", "from-env")

	v, ok, err := NewEnv("env", nil).Value(context.Background(), "env:CONFIGUR8_TEST_VAR")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "from-env", v)
}

func TestFile(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "secrets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "secrets", "db"), []byte("hunter2\n"), 0o600))

	f := NewFile("file", base)
	ctx := context.Background()

	v, ok, err := f.Value(ctx, "file:secrets/db")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hunter2", v)

	v, ok, err = f.Value(ctx, "file:/secrets/db")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hunter2", v, "leading slash stays inside the base directory")

	_, ok, err = f.Value(ctx, "file:secrets/missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFile_RejectsEscape(t *testing.T) {
	f := NewFile("file", t.TempDir())

	_, _, err := f.Value(context.Background(), "file:../../etc/passwd")
	assert.ErrorIs(t, err, ErrOutsideBaseDir)
}

func TestKV(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	_, err = st.Put(ctx, "/prod/db/host", "10.0.0.5")
	require.NoError(t, err)

	kv := NewKV("kv", st)

	v, ok, err := kv.Value(ctx, "kv:/prod/db/host")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.5", v)

	_, ok, err = kv.Value(ctx, "kv:/prod/db/port")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCached_CachesHitsOnly(t *testing.T) {
	ctx := context.Background()

	hit := &countingSource{prefix: "ssm", value: "v", found: true}
	c := NewCached(hit, time.Minute, nil)
	for i := 0; i < 3; i++ {
		v, ok, err := c.Value(ctx, "ssm:/a")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "v", v)
	}
	assert.Equal(t, int32(1), hit.calls.Load())
	assert.Equal(t, "ssm", c.Prefix())

	c.Flush()
	_, _, _ = c.Value(ctx, "ssm:/a")
	assert.Equal(t, int32(2), hit.calls.Load())

	miss := &countingSource{prefix: "ssm"}
	cm := NewCached(miss, time.Minute, nil)
	_, _, _ = cm.Value(ctx, "ssm:/a")
	_, _, _ = cm.Value(ctx, "ssm:/a")
	assert.Equal(t, int32(2), miss.calls.Load())

	failing := &countingSource{prefix: "ssm", err: errors.New("boom")}
	cf := NewCached(failing, 0, nil)
	_, _, err := cf.Value(ctx, "ssm:/a")
	assert.Error(t, err)
	_, _, _ = cf.Value(ctx, "ssm:/a")
	assert.Equal(t, int32(2), failing.calls.Load())
}

func TestCached_LogsHitsOnInjectedLogger(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})).
		With("logger", "configur8.cache")

	c := NewCached(&countingSource{prefix: "ssm", value: "v", found: true}, time.Minute, logger)
	_, _, err := c.Value(ctx, "ssm:/a")
	require.NoError(t, err)
	assert.Empty(t, buf.String())

	_, _, err = c.Value(ctx, "ssm:/a")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"msg":"cache hit"`)
	assert.Contains(t, buf.String(), `"logger":"configur8.cache"`)
	assert.Contains(t, buf.String(), `"token":"ssm:/a"`)
}

func TestSources_MalformedToken(t *testing.T) {
	ctx := context.Background()
	sources := []Source{
		NewStatic("x", nil),
		NewEnv("x", nil),
		NewFile("x", t.TempDir()),
	}
	for _, s := range sources {
		_, _, err := s.Value(ctx, "x:path@")
		assert.Error(t, err, "%T", s)
	}
}
