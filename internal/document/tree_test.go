package document

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() *Tree {
	return NewTree(map[string]any{
		"db": map[string]any{
			"host": "ssm:/prod/db/host",
			"port": 5432,
		},
		"servers": []any{
			map[string]any{"name": "a"},
			map[string]any{"name": "b"},
		},
		"enabled": true,
	})
}

func TestFlatten_SortedKeysAndIndices(t *testing.T) {
	entries := sampleTree().Flatten()

	assert.Equal(t, []Entry{
		{Key: "db.host", Value: "ssm:/prod/db/host"},
		{Key: "db.port", Value: 5432},
		{Key: "enabled", Value: true},
		{Key: "servers[0].name", Value: "a"},
		{Key: "servers[1].name", Value: "b"},
	}, entries)
}

func TestFlatten_EmptyContainersHaveNoLeaves(t *testing.T) {
	tree := NewTree(map[string]any{"empty": map[string]any{}, "list": []any{}})
	assert.Empty(t, tree.Flatten())
}

func TestFlatten_NilRoot(t *testing.T) {
	assert.Empty(t, NewTree(nil).Flatten())
}

func TestUpdate_ScalarByFlattenedKey(t *testing.T) {
	tree := sampleTree()
	tree.Flatten()

	require.NoError(t, tree.Update("db.host", "10.0.0.5"))

	v, ok := tree.Get("db.host")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.5", v)
}

func TestUpdate_WithoutFlattenParsesKey(t *testing.T) {
	tree := sampleTree()

	require.NoError(t, tree.Update("servers[1].name", "c"))

	v, ok := tree.Get("servers[1].name")
	require.True(t, ok)
	assert.Equal(t, "c", v)
}

func TestUpdate_ListValueBecomesLeaves(t *testing.T) {
	tree := sampleTree()
	tree.Flatten()

	require.NoError(t, tree.Update("db.host", []string{"a", "b"}))

	keys := make(map[string]any)
	for _, e := range tree.Flatten() {
		keys[e.Key] = e.Value
	}
	assert.Equal(t, "a", keys["db.host[0]"])
	assert.Equal(t, "b", keys["db.host[1]"])
	assert.NotContains(t, keys, "db.host")
}

func TestUpdate_UnknownKey(t *testing.T) {
	testCases := []string{
		"db.missing",
		"nope.host",
		"servers[9].name",
		"servers.name",
		"db.host[0]",
		"",
		"a..b",
		"servers[x]",
	}

	for _, key := range testCases {
		t.Run(key, func(t *testing.T) {
			tree := sampleTree()
			err := tree.Update(key, "v")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrKeyNotFound)

			var ke *KeyError
			require.ErrorAs(t, err, &ke)
			assert.Equal(t, key, ke.Key)
		})
	}
}

func TestFlatten_QuotesAmbiguousFieldNames(t *testing.T) {
	tree := NewTree(map[string]any{
		"a.b": "x",
		"a":   map[string]any{"b": "y", "c[0]": "z"},
		"":    "empty",
	})

	entries := tree.Flatten()
	assert.Equal(t, []Entry{
		{Key: `[""]`, Value: "empty"},
		{Key: "a.b", Value: "y"},
		{Key: `a["c[0]"]`, Value: "z"},
		{Key: `["a.b"]`, Value: "x"},
	}, entries)

	seen := map[string]bool{}
	for _, e := range entries {
		assert.False(t, seen[e.Key], "duplicate key %s", e.Key)
		seen[e.Key] = true
	}

	require.NoError(t, tree.Update(`["a.b"]`, "X"))
	require.NoError(t, tree.Update("a.b", "Y"))

	root := tree.Root()
	assert.Equal(t, "X", root["a.b"])
	assert.Equal(t, "Y", root["a"].(map[string]any)["b"])
}

func TestUpdate_QuotedKeyWithoutFlatten(t *testing.T) {
	tree := NewTree(map[string]any{
		"svc": map[string]any{"api.example.com": []any{"h1", "h2"}},
	})

	require.NoError(t, tree.Update(`svc["api.example.com"][1]`, "H2"))
	v, ok := tree.Get(`svc["api.example.com"][1]`)
	require.True(t, ok)
	assert.Equal(t, "H2", v)

	for _, bad := range []string{`svc["api`, `svc["x"`, `svc.["x"]`, `svc["x"]y`, "svc."} {
		err := tree.Update(bad, "v")
		assert.ErrorIs(t, err, ErrKeyNotFound, bad)
	}
}

func TestUpdate_DoesNotTouchOtherKeys(t *testing.T) {
	tree := sampleTree()
	before := tree.Flatten()

	require.NoError(t, tree.Update("servers[0].name", "z"))

	after := tree.Flatten()
	for i := range before {
		if before[i].Key == "servers[0].name" {
			continue
		}
		assert.Equal(t, before[i], after[i])
	}
}

func TestUpdate_ConcurrentDistinctKeys(t *testing.T) {
	root := map[string]any{}
	for i := 0; i < 50; i++ {
		root[fmt.Sprintf("k%02d", i)] = "v"
	}
	tree := NewTree(root)
	entries := tree.Flatten()

	var wg sync.WaitGroup
	for _, e := range entries {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			assert.NoError(t, tree.Update(key, key+"-resolved"))
		}(e.Key)
	}
	wg.Wait()

	for _, e := range tree.Flatten() {
		assert.Equal(t, e.Key+"-resolved", e.Value)
	}
}

func TestRoot_IsDeepCopy(t *testing.T) {
	tree := sampleTree()
	root := tree.Root()
	root["db"].(map[string]any)["host"] = "mutated"

	v, _ := tree.Get("db.host")
	assert.Equal(t, "ssm:/prod/db/host", v)
}

func TestNewTree_Normalizes(t *testing.T) {
	tree := NewTree(map[string]any{
		"n":    json.Number("42"),
		"f":    json.Number("1.5"),
		"m":    map[any]any{1: "one"},
		"list": []string{"x"},
	})

	got := make(map[string]any)
	for _, e := range tree.Flatten() {
		got[e.Key] = e.Value
	}
	assert.Equal(t, int64(42), got["n"])
	assert.Equal(t, 1.5, got["f"])
	assert.Equal(t, "one", got["m.1"])
	assert.Equal(t, "x", got["list[0]"])
}
