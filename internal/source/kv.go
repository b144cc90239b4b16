package source

import (
	"context"
	"fmt"

	"github.com/roach88/configur8/internal/store"
)

// RecordGetter is the part of *store.Store the KV source needs.
type RecordGetter interface {
	Get(ctx context.Context, key string) (store.Record, bool, error)
}

// KV resolves tokens against the sqlite value store. The token path is the
// store key: kv:/prod/db/host.
type KV struct {
	prefix string
	store  RecordGetter
}

// NewKV creates a KV source backed by st.
func NewKV(prefix string, st RecordGetter) *KV {
	return &KV{prefix: prefix, store: st}
}

func (k *KV) Prefix() string { return k.prefix }

func (k *KV) Value(ctx context.Context, raw string) (string, bool, error) {
	key, err := pathOf(raw)
	if err != nil {
		return "", false, err
	}

	r, found, err := k.store.Get(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("kv source: %w", err)
	}
	return r.Value, found, nil
}
