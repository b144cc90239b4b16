package config

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/configur8/internal/source"
	"github.com/roach88/configur8/internal/store"
)

// Sources is the set of value sources built from a Config.
type Sources struct {
	Registry *source.Registry

	// Store is the opened kv store, nil when the kv source is disabled.
	Store *store.Store
}

// Close releases the kv store if one was opened.
func (s *Sources) Close() error {
	if s.Store == nil {
		return nil
	}
	return s.Store.Close()
}

// BuildSources opens and registers every enabled source. With a positive
// cache TTL each source is wrapped in a source.Cached.
//
// lookupEnv backs the env source; nil uses os.LookupEnv. logger receives
// cache diagnostics; nil discards them.
func BuildSources(cfg *Config, lookupEnv func(string) (string, bool), logger *slog.Logger) (*Sources, error) {
	s := cfg.Sources
	var list []source.Source
	out := &Sources{}

	if s.Env.Enabled {
		list = append(list, source.NewEnv(s.Env.Prefix, lookupEnv))
	}
	if s.File.Enabled {
		list = append(list, source.NewFile(s.File.Prefix, s.File.BaseDir))
	}
	if s.KV.Enabled {
		st, err := store.Open(s.KV.DB)
		if err != nil {
			return nil, fmt.Errorf("open kv store %s: %w", s.KV.DB, err)
		}
		out.Store = st
		list = append(list, source.NewKV(s.KV.Prefix, st))
	}
	if s.Age.Enabled {
		ids, err := source.LoadIdentities(s.Age.IdentityFile)
		if err != nil {
			return nil, errors.Join(err, out.Close())
		}
		list = append(list, source.NewAge(s.Age.Prefix, s.Age.BaseDir, ids...))
	}
	if len(s.Static.Entries) > 0 {
		values := make(map[string]string, len(s.Static.Entries))
		for _, e := range s.Static.Entries {
			values[e.Token] = e.Value
		}
		list = append(list, source.NewStatic(s.Static.Prefix, values))
	}

	if s.CacheTTL > 0 {
		for i, src := range list {
			list[i] = source.NewCached(src, s.CacheTTL, logger)
		}
	}

	reg, err := source.NewRegistry(list...)
	if err != nil {
		return nil, errors.Join(err, out.Close())
	}
	out.Registry = reg
	return out, nil
}
