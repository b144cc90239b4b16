package source

import (
	"context"
	"os"
)

// Env resolves tokens against environment variables. The token path is the
// variable name: env:DATABASE_URL.
type Env struct {
	prefix string
	lookup func(string) (string, bool)
}

// NewEnv creates an Env source. A nil lookup uses os.LookupEnv.
func NewEnv(prefix string, lookup func(string) (string, bool)) *Env {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &Env{prefix: prefix, lookup: lookup}
}

func (e *Env) Prefix() string { return e.prefix }

func (e *Env) Value(_ context.Context, raw string) (string, bool, error) {
	name, err := pathOf(raw)
	if err != nil {
		return "", false, err
	}
	v, ok := e.lookup(name)
	return v, ok, nil
}
