package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/configur8/internal/injector"
)

// Scenario defines one resolution pass and its expected outcome.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// PassID is the fixed pass ID. Defaults to "test-pass-default".
	PassID string `yaml:"pass_id,omitempty"`

	// MaxConcurrency bounds concurrent entries. Zero means unbounded.
	MaxConcurrency int `yaml:"max_concurrency,omitempty"`

	// Document is the tree the pass runs over.
	Document map[string]any `yaml:"document"`

	// Sources are recording sources registered for the pass.
	Sources []SourceSpec `yaml:"sources,omitempty"`

	// KV seeds an in-memory store served under the "kv" prefix.
	KV map[string]string `yaml:"kv,omitempty"`

	// Assertions validate the document, report and source calls.
	Assertions []Assertion `yaml:"assertions"`
}

// SourceSpec declares a recording source.
type SourceSpec struct {
	Prefix string `yaml:"prefix"`

	// Values maps full token strings to the value the source returns.
	Values map[string]string `yaml:"values,omitempty"`

	// Errors maps full token strings to an error message the source fails with.
	Errors map[string]string `yaml:"errors,omitempty"`
}

// Assertion validates one aspect of the pass outcome.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Key is the flattened document key (value, unchanged, update_count,
	// unresolved, failed).
	Key string `yaml:"key,omitempty"`

	// Expect is the expected entry value (value).
	Expect any `yaml:"expect,omitempty"`

	// Token is the token string (fetch_count, unresolved).
	Token string `yaml:"token,omitempty"`

	// Tokens is the expected relative fetch order (fetch_order).
	Tokens []string `yaml:"tokens,omitempty"`

	// Count is the expected number of calls (update_count, fetch_count).
	Count int `yaml:"count,omitempty"`

	// Stage is the expected failure stage (failed).
	Stage string `yaml:"stage,omitempty"`
}

// Assertion type constants.
const (
	AssertValue       = "value"
	AssertUnchanged   = "unchanged"
	AssertUpdateCount = "update_count"
	AssertFetchCount  = "fetch_count"
	AssertFetchOrder  = "fetch_order"
	AssertUnresolved  = "unresolved"
	AssertFailed      = "failed"
)

// KVPrefix is the prefix the scenario's kv store is registered under.
const KVPrefix = "kv"

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Document == nil {
		return fmt.Errorf("document is required")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency must be non-negative")
	}

	seen := map[string]bool{}
	if len(s.KV) > 0 {
		seen[KVPrefix] = true
	}
	for i, src := range s.Sources {
		if src.Prefix == "" {
			return fmt.Errorf("sources[%d]: prefix is required", i)
		}
		if seen[src.Prefix] {
			return fmt.Errorf("sources[%d]: prefix %q declared twice", i, src.Prefix)
		}
		seen[src.Prefix] = true
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertValue:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for value", index)
		}
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for value", index)
		}
	case AssertUnchanged:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for unchanged", index)
		}
	case AssertUpdateCount:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for update_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for update_count", index)
		}
	case AssertFetchCount:
		if a.Token == "" {
			return fmt.Errorf("assertions[%d]: token is required for fetch_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for fetch_count", index)
		}
	case AssertFetchOrder:
		if len(a.Tokens) < 2 {
			return fmt.Errorf("assertions[%d]: at least two tokens are required for fetch_order", index)
		}
	case AssertUnresolved:
		if a.Key == "" || a.Token == "" {
			return fmt.Errorf("assertions[%d]: key and token are required for unresolved", index)
		}
	case AssertFailed:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for failed", index)
		}
		switch injector.Stage(a.Stage) {
		case "", injector.StageParse, injector.StageFetch, injector.StageTransform, injector.StageUpdate:
		default:
			return fmt.Errorf("assertions[%d]: unknown stage %q", index, a.Stage)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
