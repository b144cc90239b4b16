package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/configur8/internal/injector"
)

// Snapshot captures the deterministic outcome of a scenario execution.
// Fetch order across entries depends on scheduling, so only per-token
// fetch counts are recorded.
type Snapshot struct {
	ScenarioName string                 `json:"scenario_name"`
	PassID       string                 `json:"pass_id"`
	Document     map[string]any         `json:"document"`
	Replaced     []injector.Replacement `json:"replaced"`
	Unresolved   []injector.TokenRef    `json:"unresolved"`
	Failures     []FailureSnapshot      `json:"failures"`
	Fetches      map[string]int         `json:"fetches"`
}

// FailureSnapshot is the serialisable form of an entry failure.
type FailureSnapshot struct {
	Key   string `json:"key"`
	Token string `json:"token"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// NewSnapshot builds the snapshot for a result. Slices are never nil so
// empty outcomes encode as [].
func NewSnapshot(name string, r *Result) *Snapshot {
	s := &Snapshot{
		ScenarioName: name,
		PassID:       r.Report.PassID,
		Document:     r.After,
		Replaced:     append([]injector.Replacement{}, r.Report.Replaced...),
		Unresolved:   append([]injector.TokenRef{}, r.Report.Unresolved...),
		Failures:     []FailureSnapshot{},
		Fetches:      r.fetchCounts(),
	}
	for _, f := range r.Report.Failures {
		s.Failures = append(s.Failures, FailureSnapshot{
			Key:   f.Key,
			Token: f.Token,
			Stage: string(f.Stage),
			Error: f.Err.Error(),
		})
	}
	return s
}

// Marshal encodes the snapshot as indented JSON with sorted map keys and a
// trailing newline.
func (s *Snapshot) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario and compares the snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := NewSnapshot(scenarioName, result).Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
