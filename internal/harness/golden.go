package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/mementer/internal/ir"
)

// RunWithGolden executes a scenario, fails t if any step or assertion fails,
// and compares the final snapshot against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the snapshot of an existing result against a golden
// file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := ir.MarshalCanonical(ir.Obj(
		ir.P("scenario", ir.String(name)),
		ir.P("replicas", result.Snapshot.canonical()),
	))
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
