// Package testutil provides shared test infrastructure for the simulator.
// It holds the golden run dataset and assertion helpers used across sim/
// test packages.
package testutil

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// GoldenDataset represents the structure of testdata/golden_runs.json.
type GoldenDataset struct {
	Tests []GoldenTestCase `json:"tests"`
}

// GoldenTestCase is one scripted run: a pool in presentation order and the
// actions applied to it.
type GoldenTestCase struct {
	Name     string     `json:"name"`
	Criteria []string   `json:"criteria"`
	Ratings  [][]int    `json:"ratings"` // per candidate, aligned with Criteria
	Actions  []string   `json:"actions"` // "advance" or "select"
	Want     GoldenWant `json:"want"`
}

// GoldenWant is the expected outcome of a golden run.
type GoldenWant struct {
	Threshold         int     `json:"threshold"`
	BestObservedScore float64 `json:"best_observed_score"`
	SelectedIndex     int     `json:"selected_index"` // -1 when the run ends without a selection
	Rank              int     `json:"rank"`
	TotalScore        int     `json:"total_score"`
	SuccessRate       float64 `json:"success_rate"`
}

// LoadGoldenDataset loads the golden dataset from the testdata directory.
// The path is resolved relative to this source file: sim/internal/testutil/ → testdata/.
func LoadGoldenDataset(t *testing.T) *GoldenDataset {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	path := filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "testdata", "golden_runs.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read golden dataset: %v", err)
	}

	var dataset GoldenDataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		t.Fatalf("Failed to parse golden dataset: %v", err)
	}

	return &dataset
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
