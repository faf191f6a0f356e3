package trace

import (
	"testing"
)

func TestRunTrace_Record_AppendsRecord(t *testing.T) {
	// GIVEN a trace configured for decisions
	rt := NewRunTrace(TraceLevelDecisions)

	// WHEN a decision is recorded
	rt.Record(DecisionRecord{Index: 0, CandidateID: 4, Phase: "observation", Action: ActionSkip, Score: 6.3})

	// THEN the trace contains one record with correct data
	if len(rt.Decisions) != 1 {
		t.Fatalf("expected 1 decision, got %d", len(rt.Decisions))
	}
	if rt.Decisions[0].CandidateID != 4 {
		t.Errorf("expected candidate 4, got %d", rt.Decisions[0].CandidateID)
	}
}

func TestIsValidTraceLevel(t *testing.T) {
	for _, level := range []string{"", "none", "decisions"} {
		if !IsValidTraceLevel(level) {
			t.Errorf("expected %q to be valid", level)
		}
	}
	if IsValidTraceLevel("verbose") {
		t.Error("expected verbose to be invalid")
	}
	if TraceLevelNone.Enabled() || !TraceLevelDecisions.Enabled() {
		t.Error("only the decisions level records")
	}
}
