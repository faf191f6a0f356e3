package trace

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures every skip and select.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// Enabled reports whether level records decisions.
func (l TraceLevel) Enabled() bool {
	return l == TraceLevelDecisions
}

// RunTrace collects decision records during one run.
type RunTrace struct {
	Level     TraceLevel       `json:"level"`
	Decisions []DecisionRecord `json:"decisions"`
}

// NewRunTrace creates a RunTrace ready for recording.
func NewRunTrace(level TraceLevel) *RunTrace {
	return &RunTrace{
		Level:     level,
		Decisions: make([]DecisionRecord, 0),
	}
}

// Record appends a decision record.
func (rt *RunTrace) Record(record DecisionRecord) {
	rt.Decisions = append(rt.Decisions, record)
}
