package solver

// Phase is a step of the round state machine.
type Phase int

const (
	PhaseStart Phase = iota
	PhaseExtracting
	PhaseDeriving
	PhaseSubmitting
	PhaseLoggingResult
	PhaseChaining
	PhaseDone
	PhaseFailed
)

var phaseNames = [...]string{
	PhaseStart:         "start",
	PhaseExtracting:    "extracting",
	PhaseDeriving:      "deriving",
	PhaseSubmitting:    "submitting",
	PhaseLoggingResult: "logging_result",
	PhaseChaining:      "chaining",
	PhaseDone:          "done",
	PhaseFailed:        "failed",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}
