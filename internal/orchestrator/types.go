package orchestrator

import (
	"time"

	"github.com/google/uuid"

	"github.com/freightmind/extractd/internal/stage"
)

// RunStatus is the terminal status of one extraction run.
type RunStatus string

const (
	// RunComplete means every stage produced an output.
	RunComplete RunStatus = "complete"

	// RunPartial means at least one best-effort stage failed; the result is
	// usable but needs review.
	RunPartial RunStatus = "partial"

	// RunFailed means a critical stage failed; partial outputs are kept for
	// diagnostics only.
	RunFailed RunStatus = "failed"
)

// StageStatus is the recorded outcome of a single stage.
type StageStatus string

const (
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped_dependency_failed"
)

// StageOutcome records how one stage terminated.
type StageOutcome struct {
	Stage    string        `json:"stage"`
	Status   StageStatus   `json:"status"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
	Err      string        `json:"error,omitempty"`
}

// ExtractionResult is the terminal artifact of a run. It is assembled by
// the engine once all reachable stages have terminated and is never
// persisted here; storage belongs to the caller.
type ExtractionResult struct {
	RunID    uuid.UUID `json:"run_id"`
	CallID   string    `json:"call_id"`
	Status   RunStatus `json:"status"`

	// Outputs holds one entry per stage that produced an output.
	Outputs map[string]stage.Output `json:"outputs"`

	// Outcomes holds one entry per registered stage, including skipped ones.
	Outcomes []StageOutcome `json:"outcomes"`

	Warnings                       []stage.Warning  `json:"warnings,omitempty"`
	ShouldGenerateRateConfirmation bool             `json:"should_generate_rate_confirmation"`
	Usage                          stage.TokenUsage `json:"usage"`
	StartedAt                      time.Time        `json:"started_at"`
	Duration                       time.Duration    `json:"duration"`
}

// Negotiation returns the negotiation outcome, nil when the stage did not
// complete.
func (r *ExtractionResult) Negotiation() *stage.NegotiationOutcome {
	out, ok := r.Outputs[stage.NameNegotiation]
	if !ok {
		return nil
	}
	v, _ := out.(*stage.NegotiationOutcome)
	return v
}

// Validation returns the validator's report, nil when the stage did not
// complete.
func (r *ExtractionResult) Validation() *stage.ValidationReport {
	out, ok := r.Outputs[stage.NameValidation]
	if !ok {
		return nil
	}
	v, _ := out.(*stage.ValidationReport)
	return v
}

// Outcome returns the recorded outcome for a stage name.
func (r *ExtractionResult) Outcome(name string) (StageOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.Stage == name {
			return o, true
		}
	}
	return StageOutcome{}, false
}
