// Package stage defines the contract every extraction stage implements, the
// closed set of stage output types, and the run-scoped Context stages share.
package stage

import "context"

// Stage is one unit of extraction logic with declared dependencies and a
// single output slot.
//
// Execute must be a pure function of the context's currently visible state:
// the only collaborator it may contact is the inference service, and all
// coordination with other stages goes through the Context.
type Stage interface {
	// Name returns the unique stage name.
	Name() string

	// Dependencies returns the names of stages whose output this stage reads.
	Dependencies() []string

	// Critical reports whether this stage's permanent failure aborts the run.
	// Best-effort stages degrade the run to partial instead.
	Critical() bool

	// Execute runs the stage against the shared context.
	Execute(ctx context.Context, rc *Context) (Output, error)
}

// Canonical stage names. The registry accepts any Stage, but the engine's
// default pipeline is built from these.
const (
	NameClassification = "classification"
	NameSpeakers       = "speakers"
	NameLoads          = "loads"
	NameRates          = "rates"
	NameCarrierInfo    = "carrier_info"
	NameShipperInfo    = "shipper_info"
	NameNegotiation    = "negotiation"
	NameActionItems    = "action_items"
	NameValidation     = "validation"
)
