package stages

import (
	"context"
	"fmt"

	"github.com/freightmind/extractd/internal/stage"
)

// Validation warning codes. Blocking codes stop rate-confirmation
// generation; the rest surface as "needs review" downstream.
const (
	WarnAgreedWithoutRate      = "agreed_without_rate"
	WarnNegotiationWithoutLoad = "negotiation_without_load"
	WarnCarrierIdentityLow     = "carrier_identity_low"
	WarnCarrierIdentityMissing = "carrier_identity_missing"
	WarnClassificationLow      = "classification_low_confidence"
	WarnAgreedRateUnheard      = "agreed_rate_not_in_history"
	WarnTranscriptLowQuality   = "transcript_low_quality"
	WarnStageMissing           = "stage_output_missing"
)

// Transcript utterances below this ASR confidence are counted as low
// quality.
const lowUtteranceConfidence = 0.5

// ValidationStage runs last, depends on every other stage, and never calls
// the inference service. It cross-checks outputs for consistency and
// decides whether the run is clean enough to draft a rate confirmation.
type ValidationStage struct {
	carrierConfidence int
}

func NewValidationStage(carrierConfidence int) *ValidationStage {
	return &ValidationStage{carrierConfidence: carrierConfidence}
}

func (s *ValidationStage) Name() string { return stage.NameValidation }

func (s *ValidationStage) Dependencies() []string {
	return []string{
		stage.NameClassification,
		stage.NameSpeakers,
		stage.NameLoads,
		stage.NameRates,
		stage.NameCarrierInfo,
		stage.NameShipperInfo,
		stage.NameNegotiation,
		stage.NameActionItems,
	}
}

func (s *ValidationStage) Critical() bool { return true }

func (s *ValidationStage) Execute(ctx context.Context, rc *stage.Context) (stage.Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &stage.ValidationReport{}
	warn := func(code, msg string, blocking bool) {
		report.Warnings = append(report.Warnings, stage.Warning{
			Code: code, Message: msg, Blocking: blocking,
		})
	}

	for _, name := range s.Dependencies() {
		if rc.Absent(name) {
			warn(WarnStageMissing, fmt.Sprintf("stage %q produced no output", name), false)
		}
	}

	cls := rc.Classification()
	if cls != nil && cls.Confidence < 50 {
		warn(WarnClassificationLow,
			fmt.Sprintf("call classification confidence is %d", cls.Confidence), false)
	}

	neg := rc.Negotiation()
	carrier := rc.Carrier()
	loads := rc.Loads()

	if neg != nil {
		if neg.Status == stage.NegotiationAgreed && neg.AgreedRate == nil {
			warn(WarnAgreedWithoutRate,
				"negotiation resolved agreed but no agreed rate was captured", true)
		}
		if neg.AgreedRate != nil && !rateInHistory(neg) {
			warn(WarnAgreedRateUnheard,
				fmt.Sprintf("agreed rate %.2f does not appear in the rate history", *neg.AgreedRate), false)
		}
		if loads == nil || len(loads.Loads) == 0 {
			warn(WarnNegotiationWithoutLoad,
				"a negotiation outcome was resolved but no load was extracted", false)
		}
	}

	// Carrier identity only blocks when a rate confirmation is on the
	// table; a shipper call has no carrier to identify.
	agreed := neg != nil && neg.Status == stage.NegotiationAgreed
	identity := carrier.IdentityConfidence()
	switch {
	case carrier == nil || (carrier.Company == "" && carrier.MCNumber == ""):
		if agreed {
			warn(WarnCarrierIdentityMissing, "no carrier company or MC number was extracted", true)
		}
	case identity < s.carrierConfidence:
		warn(WarnCarrierIdentityLow,
			fmt.Sprintf("carrier identity confidence %d is below threshold %d", identity, s.carrierConfidence), agreed)
	}

	if low, total := lowQualityUtterances(rc); total > 0 && low*2 > total {
		warn(WarnTranscriptLowQuality,
			fmt.Sprintf("%d of %d utterances fall below transcription confidence %.1f", low, total, lowUtteranceConfidence), false)
	}

	report.RateConfirmationReady = agreed &&
		identity >= s.carrierConfidence &&
		!report.HasBlocking()
	report.Confidence = reportConfidence(report)
	return report, nil
}

// rateInHistory checks the agreed figure was actually voiced on the call.
func rateInHistory(neg *stage.NegotiationOutcome) bool {
	for _, obs := range neg.RateHistory {
		if obs.Amount == *neg.AgreedRate {
			return true
		}
	}
	return false
}

func lowQualityUtterances(rc *stage.Context) (low, total int) {
	for _, u := range rc.Transcript().Utterances {
		total++
		if u.Confidence < lowUtteranceConfidence {
			low++
		}
	}
	return low, total
}

// reportConfidence scores the report itself: start clean and subtract per
// warning, blocking ones weighing triple.
func reportConfidence(r *stage.ValidationReport) int {
	score := 100
	for _, w := range r.Warnings {
		if w.Blocking {
			score -= 30
		} else {
			score -= 10
		}
	}
	if score < 0 {
		score = 0
	}
	return score
}

var _ stage.Stage = (*ValidationStage)(nil)
