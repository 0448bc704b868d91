package stages

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/freightmind/extractd/internal/stage"
	"github.com/freightmind/extractd/internal/transcript"
)

// Rate figures voiced on a call. Dollar signs are the strong signal; bare
// numbers only count next to rate language so weights and MC numbers are
// not mistaken for money.
var (
	dollarAmountRe = regexp.MustCompile(`\$\s?((?:\d{1,3}(?:,\d{3})+|\d+)(?:\.\d{1,2})?)`)
	spokenAmountRe = regexp.MustCompile(`(?i)\b(\d{3,5}(?:\.\d{1,2})?)\s*(?:dollars|bucks)\b`)
	ratePhraseRe   = regexp.MustCompile(`(?i)\b(?:rate of|do it for|pay you|offer(?:ing)?(?: you)?|counter at)\s+\$?((?:\d{1,3}(?:,\d{3})+|\d{3,5})(?:\.\d{1,2})?)`)
)

// Plausible per-load linehaul range in USD. Figures outside it are noise.
const (
	minPlausibleRate = 100
	maxPlausibleRate = 100000
)

// Closing-language markers, matched case-insensitively as substrings.
// Rule priority is agreed, rejected, callback_requested, then pending as
// the safe default meaning "needs human review".
var (
	agreementMarkers = []string{
		"we have a deal",
		"it's a deal",
		"book it",
		"book me",
		"sounds good",
		"that works",
		"works for me",
		"let's do it",
		"lets do it",
		"i'll take it",
		"ill take it",
		"you got it",
		"we're good at",
		"send the rate con",
		"send me the rate con",
		"set it up",
		"agreed",
	}

	declineMarkers = []string{
		"have to pass",
		"i'll pass",
		"ill pass",
		"gonna pass",
		"going to pass",
		"can't do that",
		"cant do that",
		"can't make that work",
		"cant make that work",
		"doesn't work for me",
		"doesnt work for me",
		"not going to work",
		"won't work",
		"wont work",
		"no deal",
		"deal is off",
		"not interested",
	}

	callbackMarkers = []string{
		"call you back",
		"call him back",
		"get back to you",
		"check with my driver",
		"check with the driver",
		"check with dispatch",
		"check with my dispatcher",
		"ask my driver",
		"talk to my dispatcher",
		"talk to dispatch",
		"run it by",
		"circle back",
	}
)

// accessorialKeywords maps trigger phrases to canonical accessorial names.
var accessorialKeywords = map[string]string{
	"detention":            "detention",
	"lumper":               "lumper",
	"fuel surcharge":       "fuel_surcharge",
	"quick pay":            "quick_pay",
	"quickpay":             "quick_pay",
	"layover":              "layover",
	"truck order not used": "tonu",
	"tonu":                 "tonu",
	"tarp":                 "tarp",
}

// contingencyMarkers flag conditions a stated outcome hangs on.
var contingencyMarkers = []string{
	"if the driver",
	"if my driver",
	"if dispatch",
	"if the shipper",
	"subject to",
	"as long as",
	"assuming",
	"pending approval",
}

// NegotiationStage resolves broker and carrier dialogue into a terminal
// negotiation state. It is deliberately a deterministic rule engine over
// the transcript rather than another inference call: closing language is
// formulaic enough for patterns, and a wrong "agreed" from a creative model
// would flow straight into a rate confirmation.
type NegotiationStage struct{}

func NewNegotiationStage() *NegotiationStage {
	return &NegotiationStage{}
}

func (s *NegotiationStage) Name() string { return stage.NameNegotiation }

func (s *NegotiationStage) Dependencies() []string {
	return []string{stage.NameClassification, stage.NameSpeakers, stage.NameCarrierInfo}
}

func (s *NegotiationStage) Critical() bool { return false }

func (s *NegotiationStage) Execute(ctx context.Context, rc *stage.Context) (stage.Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	utterances := rc.Transcript().Utterances
	if len(utterances) == 0 {
		// Text-only transcript: resolve over the flattened text as a single
		// unattributed utterance. Positions stay unknown but closing
		// language still classifies.
		utterances = []transcript.Utterance{{Speaker: "unknown", Text: rc.Transcript().Text}}
	}

	roles := rc.SpeakerRoles()
	history := extractRateHistory(utterances, roles)

	out := &stage.NegotiationOutcome{
		Status:      stage.NegotiationPending,
		RateHistory: history,
	}
	s.resolvePositions(out, history)
	s.resolveStatus(out, utterances, history)
	s.attachAccessorials(out, utterances)
	s.attachContingencies(out, utterances)
	s.scoreConfidence(out, history)
	return out, nil
}

// extractRateHistory collects every plausible (speaker, rate) mention in
// chronological order.
func extractRateHistory(utterances []transcript.Utterance, roles *stage.SpeakerRoles) []stage.RateObservation {
	var history []stage.RateObservation
	for i, u := range utterances {
		for _, amount := range amountsIn(u.Text) {
			history = append(history, stage.RateObservation{
				Speaker:        u.Speaker,
				Role:           speakerRole(roles, u.Speaker),
				Amount:         amount,
				UtteranceIndex: i,
			})
		}
	}
	return history
}

// amountsIn returns the plausible rate figures in text, in order, without
// double-counting a figure matched by more than one pattern.
func amountsIn(text string) []float64 {
	type span struct{ start, end int }
	var taken []span
	var amounts []float64

	collect := func(re *regexp.Regexp) {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			s := span{m[2], m[3]}
			overlap := false
			for _, t := range taken {
				if s.start < t.end && t.start < s.end {
					overlap = true
					break
				}
			}
			if overlap {
				continue
			}
			amount, err := strconv.ParseFloat(strings.ReplaceAll(text[s.start:s.end], ",", ""), 64)
			if err != nil || amount < minPlausibleRate || amount > maxPlausibleRate {
				continue
			}
			taken = append(taken, s)
			amounts = append(amounts, amount)
		}
	}
	collect(dollarAmountRe)
	collect(spokenAmountRe)
	collect(ratePhraseRe)
	return amounts
}

// speakerRole resolves a role from the speakers stage, falling back to the
// raw label when the stage left the speaker unmapped.
func speakerRole(roles *stage.SpeakerRoles, speaker string) stage.SpeakerRole {
	if r := roles.RoleOf(speaker); r != stage.RoleOther {
		return r
	}
	label := strings.ToLower(speaker)
	switch {
	case strings.Contains(label, "broker"):
		return stage.RoleBroker
	case strings.Contains(label, "carrier"):
		return stage.RoleCarrier
	case strings.Contains(label, "driver"):
		return stage.RoleDriver
	case strings.Contains(label, "dispatch"):
		return stage.RoleDispatcher
	case strings.Contains(label, "shipper"):
		return stage.RoleShipper
	}
	return stage.RoleOther
}

// resolvePositions records the last figure attributed to each side.
func (s *NegotiationStage) resolvePositions(out *stage.NegotiationOutcome, history []stage.RateObservation) {
	for _, obs := range history {
		amount := obs.Amount
		switch obs.Role {
		case stage.RoleBroker:
			out.BrokerFinalPosition = &amount
		case stage.RoleCarrier, stage.RoleDriver, stage.RoleDispatcher:
			out.CarrierFinalPosition = &amount
		}
	}
}

// resolveStatus applies the classification rules in priority order.
func (s *NegotiationStage) resolveStatus(out *stage.NegotiationOutcome, utterances []transcript.Utterance, history []stage.RateObservation) {
	// Mutual restatement: both sides' final figures are the same number and
	// neither side voiced it while declining. A carrier repeating the
	// broker's figure in a refusal is not acceptance.
	if out.BrokerFinalPosition != nil && out.CarrierFinalPosition != nil &&
		*out.BrokerFinalPosition == *out.CarrierFinalPosition &&
		!finalMentionDeclined(utterances, history) {
		agreed := *out.BrokerFinalPosition
		out.Status = stage.NegotiationAgreed
		out.AgreedRate = &agreed
		return
	}

	// Agreement word following the final figure.
	if len(history) > 0 {
		lastRateIdx := history[len(history)-1].UtteranceIndex
		for i := lastRateIdx; i < len(utterances); i++ {
			text := strings.ToLower(utterances[i].Text)
			if containsAny(text, declineMarkers) {
				continue
			}
			if containsAny(text, agreementMarkers) {
				agreed := history[len(history)-1].Amount
				out.Status = stage.NegotiationAgreed
				out.AgreedRate = &agreed
				return
			}
		}
	}

	for _, u := range utterances {
		text := strings.ToLower(u.Text)
		// A decline paired with a promise to revisit is a callback, not a
		// rejection.
		if containsAny(text, declineMarkers) && !containsAny(text, callbackMarkers) {
			out.Status = stage.NegotiationRejected
			out.RejectionReason = strings.TrimSpace(u.Text)
			return
		}
	}

	for _, u := range utterances {
		if containsAny(strings.ToLower(u.Text), callbackMarkers) {
			out.Status = stage.NegotiationCallbackRequested
			out.CallbackConditions = strings.TrimSpace(u.Text)
			return
		}
	}

	out.Status = stage.NegotiationPending
	if len(history) > 0 {
		out.PendingReason = "rates were discussed but the call ended without closing language"
	} else {
		out.PendingReason = "no rate discussion detected on this call"
	}
}

func (s *NegotiationStage) attachAccessorials(out *stage.NegotiationOutcome, utterances []transcript.Utterance) {
	for _, u := range utterances {
		text := strings.ToLower(u.Text)
		for keyword, name := range accessorialKeywords {
			if !strings.Contains(text, keyword) {
				continue
			}
			if out.AccessorialsDiscussed == nil {
				out.AccessorialsDiscussed = make(map[string]string)
			}
			if _, seen := out.AccessorialsDiscussed[name]; !seen {
				out.AccessorialsDiscussed[name] = strings.TrimSpace(u.Text)
			}
		}
	}
}

func (s *NegotiationStage) attachContingencies(out *stage.NegotiationOutcome, utterances []transcript.Utterance) {
	seen := make(map[string]bool)
	for _, u := range utterances {
		if !containsAny(strings.ToLower(u.Text), contingencyMarkers) {
			continue
		}
		text := strings.TrimSpace(u.Text)
		if !seen[text] {
			seen[text] = true
			out.Contingencies = append(out.Contingencies, text)
		}
	}
}

// scoreConfidence assigns per-field sub-scores. Never blended: downstream
// consumers pick their own trust thresholds per field.
func (s *NegotiationStage) scoreConfidence(out *stage.NegotiationOutcome, history []stage.RateObservation) {
	mutual := out.Status == stage.NegotiationAgreed &&
		out.BrokerFinalPosition != nil && out.CarrierFinalPosition != nil &&
		*out.BrokerFinalPosition == *out.CarrierFinalPosition

	switch {
	case mutual:
		out.StatusConfidence = 95
		out.RateConfidence = 95
	case out.Status == stage.NegotiationAgreed:
		out.StatusConfidence = 85
		out.RateConfidence = 75
	case out.Status == stage.NegotiationRejected,
		out.Status == stage.NegotiationCallbackRequested:
		out.StatusConfidence = 85
	default:
		if len(history) > 0 {
			out.StatusConfidence = 40
		} else {
			out.StatusConfidence = 30
		}
	}
	if out.AgreedRate == nil && len(history) > 0 && out.RateConfidence == 0 {
		out.RateConfidence = 60
	}

	switch {
	case out.BrokerFinalPosition != nil && out.CarrierFinalPosition != nil:
		out.PositionConfidence = 85
	case out.BrokerFinalPosition != nil || out.CarrierFinalPosition != nil:
		out.PositionConfidence = 60
	}
}

// finalMentionDeclined reports whether the utterance carrying either side's
// final rate mention contains decline or callback language.
func finalMentionDeclined(utterances []transcript.Utterance, history []stage.RateObservation) bool {
	last := make(map[stage.SpeakerRole]int)
	for _, obs := range history {
		switch obs.Role {
		case stage.RoleBroker:
			last[stage.RoleBroker] = obs.UtteranceIndex
		case stage.RoleCarrier, stage.RoleDriver, stage.RoleDispatcher:
			last[stage.RoleCarrier] = obs.UtteranceIndex
		}
	}
	for _, idx := range last {
		text := strings.ToLower(utterances[idx].Text)
		if containsAny(text, declineMarkers) || containsAny(text, callbackMarkers) {
			return true
		}
	}
	return false
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

var _ stage.Stage = (*NegotiationStage)(nil)
