package stage

import (
	"github.com/freightmind/extractd/internal/transcript"
)

// OutputKind tags the Output union.
type OutputKind string

const (
	KindClassification OutputKind = "classification"
	KindSpeakerRoles   OutputKind = "speaker_roles"
	KindLoadList       OutputKind = "load_list"
	KindRateList       OutputKind = "rate_list"
	KindCarrierInfo    OutputKind = "carrier_info"
	KindShipperInfo    OutputKind = "shipper_info"
	KindNegotiation    OutputKind = "negotiation"
	KindActionItems    OutputKind = "action_items"
	KindValidation     OutputKind = "validation"
)

// Output is the closed tagged union of stage results. Each variant carries a
// confidence score on the 0-100 scale, per-field where it matters.
type Output interface {
	Kind() OutputKind
}

// FieldConfidence maps field names to 0-100 confidence scores.
type FieldConfidence map[string]int

// Classification is the first-stage result: what kind of call this was.
type Classification struct {
	CallType   transcript.CallType `json:"call_type"`
	Purpose    string              `json:"purpose"`
	Summary    string              `json:"summary"`
	Confidence int                 `json:"confidence"`
}

func (*Classification) Kind() OutputKind { return KindClassification }

// SpeakerRole labels a call participant.
type SpeakerRole string

const (
	RoleBroker     SpeakerRole = "broker"
	RoleCarrier    SpeakerRole = "carrier"
	RoleShipper    SpeakerRole = "shipper"
	RoleDriver     SpeakerRole = "driver"
	RoleDispatcher SpeakerRole = "dispatcher"
	RoleOther      SpeakerRole = "other"
)

// SpeakerRoles maps transcript speaker labels to conversation roles.
type SpeakerRoles struct {
	Roles      map[string]SpeakerRole `json:"roles"`
	PerSpeaker FieldConfidence        `json:"per_speaker"`
	Confidence int                    `json:"confidence"`
}

func (*SpeakerRoles) Kind() OutputKind { return KindSpeakerRoles }

// RoleOf returns the role for a speaker label, RoleOther when unmapped.
func (s *SpeakerRoles) RoleOf(speaker string) SpeakerRole {
	if s == nil {
		return RoleOther
	}
	if r, ok := s.Roles[speaker]; ok {
		return r
	}
	return RoleOther
}

// Load is one freight load discussed on the call.
type Load struct {
	Origin         string          `json:"origin"`
	Destination    string          `json:"destination"`
	PickupWindow   string          `json:"pickup_window"`
	DeliveryWindow string          `json:"delivery_window"`
	Equipment      string          `json:"equipment"`
	WeightLbs      int             `json:"weight_lbs"`
	Commodity      string          `json:"commodity"`
	References     []string        `json:"references"`
	Fields         FieldConfidence `json:"fields,omitempty"`
	Confidence     int             `json:"confidence"`
}

// LoadList is every load extracted from the call.
type LoadList struct {
	Loads      []Load `json:"loads"`
	Confidence int    `json:"confidence"`
}

func (*LoadList) Kind() OutputKind { return KindLoadList }

// RateMention is one rate figure voiced on the call, with attribution.
type RateMention struct {
	Speaker        string      `json:"speaker"`
	Role           SpeakerRole `json:"role"`
	Amount         float64     `json:"amount"`
	Context        string      `json:"context"`
	UtteranceIndex int         `json:"utterance_index"`
}

// RateList is every rate figure discussed, in chronological order.
type RateList struct {
	Rates      []RateMention `json:"rates"`
	Confidence int           `json:"confidence"`
}

func (*RateList) Kind() OutputKind { return KindRateList }

// CarrierInfo is the carrier identity extracted from the call.
type CarrierInfo struct {
	Company     string          `json:"company"`
	MCNumber    string          `json:"mc_number"`
	DOTNumber   string          `json:"dot_number"`
	ContactName string          `json:"contact_name"`
	Phone       string          `json:"phone"`
	Email       string          `json:"email"`
	Equipment   []string        `json:"equipment"`
	Fields      FieldConfidence `json:"fields,omitempty"`
	Confidence  int             `json:"confidence"`
}

func (*CarrierInfo) Kind() OutputKind { return KindCarrierInfo }

// IdentityConfidence is the stronger of the MC-number and company-name
// field confidences; the validator gates rate confirmations on it.
func (c *CarrierInfo) IdentityConfidence() int {
	if c == nil {
		return 0
	}
	best := 0
	if c.MCNumber != "" {
		if v, ok := c.Fields["mc_number"]; ok && v > best {
			best = v
		} else if !ok && c.Confidence > best {
			best = c.Confidence
		}
	}
	if c.Company != "" {
		if v, ok := c.Fields["company"]; ok && v > best {
			best = v
		} else if !ok && c.Confidence > best {
			best = c.Confidence
		}
	}
	return best
}

// ShipperInfo is the shipper/customer identity extracted from the call.
type ShipperInfo struct {
	Company     string          `json:"company"`
	ContactName string          `json:"contact_name"`
	Facility    string          `json:"facility"`
	References  []string        `json:"references"`
	Fields      FieldConfidence `json:"fields,omitempty"`
	Confidence  int             `json:"confidence"`
}

func (*ShipperInfo) Kind() OutputKind { return KindShipperInfo }

// NegotiationStatus is the classified outcome of a rate discussion.
// All four labels are terminal for a run; pending means "needs human
// review", never an error.
type NegotiationStatus string

const (
	NegotiationPending           NegotiationStatus = "pending"
	NegotiationAgreed            NegotiationStatus = "agreed"
	NegotiationRejected          NegotiationStatus = "rejected"
	NegotiationCallbackRequested NegotiationStatus = "callback_requested"
)

// RateObservation is one (speaker, rate) point in the negotiation history.
type RateObservation struct {
	Speaker        string      `json:"speaker"`
	Role           SpeakerRole `json:"role"`
	Amount         float64     `json:"amount"`
	UtteranceIndex int         `json:"utterance_index"`
}

// NegotiationOutcome is the resolved negotiation state for the call.
// Confidence is tracked per field, never blended, so downstream consumers
// can apply their own trust thresholds.
type NegotiationOutcome struct {
	Status                NegotiationStatus `json:"status"`
	AgreedRate            *float64          `json:"agreed_rate,omitempty"`
	BrokerFinalPosition   *float64          `json:"broker_final_position,omitempty"`
	CarrierFinalPosition  *float64          `json:"carrier_final_position,omitempty"`
	RateHistory           []RateObservation `json:"rate_history"`
	AccessorialsDiscussed map[string]string `json:"accessorials_discussed,omitempty"`
	Contingencies         []string          `json:"contingencies,omitempty"`
	RejectionReason       string            `json:"rejection_reason,omitempty"`
	CallbackConditions    string            `json:"callback_conditions,omitempty"`
	PendingReason         string            `json:"pending_reason,omitempty"`
	StatusConfidence      int               `json:"status_confidence"`
	RateConfidence        int               `json:"rate_confidence"`
	PositionConfidence    int               `json:"position_confidence"`
}

func (*NegotiationOutcome) Kind() OutputKind { return KindNegotiation }

// ActionItem is a follow-up captured from the call.
type ActionItem struct {
	Description string `json:"description"`
	Owner       string `json:"owner"`
	Due         string `json:"due"`
	Confidence  int    `json:"confidence"`
}

// ActionItems is the follow-up list for the call.
type ActionItems struct {
	Items      []ActionItem `json:"items"`
	Confidence int          `json:"confidence"`
}

func (*ActionItems) Kind() OutputKind { return KindActionItems }

// Warning is one human-readable validation finding. Blocking warnings stop
// rate-confirmation generation.
type Warning struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Blocking bool   `json:"blocking"`
}

// ValidationReport is the final cross-check over all stage outputs.
type ValidationReport struct {
	Warnings              []Warning `json:"warnings"`
	RateConfirmationReady bool      `json:"rate_confirmation_ready"`
	Confidence            int       `json:"confidence"`
}

func (*ValidationReport) Kind() OutputKind { return KindValidation }

// HasBlocking reports whether any warning is blocking.
func (v *ValidationReport) HasBlocking() bool {
	for _, w := range v.Warnings {
		if w.Blocking {
			return true
		}
	}
	return false
}
