package stages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightmind/extractd/internal/inference"
	"github.com/freightmind/extractd/internal/stage"
	"github.com/freightmind/extractd/internal/transcript"
)

func testContext(t *testing.T, callType transcript.CallType) *stage.Context {
	t.Helper()

	tr := &transcript.Transcript{Utterances: []transcript.Utterance{
		{Speaker: "Mike", Text: "FreightMind, this is Mike.", Confidence: 0.95},
		{Speaker: "Dale", Text: "Hey, calling about the Dallas load.", Confidence: 0.92},
	}}
	tr.Text = tr.Flatten()

	names := []string{
		stage.NameClassification,
		stage.NameSpeakers,
		stage.NameLoads,
		stage.NameRates,
		stage.NameCarrierInfo,
		stage.NameShipperInfo,
		stage.NameNegotiation,
		stage.NameActionItems,
		stage.NameValidation,
	}
	return stage.NewContext(tr, transcript.RunMetadata{
		CallID: "call-1", OrgID: "org-1", UserID: "user-1", CallType: callType,
	}, names)
}

func TestClassificationStage(t *testing.T) {
	stub := inference.NewStubClient(nil).Respond("call classifier",
		`{"call_type": "carrier", "purpose": "rate negotiation", "summary": "Carrier called about the Dallas load.", "confidence": 120}`)
	rc := testContext(t, transcript.CallTypeUnknown)

	out, err := NewClassificationStage(stub, DefaultConfig()).Execute(context.Background(), rc)
	require.NoError(t, err)

	cls, ok := out.(*stage.Classification)
	require.True(t, ok)
	assert.Equal(t, transcript.CallTypeCarrier, cls.CallType)
	assert.Equal(t, "rate negotiation", cls.Purpose)
	assert.Equal(t, 100, cls.Confidence, "confidence clamped to scale")

	usage := rc.Usage()
	assert.Positive(t, usage.InputTokens, "inference usage accumulates on the run")
}

func TestClassificationStageFallsBackToHint(t *testing.T) {
	stub := inference.NewStubClient(nil).Respond("call classifier",
		`{"call_type": "sales", "confidence": 50}`)
	rc := testContext(t, transcript.CallTypeCheckCall)

	out, err := NewClassificationStage(stub, DefaultConfig()).Execute(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, transcript.CallTypeCheckCall, out.(*stage.Classification).CallType)
}

func TestSpeakersStageCoversAllSpeakers(t *testing.T) {
	stub := inference.NewStubClient(nil).Respond("speaker identifier",
		`{"roles": {"Mike": "broker"}, "per_speaker": {"Mike": 95}, "confidence": 80}`)
	rc := testContext(t, transcript.CallTypeCarrier)
	require.NoError(t, rc.SetOutput(stage.NameClassification,
		&stage.Classification{CallType: transcript.CallTypeCarrier, Confidence: 90}))

	out, err := NewSpeakersStage(stub, DefaultConfig()).Execute(context.Background(), rc)
	require.NoError(t, err)

	roles := out.(*stage.SpeakerRoles)
	assert.Equal(t, stage.RoleBroker, roles.RoleOf("Mike"))
	// Dale appeared in the transcript but not in the model output.
	assert.Equal(t, stage.RoleOther, roles.RoleOf("Dale"))
	assert.Contains(t, roles.Roles, "Dale")
}

func TestLoadsStageDeduplicates(t *testing.T) {
	stub := inference.NewStubClient(nil).Respond("load extractor",
		`{"loads": [
			{"origin": "Dallas, TX", "destination": "Atlanta, GA", "pickup_window": "Friday AM", "confidence": 85},
			{"origin": "dallas, tx", "destination": "Atlanta, GA", "pickup_window": "Friday AM", "confidence": 70}
		], "confidence": 85}`)
	rc := testContext(t, transcript.CallTypeCarrier)

	out, err := NewLoadsStage(stub, DefaultConfig()).Execute(context.Background(), rc)
	require.NoError(t, err)

	loads := out.(*stage.LoadList)
	require.Len(t, loads.Loads, 1, "case-insensitive lane duplicates merge")
	assert.Equal(t, "Dallas, TX", loads.Loads[0].Origin)
	assert.Equal(t, 85, loads.Confidence)
}

func TestCarrierInfoStageNormalizesMCNumber(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"prefixed", "MC-784512", "784512"},
		{"bare", "784512", "784512"},
		{"implausible dropped", "12", ""},
		{"garbage dropped", "unknown", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := inference.NewStubClient(nil).Respond("carrier identity",
				`{"company": "Dale Trucking", "mc_number": "`+tt.raw+`", "fields": {"mc_number": 90}, "confidence": 80}`)
			rc := testContext(t, transcript.CallTypeCarrier)

			out, err := NewCarrierInfoStage(stub, DefaultConfig()).Execute(context.Background(), rc)
			require.NoError(t, err)

			info := out.(*stage.CarrierInfo)
			assert.Equal(t, tt.want, info.MCNumber)
			if tt.want == "" {
				assert.NotContains(t, info.Fields, "mc_number")
			}
		})
	}
}

func TestRatesStageAttributesRoles(t *testing.T) {
	stub := inference.NewStubClient(nil).Respond("rate extractor",
		`{"rates": [
			{"speaker": "Dale", "amount": 2300, "utterance_index": 3},
			{"speaker": "Mike", "amount": 2000, "utterance_index": 1}
		], "confidence": 75}`)
	rc := testContext(t, transcript.CallTypeCarrier)
	require.NoError(t, rc.SetOutput(stage.NameClassification,
		&stage.Classification{CallType: transcript.CallTypeCarrier, Confidence: 90}))
	require.NoError(t, rc.SetOutput(stage.NameSpeakers, &stage.SpeakerRoles{
		Roles: map[string]stage.SpeakerRole{
			"Mike": stage.RoleBroker,
			"Dale": stage.RoleCarrier,
		},
		Confidence: 90,
	}))

	out, err := NewRatesStage(stub, DefaultConfig()).Execute(context.Background(), rc)
	require.NoError(t, err)

	rates := out.(*stage.RateList)
	require.Len(t, rates.Rates, 2)
	// Sorted chronologically regardless of model ordering.
	assert.Equal(t, 2000.0, rates.Rates[0].Amount)
	assert.Equal(t, stage.RoleBroker, rates.Rates[0].Role)
	assert.Equal(t, stage.RoleCarrier, rates.Rates[1].Role)
}

func TestMalformedOutputSurfacesTyped(t *testing.T) {
	stub := inference.NewStubClient(nil).Respond("call classifier", "I am not JSON")
	rc := testContext(t, transcript.CallTypeCarrier)

	_, err := NewClassificationStage(stub, DefaultConfig()).Execute(context.Background(), rc)
	require.Error(t, err)
	assert.True(t, inference.Retryable(err), "malformed output retries")
}

func TestNewRegistryOrdersPipeline(t *testing.T) {
	r, err := NewRegistry(inference.NewStubClient(nil), Config{})
	require.NoError(t, err)

	order, err := r.ResolveOrder()
	require.NoError(t, err)
	require.Len(t, order, 9)
	assert.Equal(t, stage.NameClassification, order[0])
	assert.Equal(t, stage.NameValidation, order[len(order)-1])

	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
	}
	for _, name := range order {
		s, ok := r.Get(name)
		require.True(t, ok)
		for _, dep := range s.Dependencies() {
			assert.Less(t, pos[dep], pos[name], "%s before %s", dep, name)
		}
	}
}
