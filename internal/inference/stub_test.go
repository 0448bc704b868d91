package inference

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubClientCannedResponses(t *testing.T) {
	stub := NewStubClient(nil).
		Respond("call classifier", `{"call_type": "carrier_negotiation"}`).
		Respond("speaker", `{"speakers": []}`)

	resp, err := stub.Complete(context.Background(), Request{
		System: "You are a call classifier for freight brokerage calls.",
		Prompt: "transcript",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"call_type": "carrier_negotiation"}`, resp.Text)
	assert.Positive(t, resp.Usage.InputTokens)

	// Unmatched prompts fall back to an empty object.
	resp, err = stub.Complete(context.Background(), Request{System: "something else", Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "{}", resp.Text)

	assert.Equal(t, 2, stub.Calls())
}

func TestStubClientResponder(t *testing.T) {
	boom := errors.New("provider down")
	stub := NewStubClient(func(req Request) (Response, error) {
		return Response{}, boom
	})

	_, err := stub.Complete(context.Background(), Request{Prompt: "x"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, stub.Calls())
}

func TestStubClientHonorsContext(t *testing.T) {
	stub := NewStubClient(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := stub.Complete(ctx, Request{Prompt: "x"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, stub.Calls())
}
