package inference

import (
	"context"
	"strings"
	"sync"
)

// StubResponder computes a canned response for a request. Returning an error
// simulates a provider failure.
type StubResponder func(req Request) (Response, error)

// StubClient is a deterministic in-process Client for tests and the CLI's
// offline mode. Responses are matched by substring of the system prompt,
// falling back to an empty JSON object.
type StubClient struct {
	mu        sync.Mutex
	responder StubResponder
	byPrompt  map[string]string
	calls     int
}

// NewStubClient creates a stub. responder may be nil, in which case canned
// responses registered via Respond are used.
func NewStubClient(responder StubResponder) *StubClient {
	return &StubClient{
		responder: responder,
		byPrompt:  make(map[string]string),
	}
}

// Respond registers a canned text response for any request whose system
// prompt contains match.
func (s *StubClient) Respond(match, text string) *StubClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byPrompt[match] = text
	return s
}

// Calls returns how many times Complete was invoked.
func (s *StubClient) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Complete returns the registered response, metering a nominal token count.
func (s *StubClient) Complete(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	s.mu.Lock()
	s.calls++
	responder := s.responder
	var text string
	for match, canned := range s.byPrompt {
		if strings.Contains(req.System, match) {
			text = canned
			break
		}
	}
	s.mu.Unlock()

	if responder != nil {
		return responder(req)
	}
	if text == "" {
		text = "{}"
	}
	return Response{
		Text: text,
		Usage: Usage{
			InputTokens:  len(req.Prompt) / 4,
			OutputTokens: len(text) / 4,
		},
	}, nil
}

func (s *StubClient) Provider() string { return "stub" }
func (s *StubClient) Model() string    { return "stub" }

var _ Client = (*StubClient)(nil)
