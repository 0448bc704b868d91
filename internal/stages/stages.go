// Package stages contains the extraction stage implementations and the
// wiring that registers them as the default pipeline.
//
// Most stages call the inference service with a stage-specific prompt and
// decode a structured payload. The negotiation resolver and the validator
// are pure: they run entirely on upstream outputs and the transcript.
package stages

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/freightmind/extractd/internal/inference"
	"github.com/freightmind/extractd/internal/registry"
	"github.com/freightmind/extractd/internal/stage"
)

// Config tunes the stage implementations.
type Config struct {
	// MaxTokens bounds each inference response.
	MaxTokens int

	// ChunkSize and ChunkOverlap control transcript splitting for the
	// load-extraction stage, in characters.
	ChunkSize    int
	ChunkOverlap int

	// CarrierConfidence is the 0-100 identity threshold below which the
	// validator blocks rate-confirmation generation.
	CarrierConfidence int
}

// DefaultConfig returns the stage defaults used when a field is zero.
func DefaultConfig() Config {
	return Config{
		MaxTokens:         2048,
		ChunkSize:         12000,
		ChunkOverlap:      600,
		CarrierConfidence: 70,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxTokens == 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.ChunkOverlap == 0 {
		c.ChunkOverlap = d.ChunkOverlap
	}
	if c.CarrierConfidence == 0 {
		c.CarrierConfidence = d.CarrierConfidence
	}
	return c
}

// Register adds the full default pipeline to r.
func Register(r *registry.Registry, client inference.Client, cfg Config) error {
	cfg = cfg.withDefaults()

	all := []stage.Stage{
		NewClassificationStage(client, cfg),
		NewSpeakersStage(client, cfg),
		NewLoadsStage(client, cfg),
		NewRatesStage(client, cfg),
		NewCarrierInfoStage(client, cfg),
		NewShipperInfoStage(client, cfg),
		NewNegotiationStage(),
		NewActionItemsStage(client, cfg),
		NewValidationStage(cfg.CarrierConfidence),
	}
	for _, s := range all {
		if err := r.Register(s); err != nil {
			return fmt.Errorf("registering stage %q: %w", s.Name(), err)
		}
	}
	return nil
}

// NewRegistry builds a registry holding the default pipeline and resolves
// its execution order, surfacing configuration errors at startup.
func NewRegistry(client inference.Client, cfg Config) (*registry.Registry, error) {
	r := registry.New()
	if err := Register(r, client, cfg); err != nil {
		return nil, err
	}
	if _, err := r.ResolveOrder(); err != nil {
		return nil, err
	}
	return r, nil
}

// caller wraps the inference client with metering and decoding shared by
// every inference-backed stage.
type caller struct {
	client    inference.Client
	maxTokens int
}

// complete performs one metered inference call and decodes the JSON payload
// into v. Token usage and estimated cost are accumulated on the run context
// before decoding, so failed parses still count against the run.
func (c caller) complete(ctx context.Context, rc *stage.Context, system, prompt string, v any) error {
	resp, err := c.client.Complete(ctx, inference.Request{
		System:    system,
		Prompt:    prompt,
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return err
	}
	rc.AddUsage(resp.Usage.InputTokens, resp.Usage.OutputTokens,
		inference.EstimateCost(c.client.Model(), resp.Usage))
	return inference.DecodeJSON(resp.Text, v)
}

// transcriptPrompt renders the metadata hint plus the flattened transcript
// as the user prompt shared by most stages.
func transcriptPrompt(rc *stage.Context) string {
	meta := rc.Metadata()
	var b strings.Builder
	fmt.Fprintf(&b, "Call type hint: %s\n", meta.CallType)
	if !meta.CallDate.IsZero() {
		fmt.Fprintf(&b, "Call date: %s\n", meta.CallDate.Format(time.DateOnly))
	}
	b.WriteString("\nTranscript:\n")
	b.WriteString(rc.Transcript().Flatten())
	return b.String()
}

// clampScore bounds a model-reported confidence to the 0-100 scale.
func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func clampFields(f stage.FieldConfidence) stage.FieldConfidence {
	for k, v := range f {
		f[k] = clampScore(v)
	}
	return f
}
