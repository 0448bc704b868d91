package stages

import (
	"context"

	"github.com/freightmind/extractd/internal/inference"
	"github.com/freightmind/extractd/internal/stage"
	"github.com/freightmind/extractd/internal/transcript"
)

// ClassificationStage determines what kind of call the transcript records.
// It runs first, depends on nothing, and is critical: without a call type
// the rest of the pipeline has no footing.
type ClassificationStage struct {
	caller
}

func NewClassificationStage(client inference.Client, cfg Config) *ClassificationStage {
	return &ClassificationStage{caller{client: client, maxTokens: cfg.MaxTokens}}
}

func (s *ClassificationStage) Name() string           { return stage.NameClassification }
func (s *ClassificationStage) Dependencies() []string { return nil }
func (s *ClassificationStage) Critical() bool         { return true }

func (s *ClassificationStage) Execute(ctx context.Context, rc *stage.Context) (stage.Output, error) {
	var dto struct {
		CallType   string `json:"call_type"`
		Purpose    string `json:"purpose"`
		Summary    string `json:"summary"`
		Confidence int    `json:"confidence"`
	}
	if err := s.complete(ctx, rc, classificationSystem, transcriptPrompt(rc), &dto); err != nil {
		return nil, err
	}

	callType := transcript.ParseCallType(dto.CallType)
	if callType == transcript.CallTypeUnknown && rc.Metadata().CallType != transcript.CallTypeUnknown {
		// Fall back to the caller's hint rather than losing a label the
		// model could not settle on.
		callType = rc.Metadata().CallType
	}

	return &stage.Classification{
		CallType:   callType,
		Purpose:    dto.Purpose,
		Summary:    dto.Summary,
		Confidence: clampScore(dto.Confidence),
	}, nil
}

var _ stage.Stage = (*ClassificationStage)(nil)
