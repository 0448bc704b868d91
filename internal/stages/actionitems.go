package stages

import (
	"context"

	"github.com/freightmind/extractd/internal/inference"
	"github.com/freightmind/extractd/internal/stage"
)

// ActionItemsStage captures follow-ups promised or requested on the call.
type ActionItemsStage struct {
	caller
}

func NewActionItemsStage(client inference.Client, cfg Config) *ActionItemsStage {
	return &ActionItemsStage{caller{client: client, maxTokens: cfg.MaxTokens}}
}

func (s *ActionItemsStage) Name() string           { return stage.NameActionItems }
func (s *ActionItemsStage) Dependencies() []string { return []string{stage.NameClassification} }
func (s *ActionItemsStage) Critical() bool         { return false }

func (s *ActionItemsStage) Execute(ctx context.Context, rc *stage.Context) (stage.Output, error) {
	var items stage.ActionItems
	if err := s.complete(ctx, rc, actionItemsSystem, transcriptPrompt(rc), &items); err != nil {
		return nil, err
	}
	items.Confidence = clampScore(items.Confidence)
	for i := range items.Items {
		items.Items[i].Confidence = clampScore(items.Items[i].Confidence)
	}
	return &items, nil
}

var _ stage.Stage = (*ActionItemsStage)(nil)
