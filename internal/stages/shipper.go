package stages

import (
	"context"

	"github.com/freightmind/extractd/internal/inference"
	"github.com/freightmind/extractd/internal/stage"
)

// ShipperInfoStage extracts the shipper or customer identity.
type ShipperInfoStage struct {
	caller
}

func NewShipperInfoStage(client inference.Client, cfg Config) *ShipperInfoStage {
	return &ShipperInfoStage{caller{client: client, maxTokens: cfg.MaxTokens}}
}

func (s *ShipperInfoStage) Name() string { return stage.NameShipperInfo }

func (s *ShipperInfoStage) Dependencies() []string {
	return []string{stage.NameClassification, stage.NameSpeakers}
}

func (s *ShipperInfoStage) Critical() bool { return false }

func (s *ShipperInfoStage) Execute(ctx context.Context, rc *stage.Context) (stage.Output, error) {
	var info stage.ShipperInfo
	if err := s.complete(ctx, rc, shipperSystem, transcriptPrompt(rc), &info); err != nil {
		return nil, err
	}
	info.Confidence = clampScore(info.Confidence)
	info.Fields = clampFields(info.Fields)
	return &info, nil
}

var _ stage.Stage = (*ShipperInfoStage)(nil)
