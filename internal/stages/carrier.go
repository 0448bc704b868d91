package stages

import (
	"context"
	"regexp"

	"github.com/freightmind/extractd/internal/inference"
	"github.com/freightmind/extractd/internal/stage"
)

// mcNumberRe matches the numeric part of a valid MC number.
var mcNumberRe = regexp.MustCompile(`^(?:MC-?)?(\d{4,8})$`)

// CarrierInfoStage extracts the carrier's identity. The MC number feeds the
// rate-confirmation gate, so an implausible one is dropped rather than
// passed through with the model's confidence attached.
type CarrierInfoStage struct {
	caller
}

func NewCarrierInfoStage(client inference.Client, cfg Config) *CarrierInfoStage {
	return &CarrierInfoStage{caller{client: client, maxTokens: cfg.MaxTokens}}
}

func (s *CarrierInfoStage) Name() string { return stage.NameCarrierInfo }

func (s *CarrierInfoStage) Dependencies() []string {
	return []string{stage.NameClassification, stage.NameSpeakers}
}

func (s *CarrierInfoStage) Critical() bool { return false }

func (s *CarrierInfoStage) Execute(ctx context.Context, rc *stage.Context) (stage.Output, error) {
	var info stage.CarrierInfo
	if err := s.complete(ctx, rc, carrierSystem, transcriptPrompt(rc), &info); err != nil {
		return nil, err
	}

	if info.MCNumber != "" {
		m := mcNumberRe.FindStringSubmatch(info.MCNumber)
		if m == nil {
			info.MCNumber = ""
			delete(info.Fields, "mc_number")
		} else {
			info.MCNumber = m[1]
		}
	}

	info.Confidence = clampScore(info.Confidence)
	info.Fields = clampFields(info.Fields)
	return &info, nil
}

var _ stage.Stage = (*CarrierInfoStage)(nil)
