package stages

import (
	"context"
	"sort"

	"github.com/freightmind/extractd/internal/inference"
	"github.com/freightmind/extractd/internal/stage"
)

// RatesStage extracts every dollar figure voiced on the call with speaker
// attribution. Roles come from the speakers stage rather than the model,
// which only sees raw labels.
type RatesStage struct {
	caller
}

func NewRatesStage(client inference.Client, cfg Config) *RatesStage {
	return &RatesStage{caller{client: client, maxTokens: cfg.MaxTokens}}
}

func (s *RatesStage) Name() string { return stage.NameRates }

func (s *RatesStage) Dependencies() []string {
	return []string{stage.NameClassification, stage.NameSpeakers}
}

func (s *RatesStage) Critical() bool { return false }

func (s *RatesStage) Execute(ctx context.Context, rc *stage.Context) (stage.Output, error) {
	var dto struct {
		Rates      []stage.RateMention `json:"rates"`
		Confidence int                 `json:"confidence"`
	}
	if err := s.complete(ctx, rc, ratesSystem, transcriptPrompt(rc), &dto); err != nil {
		return nil, err
	}

	roles := rc.SpeakerRoles()
	for i := range dto.Rates {
		dto.Rates[i].Role = roles.RoleOf(dto.Rates[i].Speaker)
	}
	sort.SliceStable(dto.Rates, func(i, j int) bool {
		return dto.Rates[i].UtteranceIndex < dto.Rates[j].UtteranceIndex
	})

	return &stage.RateList{
		Rates:      dto.Rates,
		Confidence: clampScore(dto.Confidence),
	}, nil
}

var _ stage.Stage = (*RatesStage)(nil)
