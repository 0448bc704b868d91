package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/freightmind/extractd/internal/inference"
	"github.com/freightmind/extractd/internal/stage"
)

// SpeakersStage maps transcript speaker labels to conversation roles.
// Critical: rate attribution and the negotiation resolver are meaningless
// without knowing who the broker is.
type SpeakersStage struct {
	caller
}

func NewSpeakersStage(client inference.Client, cfg Config) *SpeakersStage {
	return &SpeakersStage{caller{client: client, maxTokens: cfg.MaxTokens}}
}

func (s *SpeakersStage) Name() string           { return stage.NameSpeakers }
func (s *SpeakersStage) Dependencies() []string { return []string{stage.NameClassification} }
func (s *SpeakersStage) Critical() bool         { return true }

func (s *SpeakersStage) Execute(ctx context.Context, rc *stage.Context) (stage.Output, error) {
	var dto struct {
		Roles      map[string]string     `json:"roles"`
		PerSpeaker stage.FieldConfidence `json:"per_speaker"`
		Confidence int                   `json:"confidence"`
	}

	prompt := transcriptPrompt(rc)
	if cls := rc.Classification(); cls != nil {
		prompt = fmt.Sprintf("Call classified as: %s (%s)\n\n%s", cls.CallType, cls.Purpose, prompt)
	}
	if err := s.complete(ctx, rc, speakersSystem, prompt, &dto); err != nil {
		return nil, err
	}

	roles := make(map[string]stage.SpeakerRole, len(dto.Roles))
	for label, role := range dto.Roles {
		roles[label] = parseRole(role)
	}
	// Every transcript speaker gets a label even when the model omits one.
	for _, label := range rc.Transcript().Speakers() {
		if _, ok := roles[label]; !ok {
			roles[label] = stage.RoleOther
		}
	}

	return &stage.SpeakerRoles{
		Roles:      roles,
		PerSpeaker: clampFields(dto.PerSpeaker),
		Confidence: clampScore(dto.Confidence),
	}, nil
}

func parseRole(s string) stage.SpeakerRole {
	switch stage.SpeakerRole(strings.ToLower(strings.TrimSpace(s))) {
	case stage.RoleBroker:
		return stage.RoleBroker
	case stage.RoleCarrier:
		return stage.RoleCarrier
	case stage.RoleShipper:
		return stage.RoleShipper
	case stage.RoleDriver:
		return stage.RoleDriver
	case stage.RoleDispatcher:
		return stage.RoleDispatcher
	default:
		return stage.RoleOther
	}
}

var _ stage.Stage = (*SpeakersStage)(nil)
