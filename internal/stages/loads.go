package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/freightmind/extractd/internal/inference"
	"github.com/freightmind/extractd/internal/stage"
)

// LoadsStage extracts the freight loads discussed on the call. Long
// transcripts are split into overlapping chunks and each chunk is extracted
// separately; duplicates introduced by the overlap are merged afterwards.
type LoadsStage struct {
	caller
	chunkSize    int
	chunkOverlap int
}

func NewLoadsStage(client inference.Client, cfg Config) *LoadsStage {
	return &LoadsStage{
		caller:       caller{client: client, maxTokens: cfg.MaxTokens},
		chunkSize:    cfg.ChunkSize,
		chunkOverlap: cfg.ChunkOverlap,
	}
}

func (s *LoadsStage) Name() string           { return stage.NameLoads }
func (s *LoadsStage) Dependencies() []string { return []string{stage.NameClassification} }
func (s *LoadsStage) Critical() bool         { return false }

func (s *LoadsStage) Execute(ctx context.Context, rc *stage.Context) (stage.Output, error) {
	chunks, err := rc.Transcript().Chunks(s.chunkSize, s.chunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("chunking transcript: %w", err)
	}

	result := &stage.LoadList{}
	seen := make(map[string]bool)

	for i, chunk := range chunks {
		var dto struct {
			Loads      []stage.Load `json:"loads"`
			Confidence int          `json:"confidence"`
		}
		prompt := chunk
		if len(chunks) > 1 {
			prompt = fmt.Sprintf("Transcript part %d of %d:\n%s", i+1, len(chunks), chunk)
		}
		if err := s.complete(ctx, rc, loadsSystem, prompt, &dto); err != nil {
			return nil, err
		}

		for _, load := range dto.Loads {
			key := loadKey(load)
			if seen[key] {
				continue
			}
			seen[key] = true
			load.Confidence = clampScore(load.Confidence)
			load.Fields = clampFields(load.Fields)
			result.Loads = append(result.Loads, load)
		}
		if c := clampScore(dto.Confidence); c > result.Confidence {
			result.Confidence = c
		}
	}

	return result, nil
}

// loadKey identifies a load across chunk overlaps by its lane and pickup.
func loadKey(l stage.Load) string {
	return strings.ToLower(strings.Join([]string{l.Origin, l.Destination, l.PickupWindow}, "|"))
}

var _ stage.Stage = (*LoadsStage)(nil)
