package transcript

import (
	"fmt"

	"github.com/tmc/langchaingo/textsplitter"
)

// Chunking defaults sized for a few thousand tokens of prompt context per call.
const (
	DefaultChunkSize    = 12000 // characters
	DefaultChunkOverlap = 600
)

// Chunks splits the flattened transcript into prompt-sized windows with
// overlap, so stages that quote the transcript verbatim stay inside the
// inference service's context budget. Splits prefer utterance boundaries.
func (t *Transcript) Chunks(chunkSize, overlap int) ([]string, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = DefaultChunkOverlap
	}

	text := t.Flatten()
	if len(text) <= chunkSize {
		return []string{text}, nil
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(overlap),
		textsplitter.WithSeparators([]string{"\n", ". ", " "}),
	)
	chunks, err := splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split transcript: %w", err)
	}
	return chunks, nil
}
