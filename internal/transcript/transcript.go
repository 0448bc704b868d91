// Package transcript defines the immutable call-transcript input model:
// the utterance sequence produced by the transcription service, plus the
// run metadata supplied by the caller when extraction is triggered.
package transcript

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CallType classifies the kind of phone call being processed.
type CallType string

const (
	CallTypeShipper   CallType = "shipper"
	CallTypeCarrier   CallType = "carrier"
	CallTypeCheckCall CallType = "check_call"
	CallTypeUnknown   CallType = "unknown"
)

// ParseCallType maps a raw string onto the closed CallType set.
// Unrecognized values fall back to CallTypeUnknown rather than erroring,
// since the hint is advisory.
func ParseCallType(s string) CallType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "shipper":
		return CallTypeShipper
	case "carrier":
		return CallTypeCarrier
	case "check_call", "check-call", "checkcall":
		return CallTypeCheckCall
	default:
		return CallTypeUnknown
	}
}

// Utterance is a single speaker turn in the call.
type Utterance struct {
	Speaker    string  `json:"speaker"`
	Text       string  `json:"text"`
	StartMs    int64   `json:"start_ms"`
	EndMs      int64   `json:"end_ms"`
	Confidence float64 `json:"confidence"` // transcription confidence, 0..1
}

// Transcript is the full call transcript. It is never mutated after a run
// starts; stages share the same instance.
type Transcript struct {
	Text       string      `json:"text"`
	Utterances []Utterance `json:"utterances"`
}

// Flatten returns the transcript as "Speaker: text" lines. When the
// transcription service already supplied a flattened Text it is used as is.
func (t *Transcript) Flatten() string {
	if t.Text != "" {
		return t.Text
	}
	var sb strings.Builder
	for i, u := range t.Utterances {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(u.Speaker)
		sb.WriteString(": ")
		sb.WriteString(u.Text)
	}
	return sb.String()
}

// Speakers returns the distinct speaker labels in order of first appearance.
func (t *Transcript) Speakers() []string {
	seen := make(map[string]bool)
	var labels []string
	for _, u := range t.Utterances {
		if !seen[u.Speaker] {
			seen[u.Speaker] = true
			labels = append(labels, u.Speaker)
		}
	}
	return labels
}

// DurationMs returns the span between the first utterance start and the last
// utterance end. Zero when there are no utterances.
func (t *Transcript) DurationMs() int64 {
	if len(t.Utterances) == 0 {
		return 0
	}
	return t.Utterances[len(t.Utterances)-1].EndMs - t.Utterances[0].StartMs
}

// ParsePayload decodes the `{text, utterances[]}` payload handed over by the
// transcription collaborator.
func ParsePayload(data []byte) (*Transcript, error) {
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse transcript payload: %w", err)
	}
	if t.Text == "" && len(t.Utterances) == 0 {
		return nil, fmt.Errorf("transcript payload has neither text nor utterances")
	}
	for i, u := range t.Utterances {
		if u.Confidence < 0 || u.Confidence > 1 {
			return nil, fmt.Errorf("utterance %d: confidence %v out of range [0,1]", i, u.Confidence)
		}
	}
	return &t, nil
}

// RunMetadata identifies one extraction run. Supplied once at run start and
// never mutated.
type RunMetadata struct {
	CallID   string    `json:"call_id"`
	OrgID    string    `json:"org_id"`
	UserID   string    `json:"user_id"`
	CallType CallType  `json:"call_type"`
	CallDate time.Time `json:"call_date"`
}

// Validate checks that the metadata carries the identifiers the engine needs.
func (m RunMetadata) Validate() error {
	if m.CallID == "" {
		return fmt.Errorf("run metadata: call_id required")
	}
	if m.OrgID == "" {
		return fmt.Errorf("run metadata: org_id required")
	}
	if m.CallType == "" {
		return fmt.Errorf("run metadata: call_type required (use %q when unknown)", CallTypeUnknown)
	}
	return nil
}
