package inference

import (
	"encoding/json"
	"strings"
)

// StripFences removes a markdown code fence wrapping, which models sometimes
// add despite instructions to return bare JSON.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// DecodeJSON strips fences and unmarshals the model output into v. A parse
// failure is a MalformedOutputError so the orchestrator retries it.
func DecodeJSON(raw string, v any) error {
	cleaned := StripFences(raw)
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return &MalformedOutputError{Raw: raw, Err: err}
	}
	return nil
}
