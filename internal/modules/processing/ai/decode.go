package ai

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// summaryPayload is the only shape a provider may return.
type summaryPayload struct {
	Summary *string  `json:"summary"`
	Tags    []string `json:"tags"`
}

var (
	errNoJSONObject = errors.New("response contains no JSON object")
	errEmptySummary = errors.New("summary is empty")
	errMissingField = errors.New("summary field is missing")
)

// decodeSummary extracts {"summary","tags"} from raw model output. A single
// surrounding markdown fence is tolerated; anything else that is not exactly
// that object (unknown keys, trailing data, wrong types) is rejected.
func decodeSummary(raw string) (string, []string, error) {
	candidate := extractJSONObject(raw)
	if candidate == "" {
		return "", nil, errNoJSONObject
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(candidate)))
	dec.DisallowUnknownFields()
	var payload summaryPayload
	if err := dec.Decode(&payload); err != nil {
		return "", nil, fmt.Errorf("decode summary payload: %w", err)
	}
	if dec.More() {
		return "", nil, errors.New("unexpected data after summary payload")
	}
	if payload.Summary == nil {
		return "", nil, errMissingField
	}
	summary := strings.TrimSpace(*payload.Summary)
	if summary == "" {
		return "", nil, errEmptySummary
	}

	tags := make([]string, 0, len(payload.Tags))
	for _, t := range payload.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return summary, tags, nil
}

func extractJSONObject(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```JSON")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
		cleaned = strings.TrimSpace(cleaned)
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return ""
	}
	return cleaned[start : end+1]
}
