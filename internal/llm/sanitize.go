package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"strings"
)

// SanitizeJudgment normalizes a judgment object before strict validation:
// - Drops unknown keys (models occasionally add commentary fields)
// - Coerces explicit null strings to ""
// - Coerces "true"/"false" strings to booleans
// It never invents a missing attribute: an absent key stays absent and fails
// validation downstream.
func SanitizeJudgment(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	var dropped []string

	// Only keys the model actually sent are coerced; a wholly absent
	// attribute stays absent and fails the required-keys check downstream.
	stringKeys := []string{"answer", "invalid_reason", "followup_prompt"}
	for _, k := range stringKeys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case nil:
			m[k] = ""
		case string:
			m[k] = strings.TrimSpace(t)
		default:
			m[k] = ""
			dropped = append(dropped, k+"(type)")
		}
	}

	boolKeys := []string{"is_valid", "is_followup"}
	for _, k := range boolKeys {
		if v, ok := m[k].(string); ok {
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true":
				m[k] = true
			case "false":
				m[k] = false
			}
		}
	}

	allowed := map[string]struct{}{
		"answer": {}, "is_valid": {}, "invalid_reason": {},
		"is_followup": {}, "followup_prompt": {},
	}
	for k := range maps.Clone(m) {
		if _, ok := allowed[k]; !ok {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(dropped) > 0 {
		logger.Warn("llm.judge.sanitize", "dropped", dropped)
	}
	return out, dropped, nil
}
