package llm

// BuildFieldArraySchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map describing the field array the extraction model must return.
// It is embedded in the prompt and also used locally to validate the reply.
func BuildFieldArraySchema() map[string]any {
	return map[string]any{
		"type":  "array",
		"items": buildFieldSchema(),
	}
}

func buildFieldSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"inputfield":       map[string]any{"type": "string", "minLength": 1},
			"label":            map[string]any{"type": "string"},
			"normalized_label": map[string]any{"type": "string"},
			"bounding_box": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "integer"},
				"minItems": 4,
				"maxItems": 4,
			},
			"context":               map[string]any{"type": "string"},
			"page":                  map[string]any{"type": "integer", "minimum": 1},
			"document_name":         map[string]any{"type": "string"},
			"inputfield_type":       map[string]any{"type": "string", "minLength": 1},
			"inputfield_confidence": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		},
		"required": []string{"inputfield", "label", "bounding_box", "inputfield_type", "inputfield_confidence"},
	}
}

// BuildJudgmentSchema describes the answer-judgment object: exactly the five
// attributes the controller branches on, nothing else.
func BuildJudgmentSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"answer":          map[string]any{"type": "string"},
			"is_valid":        map[string]any{"type": "boolean"},
			"invalid_reason":  map[string]any{"type": "string"},
			"is_followup":     map[string]any{"type": "boolean"},
			"followup_prompt": map[string]any{"type": "string"},
		},
		"required": []string{"answer", "is_valid", "invalid_reason", "is_followup", "followup_prompt"},
	}
}
