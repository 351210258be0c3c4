package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/formflow/formflow/internal/llm"
)

// chat sends one chat/completions request and returns the first choice's
// message content, trimmed.
func (c *Client) chat(ctx context.Context, messages []map[string]any) (string, error) {
	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": c.cfg.Temperature,
		"messages":    messages,
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := llm.SendJSON(ctx, c.http, endpoint, body, c.headers(), c.cfg.MaxRetries, c.log)
	if err != nil {
		return "", err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return "", fmt.Errorf("no choices in completion response")
	}
	return strings.TrimSpace(cc.Choices[0].Message.Content), nil
}

func textMessage(role, content string) map[string]any {
	return map[string]any{"role": role, "content": content}
}

func visionMessage(role, text, imageDataURL string) map[string]any {
	return map[string]any{
		"role": role,
		"content": []map[string]any{
			{"type": "text", "text": text},
			{"type": "image_url", "image_url": map[string]any{"url": imageDataURL}},
		},
	}
}
