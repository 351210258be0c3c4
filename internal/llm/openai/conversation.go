package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/formflow/formflow/internal/common"
	"github.com/formflow/formflow/internal/entity"
	"github.com/formflow/formflow/internal/llm"
)

// PhraseQuestion implements llm.Conversationalist. The reply is free text;
// any non-empty trimmed content is accepted without structural validation.
func (c *Client) PhraseQuestion(ctx context.Context, field entity.FieldDescriptor, lastResponse string) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("llm.question.start",
		"req_id", rid, "model", c.cfg.Model, "inputfield", field.InputField)

	content, err := c.chat(ctx, []map[string]any{
		textMessage("system", buildQuestionPrompt(field, lastResponse)),
	})
	if err != nil {
		c.log.Error("llm.question.http_error",
			"req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", err
	}
	if content == "" {
		c.log.Error("llm.question.empty",
			"req_id", rid, "elapsed_ms", time.Since(start).Milliseconds())
		return "", fmt.Errorf("empty question for field %q", field.InputField)
	}

	c.log.Info("llm.question.ok",
		"req_id", rid, "question_len", len(content),
		"elapsed_ms", time.Since(start).Milliseconds())
	return content, nil
}

// JudgeAnswer implements llm.Conversationalist. The model must return a JSON
// object with exactly the five judgment attributes; after fence-stripping and
// a lenient sanitize pass, anything that still fails the judgment schema
// aborts with common.ErrJudgmentParse.
func (c *Client) JudgeAnswer(ctx context.Context, field entity.FieldDescriptor, answer, lastResponse string) (entity.AnswerJudgment, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("llm.judge.start",
		"req_id", rid, "model", c.cfg.Model, "inputfield", field.InputField, "answer_len", len(answer))

	content, err := c.chat(ctx, []map[string]any{
		textMessage("system", judgmentSystemPrompt),
		textMessage("user", buildJudgmentUserPrompt(field, answer, lastResponse)),
	})
	if err != nil {
		c.log.Error("llm.judge.http_error",
			"req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return entity.AnswerJudgment{}, err
	}

	payload, err := llm.ExtractJSONPayload(content)
	if err != nil {
		c.log.Error("llm.judge.payload_error",
			"req_id", rid, "error", err, "content_len", len(content),
			"elapsed_ms", time.Since(start).Milliseconds())
		return entity.AnswerJudgment{}, fmt.Errorf("%w: %v", common.ErrJudgmentParse, err)
	}

	cleaned, _, err := llm.SanitizeJudgment(payload, c.log)
	if err != nil {
		c.log.Error("llm.judge.sanitize_failed",
			"req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return entity.AnswerJudgment{}, fmt.Errorf("%w: %v", common.ErrJudgmentParse, err)
	}

	if err := llm.ValidateJSONAgainstSchema(llm.BuildJudgmentSchema(), cleaned); err != nil {
		c.log.Error("llm.judge.schema_validation_failed",
			"req_id", rid, "error", err, "content", string(cleaned),
			"elapsed_ms", time.Since(start).Milliseconds())
		return entity.AnswerJudgment{}, fmt.Errorf("%w: %v", common.ErrJudgmentParse, err)
	}

	var j entity.AnswerJudgment
	if err := json.Unmarshal(cleaned, &j); err != nil {
		return entity.AnswerJudgment{}, fmt.Errorf("%w: unmarshal judgment: %v", common.ErrJudgmentParse, err)
	}

	c.log.Info("llm.judge.ok",
		"req_id", rid,
		"is_valid", j.IsValid,
		"is_followup", j.IsFollowup,
		"elapsed_ms", time.Since(start).Milliseconds())
	return j, nil
}
