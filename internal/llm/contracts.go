package llm

import (
	"context"

	"github.com/formflow/formflow/internal/entity"
)

// ExtractRequest carries everything one extraction call needs. ImageWidth and
// ImageHeight are the pixel dimensions of the normalized PNG; the prompt
// states them so returned bounding boxes target the same coordinate system.
type ExtractRequest struct {
	ImagePath    string
	DocumentName string
	ImageWidth   int
	ImageHeight  int

	// SessionDir, when set, receives a session.json copy of the raw parsed
	// field array for later inspection.
	SessionDir string
}

// FieldExtractor is the interface the session controller depends on for
// locating fillable fields. The returned order is presentation order.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, req ExtractRequest) ([]entity.FieldDescriptor, []byte /*rawJSON*/, error)
}

// Conversationalist phrases questions for fields and judges user answers.
// Both operations are black-box model calls with no local fallback.
type Conversationalist interface {
	// PhraseQuestion turns the field into a short conversational question,
	// continuing in the language of the user's last input. Any non-empty
	// trimmed text is accepted.
	PhraseQuestion(ctx context.Context, field entity.FieldDescriptor, lastResponse string) (string, error)

	// JudgeAnswer evaluates the candidate answer for the field and returns
	// the model's structured verdict.
	JudgeAnswer(ctx context.Context, field entity.FieldDescriptor, answer, lastResponse string) (entity.AnswerJudgment, error)
}
