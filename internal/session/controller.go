// Package session implements the conversation lifecycle: start a session
// from an upload, serve the prompt for the field under the cursor, judge a
// reply, and advance. The cursor only moves forward, one field per accepted
// answer; skipping and back-navigation are not supported.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/formflow/formflow/constants"
	"github.com/formflow/formflow/internal/common"
	"github.com/formflow/formflow/internal/entity"
	"github.com/formflow/formflow/internal/llm"
	"github.com/formflow/formflow/internal/normalize"
	"github.com/formflow/formflow/internal/repository"
)

// Controller orchestrates the session lifecycle. All collaborators are
// injected so tests can substitute doubles for the external model.
type Controller struct {
	repo         repository.SessionRepository
	extractor    llm.FieldExtractor
	conversation llm.Conversationalist
	normalizer   *normalize.Normalizer
	uploadRoot   string
	log          *slog.Logger
}

func NewController(
	repo repository.SessionRepository,
	extractor llm.FieldExtractor,
	conversation llm.Conversationalist,
	normalizer *normalize.Normalizer,
	uploadRoot string,
	logger *slog.Logger,
) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		repo:         repo,
		extractor:    extractor,
		conversation: conversation,
		normalizer:   normalizer,
		uploadRoot:   uploadRoot,
		log:          logger,
	}
}

// PromptResult is what /form/next serves: either the done signal, or the
// current field with its phrased question.
type PromptResult struct {
	Done   bool
	Field  entity.FieldDescriptor
	Fields []entity.FieldDescriptor
	Prompt string
}

// RespondOutcome reports one turn of /form/respond. Exactly one of the
// Followup / advanced (Done or Next) / Invalid shapes is populated.
type RespondOutcome struct {
	Done     bool
	Next     bool
	Field    entity.FieldDescriptor
	Fields   []entity.FieldDescriptor
	Followup string
	Invalid  string
}

// Start creates a session from an upload: save the original, normalize it to
// one PNG, extract the fillable fields, persist the seeded session.
func (c *Controller) Start(ctx context.Context, filename string, upload io.Reader) (*entity.FormSession, error) {
	if _, ok := constants.AllowedExtensions[constants.NormalizeExt(filepath.Ext(filename))]; !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrUnsupportedFileType, filepath.Ext(filename))
	}

	sessionID := uuid.New().String()
	start := time.Now()
	c.log.Info("session.start", "session_id", sessionID, "filename", filename)

	sessionDir := c.SessionDir(sessionID)
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return nil, common.WrapError(err, "create session directory")
	}

	originalPath := filepath.Join(sessionDir, filepath.Base(filename))
	if err := saveUpload(originalPath, upload); err != nil {
		return nil, common.WrapError(err, "save upload")
	}

	norm, err := c.normalizer.Normalize(ctx, originalPath, sessionDir)
	if err != nil {
		return nil, err
	}

	fields, _, err := c.extractor.ExtractFields(ctx, llm.ExtractRequest{
		ImagePath:    norm.Path,
		DocumentName: filename,
		ImageWidth:   norm.Width,
		ImageHeight:  norm.Height,
		SessionDir:   sessionDir,
	})
	if err != nil {
		if errors.Is(err, common.ErrExtractionParse) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", common.ErrExtractionFailed, err)
	}

	now := time.Now().UTC()
	sess := &entity.FormSession{
		SessionID:    sessionID,
		Fields:       fields,
		CurrentIndex: 0,
		Answers:      map[string]string{},
		ImageWidth:   norm.Width,
		ImageHeight:  norm.Height,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := c.repo.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	c.log.Info("session.started",
		"session_id", sessionID,
		"field_count", len(fields),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return sess, nil
}

// NextPrompt serves the question for the field under the cursor. It is
// idempotent and never mutates session state; the model is not invoked once
// the session is complete.
func (c *Controller) NextPrompt(ctx context.Context, sessionID, lastResponse string) (*PromptResult, error) {
	sess, err := c.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Complete() {
		return &PromptResult{Done: true}, nil
	}

	field, err := sess.CurrentField()
	if err != nil {
		return nil, err
	}

	prompt, err := c.conversation.PhraseQuestion(ctx, field, lastResponse)
	if err != nil {
		return nil, err
	}

	return &PromptResult{
		Field:  field,
		Fields: sess.Fields,
		Prompt: prompt,
	}, nil
}

// Respond judges one user reply against the current field. Branching policy,
// in priority order: follow-up holds the cursor and re-prompts; a valid
// answer records and advances by exactly one; anything else holds the cursor
// and surfaces the reason. The advance is the single state-mutating
// transition in the controller.
func (c *Controller) Respond(ctx context.Context, sessionID, userInput, lastResponse string) (*RespondOutcome, error) {
	sess, err := c.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	field, err := sess.CurrentField()
	if err != nil {
		return nil, err
	}

	judgment, err := c.conversation.JudgeAnswer(ctx, field, userInput, lastResponse)
	if err != nil {
		return nil, err
	}

	outcome := &RespondOutcome{Field: field, Fields: sess.Fields}

	switch {
	case judgment.IsFollowup:
		outcome.Followup = judgment.FollowupPrompt
		c.log.Info("session.respond.followup", "session_id", sessionID, "inputfield", field.InputField)

	case judgment.IsValid:
		if err := c.repo.RecordAnswer(ctx, sessionID, field.InputField, judgment.Answer, sess.CurrentIndex); err != nil {
			return nil, err
		}
		if sess.CurrentIndex+1 >= len(sess.Fields) {
			outcome.Done = true
		} else {
			outcome.Next = true
			outcome.Field = sess.Fields[sess.CurrentIndex+1]
		}
		c.log.Info("session.respond.advance",
			"session_id", sessionID,
			"inputfield", field.InputField,
			"new_index", sess.CurrentIndex+1,
			"done", outcome.Done,
		)

	default:
		if judgment.InvalidReason != "" {
			outcome.Invalid = judgment.InvalidReason
		} else {
			outcome.Invalid = "Unknown error"
		}
		c.log.Info("session.respond.invalid", "session_id", sessionID, "inputfield", field.InputField)
	}

	return outcome, nil
}

// Restore returns a read-only snapshot for client-side resume.
func (c *Controller) Restore(ctx context.Context, sessionID string) (*entity.FormSession, error) {
	return c.repo.GetSession(ctx, sessionID)
}

// SessionDir is the private storage area owned by one session.
func (c *Controller) SessionDir(sessionID string) string {
	return filepath.Join(c.uploadRoot, sessionID)
}

// NormalizedImagePath locates the canonical raster served by /form/render.
func (c *Controller) NormalizedImagePath(sessionID string) string {
	return filepath.Join(c.SessionDir(sessionID), constants.NormalizedImageName)
}

func saveUpload(dest string, r io.Reader) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return err
	}
	return f.Sync()
}
