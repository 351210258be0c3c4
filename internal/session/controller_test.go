package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formflow/formflow/internal/common"
	"github.com/formflow/formflow/internal/entity"
	"github.com/formflow/formflow/internal/llm"
	"github.com/formflow/formflow/internal/normalize"
)

// fakeRepo is an in-memory SessionRepository with the same CAS semantics as
// the real stores.
type fakeRepo struct {
	sessions map[string]*entity.FormSession
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{sessions: map[string]*entity.FormSession{}}
}

func (r *fakeRepo) CreateSession(_ context.Context, s *entity.FormSession) error {
	cp := *s
	r.sessions[s.SessionID] = &cp
	return nil
}

func (r *fakeRepo) GetSession(_ context.Context, sessionID string) (*entity.FormSession, error) {
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, common.ErrSessionNotFound
	}
	cp := *s
	cp.Answers = map[string]string{}
	for k, v := range s.Answers {
		cp.Answers[k] = v
	}
	return &cp, nil
}

func (r *fakeRepo) RecordAnswer(_ context.Context, sessionID, inputField, answer string, expectedIndex int) error {
	s, ok := r.sessions[sessionID]
	if !ok {
		return common.ErrSessionNotFound
	}
	if s.CurrentIndex != expectedIndex {
		return common.ErrCursorConflict
	}
	if s.Answers == nil {
		s.Answers = map[string]string{}
	}
	s.Answers[inputField] = answer
	s.CurrentIndex++
	return nil
}

func (r *fakeRepo) Ping(context.Context) error { return nil }
func (r *fakeRepo) Close() error               { return nil }

// stubConversation returns scripted judgments and counts question calls.
type stubConversation struct {
	judgment      entity.AnswerJudgment
	judgeErr      error
	questionCalls int
	judgeCalls    int
}

func (s *stubConversation) PhraseQuestion(_ context.Context, field entity.FieldDescriptor, _ string) (string, error) {
	s.questionCalls++
	return "What is your " + field.Label + "?", nil
}

func (s *stubConversation) JudgeAnswer(context.Context, entity.FieldDescriptor, string, string) (entity.AnswerJudgment, error) {
	s.judgeCalls++
	if s.judgeErr != nil {
		return entity.AnswerJudgment{}, s.judgeErr
	}
	return s.judgment, nil
}

type stubExtractor struct {
	fields []entity.FieldDescriptor
	err    error
}

func (s *stubExtractor) ExtractFields(context.Context, llm.ExtractRequest) ([]entity.FieldDescriptor, []byte, error) {
	return s.fields, nil, s.err
}

func testFields(names ...string) []entity.FieldDescriptor {
	fields := make([]entity.FieldDescriptor, 0, len(names))
	for i, n := range names {
		fields = append(fields, entity.FieldDescriptor{
			InputField:  n,
			Label:       n,
			BoundingBox: entity.BoundingBox{X: 10, Y: 10 + 40*i, Width: 200, Height: 30},
			Page:        1,
			FieldType:   "text",
			Confidence:  0.9,
		})
	}
	return fields
}

func seedSession(t *testing.T, repo *fakeRepo, names ...string) *entity.FormSession {
	t.Helper()
	sess := &entity.FormSession{
		SessionID:   "sess-1",
		Fields:      testFields(names...),
		Answers:     map[string]string{},
		ImageWidth:  800,
		ImageHeight: 1100,
	}
	require.NoError(t, repo.CreateSession(context.Background(), sess))
	return sess
}

func newTestController(t *testing.T, repo *fakeRepo, conv *stubConversation, ext *stubExtractor) *Controller {
	t.Helper()
	return NewController(repo, ext, conv, normalize.New(0, "", nil), t.TempDir(), nil)
}

func TestRespondValidAdvances(t *testing.T) {
	repo := newFakeRepo()
	seedSession(t, repo, "first_name")
	conv := &stubConversation{judgment: entity.AnswerJudgment{Answer: "Jane", IsValid: true}}
	ctrl := newTestController(t, repo, conv, &stubExtractor{})

	outcome, err := ctrl.Respond(context.Background(), "sess-1", "Jane", "")
	require.NoError(t, err)

	assert.True(t, outcome.Done)
	assert.False(t, outcome.Next)
	assert.Empty(t, outcome.Followup)
	assert.Empty(t, outcome.Invalid)

	stored := repo.sessions["sess-1"]
	assert.Equal(t, 1, stored.CurrentIndex)
	assert.Equal(t, map[string]string{"first_name": "Jane"}, stored.Answers)
}

func TestRespondValidReportsNextField(t *testing.T) {
	repo := newFakeRepo()
	seedSession(t, repo, "first_name", "last_name")
	conv := &stubConversation{judgment: entity.AnswerJudgment{Answer: "Jane", IsValid: true}}
	ctrl := newTestController(t, repo, conv, &stubExtractor{})

	outcome, err := ctrl.Respond(context.Background(), "sess-1", "Jane", "")
	require.NoError(t, err)

	assert.False(t, outcome.Done)
	assert.True(t, outcome.Next)
	assert.Equal(t, "last_name", outcome.Field.InputField)
	// Advancing must not phrase the next question; the client fetches it.
	assert.Equal(t, 0, conv.questionCalls)
}

func TestRespondInvalidHoldsCursor(t *testing.T) {
	repo := newFakeRepo()
	seedSession(t, repo, "first_name")
	conv := &stubConversation{judgment: entity.AnswerJudgment{
		Answer: "Blue", IsValid: false, InvalidReason: "not a name",
	}}
	ctrl := newTestController(t, repo, conv, &stubExtractor{})

	outcome, err := ctrl.Respond(context.Background(), "sess-1", "Blue", "")
	require.NoError(t, err)

	assert.Equal(t, "not a name", outcome.Invalid)
	assert.False(t, outcome.Done)
	assert.False(t, outcome.Next)

	stored := repo.sessions["sess-1"]
	assert.Equal(t, 0, stored.CurrentIndex)
	assert.Empty(t, stored.Answers)
}

func TestRespondInvalidWithoutReason(t *testing.T) {
	repo := newFakeRepo()
	seedSession(t, repo, "first_name")
	conv := &stubConversation{judgment: entity.AnswerJudgment{IsValid: false}}
	ctrl := newTestController(t, repo, conv, &stubExtractor{})

	outcome, err := ctrl.Respond(context.Background(), "sess-1", "??", "")
	require.NoError(t, err)
	assert.Equal(t, "Unknown error", outcome.Invalid)
}

func TestRespondFollowupHoldsCursor(t *testing.T) {
	repo := newFakeRepo()
	seedSession(t, repo, "first_name")
	conv := &stubConversation{judgment: entity.AnswerJudgment{
		IsValid: true, IsFollowup: true, FollowupPrompt: "Could you clarify?",
	}}
	ctrl := newTestController(t, repo, conv, &stubExtractor{})

	outcome, err := ctrl.Respond(context.Background(), "sess-1", "what?", "")
	require.NoError(t, err)

	// Follow-up wins over is_valid: hold the cursor, record nothing.
	assert.Equal(t, "Could you clarify?", outcome.Followup)
	assert.Equal(t, 0, repo.sessions["sess-1"].CurrentIndex)
	assert.Empty(t, repo.sessions["sess-1"].Answers)
}

func TestRespondAfterCompletion(t *testing.T) {
	repo := newFakeRepo()
	sess := seedSession(t, repo, "first_name")
	repo.sessions[sess.SessionID].CurrentIndex = 1

	conv := &stubConversation{}
	ctrl := newTestController(t, repo, conv, &stubExtractor{})

	_, err := ctrl.Respond(context.Background(), "sess-1", "again", "")
	assert.ErrorIs(t, err, common.ErrFieldIndexExhausted)
	assert.Equal(t, 0, conv.judgeCalls)
}

func TestRespondUnknownSession(t *testing.T) {
	ctrl := newTestController(t, newFakeRepo(), &stubConversation{}, &stubExtractor{})
	_, err := ctrl.Respond(context.Background(), "nope", "x", "")
	assert.ErrorIs(t, err, common.ErrSessionNotFound)
}

func TestRespondJudgmentErrorDoesNotAdvance(t *testing.T) {
	repo := newFakeRepo()
	seedSession(t, repo, "first_name")
	conv := &stubConversation{judgeErr: fmt.Errorf("%w: gibberish", common.ErrJudgmentParse)}
	ctrl := newTestController(t, repo, conv, &stubExtractor{})

	_, err := ctrl.Respond(context.Background(), "sess-1", "Jane", "")
	assert.ErrorIs(t, err, common.ErrJudgmentParse)
	assert.Equal(t, 0, repo.sessions["sess-1"].CurrentIndex)
}

func TestNextPromptServesCurrentField(t *testing.T) {
	repo := newFakeRepo()
	seedSession(t, repo, "first_name", "last_name")
	conv := &stubConversation{}
	ctrl := newTestController(t, repo, conv, &stubExtractor{})

	result, err := ctrl.NextPrompt(context.Background(), "sess-1", "")
	require.NoError(t, err)

	assert.False(t, result.Done)
	assert.Equal(t, "first_name", result.Field.InputField)
	assert.Equal(t, "What is your first_name?", result.Prompt)
	assert.Len(t, result.Fields, 2)
}

func TestNextPromptIsIdempotent(t *testing.T) {
	repo := newFakeRepo()
	seedSession(t, repo, "first_name")
	ctrl := newTestController(t, repo, &stubConversation{}, &stubExtractor{})

	first, err := ctrl.NextPrompt(context.Background(), "sess-1", "")
	require.NoError(t, err)
	second, err := ctrl.NextPrompt(context.Background(), "sess-1", "")
	require.NoError(t, err)

	assert.Equal(t, first.Field, second.Field)
	assert.Equal(t, 0, repo.sessions["sess-1"].CurrentIndex)
	assert.Empty(t, repo.sessions["sess-1"].Answers)
}

func TestNextPromptDoneSkipsModel(t *testing.T) {
	repo := newFakeRepo()
	sess := seedSession(t, repo, "first_name")
	repo.sessions[sess.SessionID].CurrentIndex = 1

	conv := &stubConversation{}
	ctrl := newTestController(t, repo, conv, &stubExtractor{})

	result, err := ctrl.NextPrompt(context.Background(), "sess-1", "")
	require.NoError(t, err)
	assert.True(t, result.Done)
	assert.Equal(t, 0, conv.questionCalls)
}

func TestStartRejectsUnsupportedExtension(t *testing.T) {
	ctrl := newTestController(t, newFakeRepo(), &stubConversation{}, &stubExtractor{})
	_, err := ctrl.Start(context.Background(), "resume.docx", os.Stdin)
	assert.ErrorIs(t, err, common.ErrUnsupportedFileType)
}

func TestStartSeedsSession(t *testing.T) {
	repo := newFakeRepo()
	ext := &stubExtractor{fields: testFields("first_name", "last_name")}
	root := t.TempDir()
	ctrl := NewController(repo, ext, &stubConversation{}, normalize.New(0, "", nil), root, nil)

	upload := encodeTestPNG(t, 640, 480)
	sess, err := ctrl.Start(context.Background(), "form.png", upload)
	require.NoError(t, err)

	assert.Equal(t, 0, sess.CurrentIndex)
	assert.Len(t, sess.Fields, 2)
	assert.Equal(t, 640, sess.ImageWidth)
	assert.Equal(t, 480, sess.ImageHeight)
	assert.Empty(t, sess.Answers)

	// Session directory holds the original upload and the canonical raster.
	assert.FileExists(t, filepath.Join(root, sess.SessionID, "form.png"))
	assert.FileExists(t, ctrl.NormalizedImagePath(sess.SessionID))

	stored, err := repo.GetSession(context.Background(), sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, sess.Fields, stored.Fields)
}

func TestStartWrapsExtractionFailure(t *testing.T) {
	ext := &stubExtractor{err: errors.New("model unreachable")}
	ctrl := NewController(newFakeRepo(), ext, &stubConversation{}, normalize.New(0, "", nil), t.TempDir(), nil)

	upload := encodeTestPNG(t, 100, 100)
	_, err := ctrl.Start(context.Background(), "form.png", upload)
	assert.ErrorIs(t, err, common.ErrExtractionFailed)
}

func TestStartPreservesParseError(t *testing.T) {
	ext := &stubExtractor{err: fmt.Errorf("%w: not an array", common.ErrExtractionParse)}
	ctrl := NewController(newFakeRepo(), ext, &stubConversation{}, normalize.New(0, "", nil), t.TempDir(), nil)

	upload := encodeTestPNG(t, 100, 100)
	_, err := ctrl.Start(context.Background(), "form.png", upload)
	assert.ErrorIs(t, err, common.ErrExtractionParse)
}

// Cursor bounds invariant across a full interview.
func TestCursorInvariantAcrossInterview(t *testing.T) {
	repo := newFakeRepo()
	sess := seedSession(t, repo, "a", "b", "c")
	conv := &stubConversation{judgment: entity.AnswerJudgment{Answer: "ok", IsValid: true}}
	ctrl := newTestController(t, repo, conv, &stubExtractor{})

	for i := 0; i < len(sess.Fields); i++ {
		stored := repo.sessions["sess-1"]
		assert.GreaterOrEqual(t, stored.CurrentIndex, 0)
		assert.LessOrEqual(t, stored.CurrentIndex, len(stored.Fields))

		outcome, err := ctrl.Respond(context.Background(), "sess-1", "ok", "")
		require.NoError(t, err)
		assert.Equal(t, i+1, repo.sessions["sess-1"].CurrentIndex)
		if i == len(sess.Fields)-1 {
			assert.True(t, outcome.Done)
		} else {
			assert.True(t, outcome.Next)
		}
	}

	// Every answered key sits below the cursor.
	stored := repo.sessions["sess-1"]
	assert.Len(t, stored.Answers, stored.CurrentIndex)
	for i := 0; i < stored.CurrentIndex; i++ {
		assert.Contains(t, stored.Answers, stored.Fields[i].InputField)
	}
}

func encodeTestPNG(t *testing.T, w, h int) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))))
	require.NoError(t, f.Close())

	rf, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rf.Close() })
	return rf
}
