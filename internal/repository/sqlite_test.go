package repository

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formflow/formflow/internal/common"
	"github.com/formflow/formflow/internal/entity"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLite(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleSession(id string) *entity.FormSession {
	now := time.Now().UTC().Truncate(time.Second)
	return &entity.FormSession{
		SessionID: id,
		Fields: []entity.FieldDescriptor{
			{
				InputField:      "first_name",
				Label:           "First Name:",
				NormalizedLabel: "First Name",
				BoundingBox:     entity.BoundingBox{X: 120, Y: 430, Width: 200, Height: 30},
				Context:         "Please fill out the following personal information.",
				Page:            1,
				DocumentName:    "IRS Form 1040",
				FieldType:       "text",
				Confidence:      0.97,
			},
			{
				InputField:  "signature",
				Label:       "Signature",
				BoundingBox: entity.BoundingBox{X: 80, Y: 900, Width: 320, Height: 60},
				Page:        1,
				FieldType:   "signature",
				Confidence:  0.91,
			},
		},
		CurrentIndex: 0,
		Answers:      map[string]string{},
		ImageWidth:   2550,
		ImageHeight:  3300,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestSessionRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := sampleSession("round-trip")
	require.NoError(t, store.CreateSession(ctx, sess))

	got, err := store.GetSession(ctx, "round-trip")
	require.NoError(t, err)

	// Attribute-for-attribute identity for every descriptor.
	assert.Equal(t, sess.Fields, got.Fields)
	assert.Equal(t, sess.SessionID, got.SessionID)
	assert.Equal(t, sess.CurrentIndex, got.CurrentIndex)
	assert.Equal(t, sess.Answers, got.Answers)
	assert.Equal(t, sess.ImageWidth, got.ImageWidth)
	assert.Equal(t, sess.ImageHeight, got.ImageHeight)
	assert.Equal(t, sess.CreatedAt.Unix(), got.CreatedAt.Unix())
}

func TestGetSessionNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrSessionNotFound)
}

func TestRecordAnswerAdvancesCursor(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateSession(ctx, sampleSession("advance")))

	require.NoError(t, store.RecordAnswer(ctx, "advance", "first_name", "Jane", 0))

	got, err := store.GetSession(ctx, "advance")
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentIndex)
	assert.Equal(t, map[string]string{"first_name": "Jane"}, got.Answers)

	require.NoError(t, store.RecordAnswer(ctx, "advance", "signature", "JD", 1))
	got, err = store.GetSession(ctx, "advance")
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentIndex)
	assert.Len(t, got.Answers, 2)
}

func TestRecordAnswerCursorConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateSession(ctx, sampleSession("conflict")))

	require.NoError(t, store.RecordAnswer(ctx, "conflict", "first_name", "Jane", 0))

	// A concurrent caller still holding the old cursor loses cleanly.
	err := store.RecordAnswer(ctx, "conflict", "first_name", "Janet", 0)
	assert.ErrorIs(t, err, common.ErrCursorConflict)

	got, err := store.GetSession(ctx, "conflict")
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentIndex)
	assert.Equal(t, "Jane", got.Answers["first_name"])
}

func TestRecordAnswerUnknownSession(t *testing.T) {
	store := newTestStore(t)
	err := store.RecordAnswer(context.Background(), "missing", "f", "v", 0)
	assert.ErrorIs(t, err, common.ErrSessionNotFound)
}

func TestCreateSessionDuplicateID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateSession(ctx, sampleSession("dup")))
	assert.Error(t, store.CreateSession(ctx, sampleSession("dup")))
}

func TestSQLitePragmasApplied(t *testing.T) {
	store := newTestStore(t)

	var mode string
	require.NoError(t, store.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", strings.ToLower(mode))

	var busy int
	require.NoError(t, store.db.QueryRow("PRAGMA busy_timeout").Scan(&busy))
	assert.Equal(t, 5000, busy)
}
