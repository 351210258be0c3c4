package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/formflow/formflow/internal/common"
	"github.com/formflow/formflow/internal/entity"
)

// SQLiteStore implements SessionRepository using SQLite. It is the default
// store for single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (and if needed creates) a SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode for concurrent readers while one writer advances a cursor.
	// modernc.org/sqlite takes pragmas via _pragma=name(value), not the
	// mattn-style _journal/_busy_timeout keys.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS form_sessions (
		session_id TEXT PRIMARY KEY,
		fields_json TEXT NOT NULL,
		current_index INTEGER NOT NULL DEFAULT 0,
		answers_json TEXT NOT NULL DEFAULT '{}',
		image_width INTEGER NOT NULL DEFAULT 0,
		image_height INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSession(ctx context.Context, sess *entity.FormSession) error {
	fieldsJSON, answersJSON, err := marshalSession(sess)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO form_sessions (session_id, fields_json, current_index, answers_json, image_width, image_height, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		sess.SessionID, fieldsJSON, sess.CurrentIndex, answersJSON,
		sess.ImageWidth, sess.ImageHeight,
		sess.CreatedAt.Unix(), sess.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*entity.FormSession, error) {
	query := `
		SELECT session_id, fields_json, current_index, answers_json,
		       image_width, image_height, created_at, updated_at
		FROM form_sessions WHERE session_id = ?`

	row := s.db.QueryRowContext(ctx, query, sessionID)

	var (
		sess                 entity.FormSession
		fieldsJSON           string
		answersJSON          string
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&sess.SessionID, &fieldsJSON, &sess.CurrentIndex, &answersJSON,
		&sess.ImageWidth, &sess.ImageHeight, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	if err := unmarshalSession(&sess, fieldsJSON, answersJSON); err != nil {
		return nil, err
	}
	sess.CreatedAt = time.Unix(createdAt, 0).UTC()
	sess.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &sess, nil
}

// RecordAnswer performs the read-modify-write inside one transaction, with
// the cursor equality re-checked by the UPDATE itself. A concurrent advance
// loses the race cleanly instead of double-advancing.
func (s *SQLiteStore) RecordAnswer(ctx context.Context, sessionID, inputField, answer string, expectedIndex int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var answersJSON string
	var currentIndex int
	row := tx.QueryRowContext(ctx,
		`SELECT answers_json, current_index FROM form_sessions WHERE session_id = ?`, sessionID)
	if err := row.Scan(&answersJSON, &currentIndex); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrSessionNotFound
		}
		return fmt.Errorf("scan answers: %w", err)
	}
	if currentIndex != expectedIndex {
		return common.ErrCursorConflict
	}

	answers := map[string]string{}
	if err := json.Unmarshal([]byte(answersJSON), &answers); err != nil {
		return fmt.Errorf("decode answers: %w", err)
	}
	answers[inputField] = answer
	updated, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE form_sessions
		 SET answers_json = ?, current_index = current_index + 1, updated_at = ?
		 WHERE session_id = ? AND current_index = ?`,
		string(updated), time.Now().Unix(), sessionID, expectedIndex,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return common.ErrCursorConflict
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func marshalSession(sess *entity.FormSession) (fieldsJSON, answersJSON string, err error) {
	fb, err := json.Marshal(sess.Fields)
	if err != nil {
		return "", "", fmt.Errorf("encode fields: %w", err)
	}
	answers := sess.Answers
	if answers == nil {
		answers = map[string]string{}
	}
	ab, err := json.Marshal(answers)
	if err != nil {
		return "", "", fmt.Errorf("encode answers: %w", err)
	}
	return string(fb), string(ab), nil
}

func unmarshalSession(sess *entity.FormSession, fieldsJSON, answersJSON string) error {
	if err := json.Unmarshal([]byte(fieldsJSON), &sess.Fields); err != nil {
		return fmt.Errorf("decode fields: %w", err)
	}
	if err := json.Unmarshal([]byte(answersJSON), &sess.Answers); err != nil {
		return fmt.Errorf("decode answers: %w", err)
	}
	return nil
}
