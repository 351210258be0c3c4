package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/formflow/formflow/internal/common"
	"github.com/formflow/formflow/internal/entity"
)

// PostgresConfig mirrors the pool knobs exposed through the environment.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// PostgresStore implements SessionRepository on a pgx pool, for deployments
// where sessions must survive the node.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres connects a pgx pool and ensures the sessions table exists.
func NewPostgres(ctx context.Context, cfg PostgresConfig, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("connecting to database")

	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "formflow"

	dialCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		return nil, fmt.Errorf("connect pool: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	logger.Info("successfully connected to database")
	return store, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS form_sessions (
		session_id TEXT PRIMARY KEY,
		fields_json JSONB NOT NULL,
		current_index INTEGER NOT NULL DEFAULT 0,
		answers_json JSONB NOT NULL DEFAULT '{}',
		image_width INTEGER NOT NULL DEFAULT 0,
		image_height INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`
	_, err := s.pool.Exec(ctx, query)
	return err
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess *entity.FormSession) error {
	fieldsJSON, answersJSON, err := marshalSession(sess)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO form_sessions (session_id, fields_json, current_index, answers_json, image_width, image_height, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = s.pool.Exec(ctx, query,
		sess.SessionID, fieldsJSON, sess.CurrentIndex, answersJSON,
		sess.ImageWidth, sess.ImageHeight, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (*entity.FormSession, error) {
	query := `
		SELECT session_id, fields_json, current_index, answers_json,
		       image_width, image_height, created_at, updated_at
		FROM form_sessions WHERE session_id = $1`

	row := s.pool.QueryRow(ctx, query, sessionID)

	var (
		sess        entity.FormSession
		fieldsJSON  string
		answersJSON string
	)
	err := row.Scan(
		&sess.SessionID, &fieldsJSON, &sess.CurrentIndex, &answersJSON,
		&sess.ImageWidth, &sess.ImageHeight, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	if err := unmarshalSession(&sess, fieldsJSON, answersJSON); err != nil {
		return nil, err
	}
	return &sess, nil
}

// RecordAnswer merges the answer into answers_json and advances the cursor in
// a single UPDATE guarded by the expected cursor value.
func (s *PostgresStore) RecordAnswer(ctx context.Context, sessionID, inputField, answer string, expectedIndex int) error {
	patch, err := json.Marshal(map[string]string{inputField: answer})
	if err != nil {
		return fmt.Errorf("encode answer: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE form_sessions
		 SET answers_json = answers_json || $1::jsonb,
		     current_index = current_index + 1,
		     updated_at = now()
		 WHERE session_id = $2 AND current_index = $3`,
		string(patch), sessionID, expectedIndex,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing session from a lost cursor race.
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM form_sessions WHERE session_id = $1)`, sessionID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check session: %w", err)
		}
		if !exists {
			return common.ErrSessionNotFound
		}
		return common.ErrCursorConflict
	}
	return nil
}
