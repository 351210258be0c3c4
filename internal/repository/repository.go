// Package repository provides durable storage for form sessions.
package repository

import (
	"context"

	"github.com/formflow/formflow/internal/entity"
)

// SessionRepository persists one record per session. Implementations must
// make RecordAnswer atomic: the answer insert and the cursor advance happen
// together, and only when the stored cursor still equals expectedIndex.
type SessionRepository interface {
	// CreateSession stores a new session record.
	CreateSession(ctx context.Context, s *entity.FormSession) error

	// GetSession retrieves a session, or common.ErrSessionNotFound.
	GetSession(ctx context.Context, sessionID string) (*entity.FormSession, error)

	// RecordAnswer records answers[inputField] = answer and advances the
	// cursor by exactly one, guarded by a compare-and-swap on the cursor:
	// if the stored current_index no longer equals expectedIndex the update
	// applies to zero rows and common.ErrCursorConflict is returned.
	RecordAnswer(ctx context.Context, sessionID, inputField, answer string, expectedIndex int) error

	// Ping verifies store connectivity.
	Ping(ctx context.Context) error

	// Close closes the underlying connections.
	Close() error
}
