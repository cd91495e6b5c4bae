// Package clarify persists the multi-turn disambiguation conversation. Each
// user holds at most one open session (unique user_id); the session survives
// across HTTP calls and server instances because it lives in Postgres, not in
// process memory.
package clarify

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	apperrors "jobtrack-commands/internal/common/errors"
	"jobtrack-commands/internal/common/logger"
	"jobtrack-commands/internal/models"

	"github.com/google/uuid"
)

// ErrNotFound marks a session that does not exist, already resolved, or
// expired. Callers re-prompt the user rather than failing the request.
var ErrNotFound = errors.New("clarification not found")

type Config struct {
	TTL time.Duration // sessions older than this are treated as expired
}

type Store struct {
	config *Config
	db     *sql.DB
	logger logger.Logger
}

func NewStore(config *Config, db *sql.DB, log logger.Logger) *Store {
	return &Store{
		config: config,
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "clarify"}),
	}
}

// Save upserts the user's pending clarification. The unique user_id slot
// means a new ambiguous command silently replaces any unresolved session,
// which is the accepted single-slot behavior.
func (s *Store) Save(ctx context.Context, pending *models.PendingClarification) error {
	if pending.ID == "" {
		pending.ID = uuid.New().String()
	}
	if pending.CreatedAt.IsZero() {
		pending.CreatedAt = time.Now().UTC()
	}

	argsJSON, err := json.Marshal(pending.Args)
	if err != nil {
		return apperrors.NewDatabaseInsertFailedError("marshal clarification args", err)
	}
	optionsJSON, err := json.Marshal(pending.Options)
	if err != nil {
		return apperrors.NewDatabaseInsertFailedError("marshal clarification options", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pending_clarifications (id, user_id, intent, args, options, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			id = EXCLUDED.id,
			intent = EXCLUDED.intent,
			args = EXCLUDED.args,
			options = EXCLUDED.options,
			created_at = EXCLUDED.created_at`,
		pending.ID, pending.UserID, string(pending.Intent), argsJSON, optionsJSON, pending.CreatedAt)
	if err != nil {
		return apperrors.NewDatabaseInsertFailedError("save clarification", err)
	}

	s.logger.Debug("clarification saved", map[string]interface{}{
		"clarificationId": pending.ID,
		"userId":          pending.UserID,
		"intent":          string(pending.Intent),
		"optionCount":     len(pending.Options),
	})
	return nil
}

// Get loads a session scoped to its owner. Expired sessions are deleted
// best-effort and reported as not found.
func (s *Store) Get(ctx context.Context, id, userID string) (*models.PendingClarification, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, intent, args, options, created_at
		FROM pending_clarifications
		WHERE id = $1 AND user_id = $2`, id, userID)

	var pending models.PendingClarification
	var intent string
	var argsJSON, optionsJSON []byte
	err := row.Scan(&pending.ID, &pending.UserID, &intent, &argsJSON, &optionsJSON, &pending.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("get clarification", err)
	}

	pending.Intent = models.Intent(intent)
	if err := json.Unmarshal(argsJSON, &pending.Args); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("decode clarification args", err)
	}
	if err := json.Unmarshal(optionsJSON, &pending.Options); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("decode clarification options", err)
	}

	if s.config.TTL > 0 && time.Since(pending.CreatedAt) > s.config.TTL {
		if _, err := s.Delete(ctx, pending.ID); err != nil {
			s.logger.Warn("expired clarification cleanup failed", map[string]interface{}{
				"clarificationId": pending.ID,
				"error":           err.Error(),
			})
		}
		return nil, ErrNotFound
	}

	return &pending, nil
}

// Delete removes a session and reports whether this caller won the removal.
// Two concurrent resolutions race here: the loser sees false and must treat
// the session as expired, never as a crash.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pending_clarifications WHERE id = $1`, id)
	if err != nil {
		return false, apperrors.NewQueryExecutionFailedError("delete clarification", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.NewQueryExecutionFailedError("delete clarification", err)
	}
	return affected > 0, nil
}
