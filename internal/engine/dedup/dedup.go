// Package dedup is the idempotency guard: one durable row per (user, client
// request id), created with a single insert-if-absent. The uniqueness
// constraint is the concurrency primitive — two racing submissions with the
// same id resolve with exactly one winner, no locking.
package dedup

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	apperrors "jobtrack-commands/internal/common/errors"
	"jobtrack-commands/internal/common/logger"
	"jobtrack-commands/internal/models"
)

type Guard struct {
	db     *sql.DB
	logger logger.Logger
}

func NewGuard(db *sql.DB, log logger.Logger) *Guard {
	return &Guard{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "dedup"}),
	}
}

// Submit attempts to claim the request id for this user. fresh is false when
// the id was already processed; the caller must respond IGNORED_DUPLICATE and
// perform no further work.
func (g *Guard) Submit(ctx context.Context, userID, requestID string, payload *models.CommandRequest) (bool, error) {
	command, err := json.Marshal(payload)
	if err != nil {
		return false, apperrors.NewDatabaseInsertFailedError("marshal command payload", err)
	}

	res, err := g.db.ExecContext(ctx, `
		INSERT INTO command_dedup (request_id, user_id, command, status, created_at)
		VALUES ($1, $2, $3, 'APPLIED', $4)
		ON CONFLICT (user_id, request_id) DO NOTHING`,
		requestID, userID, command, time.Now().UTC())
	if err != nil {
		return false, apperrors.NewDatabaseInsertFailedError("insert dedup record", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.NewDatabaseInsertFailedError("insert dedup record", err)
	}
	if affected == 0 {
		g.logger.Info("duplicate request ignored", map[string]interface{}{
			"userId":    userID,
			"requestId": requestID,
		})
		return false, nil
	}
	return true, nil
}

// Rollback removes the dedup row after a downstream storage failure so the
// client can retry the same request id instead of being swallowed as a
// duplicate. Best-effort: a failed rollback is logged and the original error
// still surfaces.
func (g *Guard) Rollback(ctx context.Context, userID, requestID string) {
	_, err := g.db.ExecContext(ctx, `
		DELETE FROM command_dedup WHERE user_id = $1 AND request_id = $2`,
		userID, requestID)
	if err != nil {
		g.logger.Error("dedup rollback failed, client retries will read as duplicates", map[string]interface{}{
			"userId":    userID,
			"requestId": requestID,
			"error":     err.Error(),
		})
	}
}
