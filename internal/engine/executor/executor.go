// Package executor applies resolved commands to job records. Every mutation
// goes through here so that auditing, cache invalidation and notifications
// happen uniformly regardless of which intent produced the write.
package executor

import (
	"context"
	"database/sql"
	"time"

	"jobtrack-commands/internal/common/errors"
	"jobtrack-commands/internal/common/logger"
	"jobtrack-commands/internal/models"

	"github.com/google/uuid"
)

// AuditRecorder persists one trail entry per applied effect.
type AuditRecorder interface {
	Record(ctx context.Context, entry *models.AuditEntry) error
}

// CacheInvalidator drops the user's cached candidate list after a write.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, userID string)
}

// StageNotifier is told about stage moves; implementations decide which
// transitions are worth a notification.
type StageNotifier interface {
	StageMoved(ctx context.Context, userID string, job *models.Job, to models.Stage)
}

type Executor struct {
	db       *sql.DB
	audit    AuditRecorder
	cache    CacheInvalidator
	notifier StageNotifier
	logger   logger.Logger
}

func New(db *sql.DB, audit AuditRecorder, cache CacheInvalidator, notifier StageNotifier, log logger.Logger) *Executor {
	return &Executor{
		db:       db,
		audit:    audit,
		cache:    cache,
		notifier: notifier,
		logger:   log.WithFields(map[string]interface{}{"component": "executor"}),
	}
}

// GetJob loads one job scoped to its owner.
func (e *Executor) GetJob(ctx context.Context, userID, jobID string) (*models.Job, error) {
	job := &models.Job{}
	var position, location sql.NullString

	err := e.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, position, company, location, stage, notes_count, archived, created_at, updated_at
		FROM jobs
		WHERE id = $1 AND user_id = $2`,
		jobID, userID,
	).Scan(&job.ID, &job.UserID, &job.Title, &position, &job.Company, &location,
		&job.Stage, &job.NotesCount, &job.Archived, &job.CreatedAt, &job.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewJobNotFoundError(jobID)
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("get job", err)
	}
	job.Position = position.String
	job.Location = location.String
	return job, nil
}

// Create inserts a new job record. Missing fields get the documented
// placeholders so a bare "add a job" still produces a usable card.
func (e *Executor) Create(ctx context.Context, userID, company, title, location string, stage models.Stage, meta map[string]interface{}) (models.Effect, error) {
	if company == "" {
		company = "Unknown"
	}
	if title == "" {
		title = "Untitled"
	}
	if !stage.Valid() || stage == models.StageArchived {
		stage = models.StageWishlist
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := e.db.ExecContext(ctx, `
		INSERT INTO jobs (id, user_id, title, position, company, location, stage, notes_count, archived, created_at, updated_at)
		VALUES ($1, $2, $3, $3, $4, NULLIF($5, ''), $6, 0, false, $7, $7)`,
		id, userID, title, company, location, string(stage), now)
	if err != nil {
		return models.Effect{}, errors.NewDatabaseInsertFailedError("jobs", err)
	}

	e.afterWrite(ctx, &models.AuditEntry{
		JobID:   id,
		UserID:  userID,
		Action:  models.AuditCreate,
		ToStage: string(stage),
		Meta:    meta,
	})
	return models.Effect{Type: string(models.IntentCreate), JobID: id, To: string(stage)}, nil
}

// MoveStage sets the job's stage. Moving into ARCHIVED flips the archived
// flag as well, so the record drops out of default candidate ranking the
// same way an explicit archive does.
func (e *Executor) MoveStage(ctx context.Context, userID string, job *models.Job, to models.Stage, meta map[string]interface{}) (models.Effect, error) {
	from := job.Stage

	_, err := e.db.ExecContext(ctx, `
		UPDATE jobs SET stage = $1, archived = $2, updated_at = $3
		WHERE id = $4 AND user_id = $5`,
		string(to), to == models.StageArchived, time.Now().UTC(), job.ID, userID)
	if err != nil {
		return models.Effect{}, errors.NewQueryExecutionFailedError("move stage", err)
	}

	e.afterWrite(ctx, &models.AuditEntry{
		JobID:     job.ID,
		UserID:    userID,
		Action:    models.AuditMoveStage,
		FromStage: string(from),
		ToStage:   string(to),
		Meta:      meta,
	})
	if e.notifier != nil {
		e.notifier.StageMoved(ctx, userID, job, to)
	}
	return models.Effect{Type: string(models.IntentMoveStage), JobID: job.ID, To: string(to)}, nil
}

// Archive moves the job to ARCHIVED and marks it archived.
func (e *Executor) Archive(ctx context.Context, userID string, job *models.Job, meta map[string]interface{}) (models.Effect, error) {
	from := job.Stage

	_, err := e.db.ExecContext(ctx, `
		UPDATE jobs SET stage = $1, archived = true, updated_at = $2
		WHERE id = $3 AND user_id = $4`,
		string(models.StageArchived), time.Now().UTC(), job.ID, userID)
	if err != nil {
		return models.Effect{}, errors.NewQueryExecutionFailedError("archive job", err)
	}

	e.afterWrite(ctx, &models.AuditEntry{
		JobID:     job.ID,
		UserID:    userID,
		Action:    models.AuditArchive,
		FromStage: string(from),
		ToStage:   string(models.StageArchived),
		Meta:      meta,
	})
	return models.Effect{Type: string(models.IntentArchive), JobID: job.ID, To: string(models.StageArchived)}, nil
}

// Restore brings an archived job back onto the board at WISHLIST.
func (e *Executor) Restore(ctx context.Context, userID string, job *models.Job, meta map[string]interface{}) (models.Effect, error) {
	from := job.Stage

	_, err := e.db.ExecContext(ctx, `
		UPDATE jobs SET stage = $1, archived = false, updated_at = $2
		WHERE id = $3 AND user_id = $4`,
		string(models.StageWishlist), time.Now().UTC(), job.ID, userID)
	if err != nil {
		return models.Effect{}, errors.NewQueryExecutionFailedError("restore job", err)
	}

	e.afterWrite(ctx, &models.AuditEntry{
		JobID:     job.ID,
		UserID:    userID,
		Action:    models.AuditRestore,
		FromStage: string(from),
		ToStage:   string(models.StageWishlist),
		Meta:      meta,
	})
	return models.Effect{Type: string(models.IntentRestore), JobID: job.ID, To: string(models.StageWishlist)}, nil
}

// Update rewrites the editable text fields. Empty arguments leave the stored
// value untouched; COALESCE keeps the statement a single round trip.
func (e *Executor) Update(ctx context.Context, userID string, job *models.Job, title, location string, meta map[string]interface{}) (models.Effect, error) {
	_, err := e.db.ExecContext(ctx, `
		UPDATE jobs SET
			title = COALESCE(NULLIF($1, ''), title),
			position = COALESCE(NULLIF($1, ''), position),
			location = COALESCE(NULLIF($2, ''), location),
			updated_at = $3
		WHERE id = $4 AND user_id = $5`,
		title, location, time.Now().UTC(), job.ID, userID)
	if err != nil {
		return models.Effect{}, errors.NewQueryExecutionFailedError("update job", err)
	}

	fields := map[string]interface{}{}
	for k, v := range meta {
		fields[k] = v
	}
	if title != "" {
		fields["title"] = title
	}
	if location != "" {
		fields["location"] = location
	}
	e.afterWrite(ctx, &models.AuditEntry{
		JobID:  job.ID,
		UserID: userID,
		Action: models.AuditUpdate,
		Meta:   fields,
	})
	return models.Effect{Type: string(models.IntentUpdate), JobID: job.ID}, nil
}

// Comment appends a note to the job and bumps its denormalized counter. The
// counter is advisory; if the increment fails after the note landed, the note
// stays and the failure is only logged.
func (e *Executor) Comment(ctx context.Context, userID string, job *models.Job, text string, meta map[string]interface{}) (models.Effect, error) {
	commentID := uuid.New().String()
	now := time.Now().UTC()

	_, err := e.db.ExecContext(ctx, `
		INSERT INTO job_comments (id, job_id, user_id, text, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		commentID, job.ID, userID, text, now)
	if err != nil {
		return models.Effect{}, errors.NewDatabaseInsertFailedError("job_comments", err)
	}

	if _, err := e.db.ExecContext(ctx, `
		UPDATE jobs SET notes_count = notes_count + 1, updated_at = $1
		WHERE id = $2 AND user_id = $3`,
		now, job.ID, userID); err != nil {
		e.logger.Warn("notes_count increment failed", map[string]interface{}{
			"jobId": job.ID,
			"error": err.Error(),
		})
	}

	fields := map[string]interface{}{}
	for k, v := range meta {
		fields[k] = v
	}
	fields["commentId"] = commentID
	e.afterWrite(ctx, &models.AuditEntry{
		JobID:  job.ID,
		UserID: userID,
		Action: models.AuditComment,
		Meta:   fields,
	})
	return models.Effect{Type: string(models.IntentComment), JobID: job.ID, CommentID: commentID}, nil
}

// afterWrite runs the post-mutation bookkeeping shared by every effect. The
// audit write must complete before the response goes out, but its failure
// does not undo an already-applied effect.
func (e *Executor) afterWrite(ctx context.Context, entry *models.AuditEntry) {
	if err := e.audit.Record(ctx, entry); err != nil {
		e.logger.Error("audit record failed", map[string]interface{}{
			"jobId":  entry.JobID,
			"action": string(entry.Action),
			"error":  err.Error(),
		})
	}
	if e.cache != nil {
		e.cache.Invalidate(ctx, entry.UserID)
	}
}
