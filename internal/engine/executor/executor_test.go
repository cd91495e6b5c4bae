package executor

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"jobtrack-commands/internal/common/logger"
	"jobtrack-commands/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAudit struct {
	entries []*models.AuditEntry
	err     error
}

func (f *fakeAudit) Record(_ context.Context, entry *models.AuditEntry) error {
	f.entries = append(f.entries, entry)
	return f.err
}

type fakeCache struct {
	invalidated []string
}

func (f *fakeCache) Invalidate(_ context.Context, userID string) {
	f.invalidated = append(f.invalidated, userID)
}

type fakeNotifier struct {
	moves []models.Stage
}

func (f *fakeNotifier) StageMoved(_ context.Context, _ string, _ *models.Job, to models.Stage) {
	f.moves = append(f.moves, to)
}

func setupExecutor(t *testing.T) (*Executor, sqlmock.Sqlmock, *fakeAudit, *fakeCache, *fakeNotifier) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	audit := &fakeAudit{}
	cache := &fakeCache{}
	notifier := &fakeNotifier{}
	exec := New(db, audit, cache, notifier, logger.NewTestLogger(t))
	return exec, mock, audit, cache, notifier
}

func jobFixture() *models.Job {
	return &models.Job{
		ID:        "job-1",
		UserID:    "user-1",
		Position:  "Backend Engineer",
		Company:   "Acme",
		Stage:     models.StageApplied,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

// ==========================================================================
// GetJob
// ==========================================================================

func TestGetJob_ScopedToOwner(t *testing.T) {
	exec, mock, _, _, _ := setupExecutor(t)

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "title", "position", "company", "location",
		"stage", "notes_count", "archived", "created_at", "updated_at",
	}).AddRow("job-1", "user-1", "Backend Engineer", nil, "Acme", "Berlin",
		"APPLIED", 2, false, time.Now(), time.Now())

	mock.ExpectQuery(`SELECT id, user_id, title, position, company, location`).
		WithArgs("job-1", "user-1").
		WillReturnRows(rows)

	job, err := exec.GetJob(context.Background(), "user-1", "job-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", job.Company)
	// NULL position falls back to the legacy title column
	assert.Equal(t, "Backend Engineer", job.Role())
	assert.Equal(t, models.StageApplied, job.Stage)
}

func TestGetJob_NotFound(t *testing.T) {
	exec, mock, _, _, _ := setupExecutor(t)

	mock.ExpectQuery(`SELECT id, user_id, title, position, company, location`).
		WithArgs("missing", "user-1").
		WillReturnError(sql.ErrNoRows)

	_, err := exec.GetJob(context.Background(), "user-1", "missing")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "JOB_NOT_FOUND")
}

// ==========================================================================
// Create
// ==========================================================================

func TestCreate_AppliesPlaceholderDefaults(t *testing.T) {
	exec, mock, audit, cache, _ := setupExecutor(t)

	mock.ExpectExec(`INSERT INTO jobs`).
		WithArgs(sqlmock.AnyArg(), "user-1", "Untitled", "Unknown", "",
			"WISHLIST", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	effect, err := exec.Create(context.Background(), "user-1", "", "", "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "CREATE", effect.Type)
	assert.Equal(t, "WISHLIST", effect.To)
	assert.NotEmpty(t, effect.JobID)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditCreate, audit.entries[0].Action)
	assert.Equal(t, []string{"user-1"}, cache.invalidated)
}

func TestCreate_RejectsArchivedAsInitialStage(t *testing.T) {
	exec, mock, _, _, _ := setupExecutor(t)

	mock.ExpectExec(`INSERT INTO jobs`).
		WithArgs(sqlmock.AnyArg(), "user-1", "SRE", "Acme", "Berlin",
			"WISHLIST", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	effect, err := exec.Create(context.Background(), "user-1", "Acme", "SRE", "Berlin", models.StageArchived, nil)
	require.NoError(t, err)
	assert.Equal(t, "WISHLIST", effect.To)
}

// ==========================================================================
// MoveStage / Archive / Restore
// ==========================================================================

func TestMoveStage_RecordsPriorStageAndNotifies(t *testing.T) {
	exec, mock, audit, cache, notifier := setupExecutor(t)
	job := jobFixture()

	mock.ExpectExec(`UPDATE jobs SET stage`).
		WithArgs("OFFER", false, sqlmock.AnyArg(), "job-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	effect, err := exec.MoveStage(context.Background(), "user-1", job, models.StageOffer, map[string]interface{}{"requestId": "req-1"})
	require.NoError(t, err)
	assert.Equal(t, "MOVE_STAGE", effect.Type)
	assert.Equal(t, "OFFER", effect.To)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, "APPLIED", audit.entries[0].FromStage)
	assert.Equal(t, "OFFER", audit.entries[0].ToStage)
	assert.Equal(t, "req-1", audit.entries[0].Meta["requestId"])
	assert.Equal(t, []models.Stage{models.StageOffer}, notifier.moves)
	assert.Equal(t, []string{"user-1"}, cache.invalidated)
}

func TestMoveStage_IntoArchivedSetsFlag(t *testing.T) {
	exec, mock, _, _, _ := setupExecutor(t)

	mock.ExpectExec(`UPDATE jobs SET stage`).
		WithArgs("ARCHIVED", true, sqlmock.AnyArg(), "job-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := exec.MoveStage(context.Background(), "user-1", jobFixture(), models.StageArchived, nil)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestArchive_MovesToArchived(t *testing.T) {
	exec, mock, audit, _, _ := setupExecutor(t)

	mock.ExpectExec(`UPDATE jobs SET stage = \$1, archived = true`).
		WithArgs("ARCHIVED", sqlmock.AnyArg(), "job-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	effect, err := exec.Archive(context.Background(), "user-1", jobFixture(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ARCHIVE", effect.Type)
	assert.Equal(t, "ARCHIVED", effect.To)
	assert.Equal(t, models.AuditArchive, audit.entries[0].Action)
}

func TestRestore_ReturnsToWishlist(t *testing.T) {
	exec, mock, audit, _, _ := setupExecutor(t)
	job := jobFixture()
	job.Stage = models.StageArchived
	job.Archived = true

	mock.ExpectExec(`UPDATE jobs SET stage = \$1, archived = false`).
		WithArgs("WISHLIST", sqlmock.AnyArg(), "job-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	effect, err := exec.Restore(context.Background(), "user-1", job, nil)
	require.NoError(t, err)
	assert.Equal(t, "WISHLIST", effect.To)
	assert.Equal(t, "ARCHIVED", audit.entries[0].FromStage)
}

// ==========================================================================
// Update
// ==========================================================================

func TestUpdate_OnlyTouchesProvidedFields(t *testing.T) {
	exec, mock, audit, _, _ := setupExecutor(t)

	mock.ExpectExec(`UPDATE jobs SET`).
		WithArgs("Staff Engineer", "", sqlmock.AnyArg(), "job-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	effect, err := exec.Update(context.Background(), "user-1", jobFixture(), "Staff Engineer", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "UPDATE", effect.Type)
	assert.Equal(t, "Staff Engineer", audit.entries[0].Meta["title"])
	_, hasLocation := audit.entries[0].Meta["location"]
	assert.False(t, hasLocation)
}

// ==========================================================================
// Comment
// ==========================================================================

func TestComment_InsertsNoteAndBumpsCounter(t *testing.T) {
	exec, mock, audit, cache, _ := setupExecutor(t)

	mock.ExpectExec(`INSERT INTO job_comments`).
		WithArgs(sqlmock.AnyArg(), "job-1", "user-1", "recruiter called back", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE jobs SET notes_count = notes_count \+ 1`).
		WithArgs(sqlmock.AnyArg(), "job-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	effect, err := exec.Comment(context.Background(), "user-1", jobFixture(), "recruiter called back", nil)
	require.NoError(t, err)
	assert.Equal(t, "COMMENT", effect.Type)
	assert.NotEmpty(t, effect.CommentID)
	assert.Equal(t, effect.CommentID, audit.entries[0].Meta["commentId"])
	assert.Equal(t, []string{"user-1"}, cache.invalidated)
}

func TestComment_CounterFailureKeepsNote(t *testing.T) {
	exec, mock, audit, _, _ := setupExecutor(t)

	mock.ExpectExec(`INSERT INTO job_comments`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE jobs SET notes_count`).
		WillReturnError(assert.AnError)

	effect, err := exec.Comment(context.Background(), "user-1", jobFixture(), "note", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, effect.CommentID)
	require.Len(t, audit.entries, 1)
}

func TestComment_InsertFailureReturnsError(t *testing.T) {
	exec, mock, audit, _, _ := setupExecutor(t)

	mock.ExpectExec(`INSERT INTO job_comments`).
		WillReturnError(assert.AnError)

	_, err := exec.Comment(context.Background(), "user-1", jobFixture(), "note", nil)
	assert.Error(t, err)
	assert.Empty(t, audit.entries)
}

// ==========================================================================
// afterWrite
// ==========================================================================

func TestAfterWrite_AuditFailureDoesNotPropagate(t *testing.T) {
	exec, mock, audit, cache, _ := setupExecutor(t)
	audit.err = assert.AnError

	mock.ExpectExec(`UPDATE jobs SET stage`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := exec.MoveStage(context.Background(), "user-1", jobFixture(), models.StageInterview, nil)
	assert.NoError(t, err)
	// cache still invalidated even when the audit write failed
	assert.Equal(t, []string{"user-1"}, cache.invalidated)
}
