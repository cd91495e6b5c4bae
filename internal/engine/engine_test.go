package engine

import (
	"context"
	"testing"

	"jobtrack-commands/internal/common/logger"
	"jobtrack-commands/internal/engine/clarify"
	"jobtrack-commands/internal/engine/parser"
	"jobtrack-commands/internal/engine/resolver"
	"jobtrack-commands/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================================================================
// Fakes
// ==========================================================================

type fakeGuard struct {
	fresh     bool
	err       error
	rollbacks []string
}

func (f *fakeGuard) Submit(_ context.Context, _, _ string, _ *models.CommandRequest) (bool, error) {
	return f.fresh, f.err
}

func (f *fakeGuard) Rollback(_ context.Context, _, requestID string) {
	f.rollbacks = append(f.rollbacks, requestID)
}

type fakeParser struct {
	out    parser.ParsedCommand
	called int
}

func (f *fakeParser) Parse(_ context.Context, _ string) parser.ParsedCommand {
	f.called++
	return f.out
}

type fakeResolver struct {
	decision *resolver.Decision
	err      error
	company  string
	position string
	weights  resolver.Weights
}

func (f *fakeResolver) Resolve(_ context.Context, _, company, position string, w resolver.Weights) (*resolver.Decision, error) {
	f.company, f.position, f.weights = company, position, w
	return f.decision, f.err
}

type fakeSessions struct {
	pending   *models.PendingClarification
	getErr    error
	saved     *models.PendingClarification
	saveErr   error
	deleteWon bool
	deleted   []string
}

func (f *fakeSessions) Save(_ context.Context, p *models.PendingClarification) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	p.ID = "clar-1"
	f.saved = p
	return nil
}

func (f *fakeSessions) Get(_ context.Context, _, _ string) (*models.PendingClarification, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.pending, nil
}

func (f *fakeSessions) Delete(_ context.Context, id string) (bool, error) {
	f.deleted = append(f.deleted, id)
	return f.deleteWon, nil
}

type effectorCall struct {
	method string
	jobID  string
	stage  models.Stage
	text   string
	meta   map[string]interface{}
}

type fakeEffector struct {
	jobs  map[string]*models.Job
	err   error
	calls []effectorCall
}

func (f *fakeEffector) record(c effectorCall) (models.Effect, error) {
	if f.err != nil {
		return models.Effect{}, f.err
	}
	f.calls = append(f.calls, c)
	return models.Effect{Type: c.method, JobID: c.jobID, To: string(c.stage)}, nil
}

func (f *fakeEffector) GetJob(_ context.Context, _, jobID string) (*models.Job, error) {
	if job, ok := f.jobs[jobID]; ok {
		return job, nil
	}
	return nil, assert.AnError
}

func (f *fakeEffector) Create(_ context.Context, _, company, title, _ string, stage models.Stage, meta map[string]interface{}) (models.Effect, error) {
	return f.record(effectorCall{method: "CREATE", jobID: "new-job", stage: stage, text: company + "/" + title, meta: meta})
}

func (f *fakeEffector) MoveStage(_ context.Context, _ string, job *models.Job, to models.Stage, meta map[string]interface{}) (models.Effect, error) {
	return f.record(effectorCall{method: "MOVE_STAGE", jobID: job.ID, stage: to, meta: meta})
}

func (f *fakeEffector) Archive(_ context.Context, _ string, job *models.Job, meta map[string]interface{}) (models.Effect, error) {
	return f.record(effectorCall{method: "ARCHIVE", jobID: job.ID, stage: models.StageArchived, meta: meta})
}

func (f *fakeEffector) Restore(_ context.Context, _ string, job *models.Job, meta map[string]interface{}) (models.Effect, error) {
	return f.record(effectorCall{method: "RESTORE", jobID: job.ID, stage: models.StageWishlist, meta: meta})
}

func (f *fakeEffector) Update(_ context.Context, _ string, job *models.Job, title, location string, meta map[string]interface{}) (models.Effect, error) {
	return f.record(effectorCall{method: "UPDATE", jobID: job.ID, text: title + "/" + location, meta: meta})
}

func (f *fakeEffector) Comment(_ context.Context, _ string, job *models.Job, text string, meta map[string]interface{}) (models.Effect, error) {
	return f.record(effectorCall{method: "COMMENT", jobID: job.ID, text: text, meta: meta})
}

type engineFixture struct {
	engine   *Engine
	guard    *fakeGuard
	parser   *fakeParser
	resolver *fakeResolver
	sessions *fakeSessions
	effector *fakeEffector
}

func setupEngine(t *testing.T) *engineFixture {
	f := &engineFixture{
		guard:    &fakeGuard{fresh: true},
		parser:   &fakeParser{},
		resolver: &fakeResolver{decision: &resolver.Decision{}},
		sessions: &fakeSessions{deleteWon: true},
		effector: &fakeEffector{jobs: map[string]*models.Job{}},
	}
	f.engine = New(f.guard, f.parser, f.resolver, f.sessions, f.effector, logger.NewTestLogger(t))
	return f
}

func moveRequest() *models.CommandRequest {
	return &models.CommandRequest{
		Channel:    "voice",
		Transcript: "move acme to interview",
		RequestID:  "req-1",
	}
}

// ==========================================================================
// Idempotency
// ==========================================================================

func TestHandle_DuplicateShortCircuits(t *testing.T) {
	f := setupEngine(t)
	f.guard.fresh = false

	res, err := f.engine.Handle(context.Background(), "user-1", moveRequest())
	require.NoError(t, err)
	assert.Equal(t, models.StatusIgnoredDuplicate, res.Status)
	assert.Equal(t, "req-1", res.RequestID)
	assert.Zero(t, f.parser.called)
}

func TestHandle_InfrastructureErrorRollsBackDedup(t *testing.T) {
	f := setupEngine(t)
	f.parser.out = parser.ParsedCommand{Intent: "MOVE_STAGE", Args: map[string]interface{}{
		"company": "Acme", "stage": "interview",
	}}
	f.resolver.err = assert.AnError

	_, err := f.engine.Handle(context.Background(), "user-1", moveRequest())
	assert.Error(t, err)
	assert.Equal(t, []string{"req-1"}, f.guard.rollbacks)
}

// ==========================================================================
// Fresh commands
// ==========================================================================

func TestHandle_NoIntentAsksWithoutSession(t *testing.T) {
	f := setupEngine(t)
	f.parser.out = parser.ParsedCommand{}

	res, err := f.engine.Handle(context.Background(), "user-1", moveRequest())
	require.NoError(t, err)
	assert.Equal(t, models.StatusNeedClarification, res.Status)
	assert.Empty(t, res.Options)
	assert.Empty(t, res.ClarificationID)
	assert.Nil(t, f.sessions.saved)
}

func TestHandle_CreateAppliesImmediately(t *testing.T) {
	f := setupEngine(t)
	f.parser.out = parser.ParsedCommand{Intent: "CREATE", Args: map[string]interface{}{
		"company": "Acme", "position": "SRE",
	}}

	res, err := f.engine.Handle(context.Background(), "user-1", moveRequest())
	require.NoError(t, err)
	assert.Equal(t, models.StatusApplied, res.Status)
	require.Len(t, res.Effects, 1)
	assert.Equal(t, "CREATE", res.Effects[0].Type)
}

func TestHandle_ConfidentMoveApplies(t *testing.T) {
	f := setupEngine(t)
	f.parser.out = parser.ParsedCommand{Intent: "MOVE_STAGE", Args: map[string]interface{}{
		"company": "Acme", "stage": "interview",
	}}
	f.resolver.decision = &resolver.Decision{
		AutoApply: true,
		Target:    &models.Job{ID: "job-1", Company: "Acme"},
	}

	res, err := f.engine.Handle(context.Background(), "user-1", moveRequest())
	require.NoError(t, err)
	assert.Equal(t, models.StatusApplied, res.Status)

	require.Len(t, f.effector.calls, 1)
	assert.Equal(t, "MOVE_STAGE", f.effector.calls[0].method)
	assert.Equal(t, models.StageInterview, f.effector.calls[0].stage)
	assert.Equal(t, "req-1", f.effector.calls[0].meta["requestId"])
	assert.Equal(t, resolver.MoveWeights, f.resolver.weights)
}

func TestHandle_MoveStageFallsBackToTranscript(t *testing.T) {
	f := setupEngine(t)
	// parser extracted the company but not the stage
	f.parser.out = parser.ParsedCommand{Intent: "MOVE_STAGE", Args: map[string]interface{}{
		"company": "Acme",
	}}
	f.resolver.decision = &resolver.Decision{
		AutoApply: true,
		Target:    &models.Job{ID: "job-1"},
	}

	req := moveRequest() // transcript says "to interview"
	res, err := f.engine.Handle(context.Background(), "user-1", req)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApplied, res.Status)
	assert.Equal(t, models.StageInterview, f.effector.calls[0].stage)
}

func TestHandle_MoveStageMissingStageAsks(t *testing.T) {
	f := setupEngine(t)
	f.parser.out = parser.ParsedCommand{Intent: "MOVE_STAGE", Args: map[string]interface{}{
		"company": "Acme",
	}}

	req := moveRequest()
	req.Transcript = "move acme"
	res, err := f.engine.Handle(context.Background(), "user-1", req)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNeedClarification, res.Status)
	assert.Empty(t, res.Options)
	assert.Nil(t, f.sessions.saved)
}

func TestHandle_AmbiguousMoveSavesSession(t *testing.T) {
	f := setupEngine(t)
	f.parser.out = parser.ParsedCommand{Intent: "MOVE_STAGE", Args: map[string]interface{}{
		"company": "Acme", "stage": "interview",
	}}
	options := []models.CandidateOption{
		{JobID: "job-1", Company: "Acme", Title: "SRE"},
		{JobID: "job-2", Company: "Acme Labs", Title: "SWE"},
	}
	f.resolver.decision = &resolver.Decision{Options: options}

	res, err := f.engine.Handle(context.Background(), "user-1", moveRequest())
	require.NoError(t, err)
	assert.Equal(t, models.StatusNeedClarification, res.Status)
	assert.Equal(t, "clar-1", res.ClarificationID)
	assert.Equal(t, options, res.Options)

	require.NotNil(t, f.sessions.saved)
	assert.Equal(t, models.IntentMoveStage, f.sessions.saved.Intent)
	assert.Equal(t, "INTERVIEW", f.sessions.saved.Args.Stage)
	assert.Empty(t, f.effector.calls)
}

func TestHandle_NoCandidatesAsksWithoutSession(t *testing.T) {
	f := setupEngine(t)
	f.parser.out = parser.ParsedCommand{Intent: "COMMENT", Args: map[string]interface{}{
		"company": "Nowhere", "text": "ping",
	}}
	f.resolver.decision = &resolver.Decision{}

	res, err := f.engine.Handle(context.Background(), "user-1", moveRequest())
	require.NoError(t, err)
	assert.Equal(t, models.StatusNeedClarification, res.Status)
	assert.Empty(t, res.Options)
	assert.Nil(t, f.sessions.saved)
}

func TestHandle_CommentFallsBackToTranscriptText(t *testing.T) {
	f := setupEngine(t)
	f.parser.out = parser.ParsedCommand{Intent: "COMMENT", Args: map[string]interface{}{
		"company": "Acme",
	}}
	f.resolver.decision = &resolver.Decision{
		AutoApply: true,
		Target:    &models.Job{ID: "job-1"},
	}

	req := moveRequest()
	req.Transcript = "note that the recruiter called"
	_, err := f.engine.Handle(context.Background(), "user-1", req)
	require.NoError(t, err)
	assert.Equal(t, "note that the recruiter called", f.effector.calls[0].text)
	assert.Equal(t, resolver.CommentWeights, f.resolver.weights)
}

func TestHandle_UpdateResolvesByCompanyOnly(t *testing.T) {
	f := setupEngine(t)
	f.parser.out = parser.ParsedCommand{Intent: "UPDATE", Args: map[string]interface{}{
		"company": "Acme", "title": "Staff Engineer",
	}}
	f.resolver.decision = &resolver.Decision{
		AutoApply: true,
		Target:    &models.Job{ID: "job-1"},
	}

	_, err := f.engine.Handle(context.Background(), "user-1", moveRequest())
	require.NoError(t, err)
	assert.Equal(t, "Acme", f.resolver.company)
	// the new title is a value to write, not a resolution hint
	assert.Empty(t, f.resolver.position)
	assert.Equal(t, "UPDATE", f.effector.calls[0].method)
}

// ==========================================================================
// Clarification resume
// ==========================================================================

func pendingFixture() *models.PendingClarification {
	return &models.PendingClarification{
		ID:     "clar-1",
		UserID: "user-1",
		Intent: models.IntentMoveStage,
		Args:   models.ClarificationArgs{Stage: "INTERVIEW"},
		Options: []models.CandidateOption{
			{JobID: "job-1", Company: "Acme", Title: "SRE"},
			{JobID: "job-2", Company: "Acme Labs", Title: "SWE"},
		},
	}
}

func resumeRequest(choice string) *models.CommandRequest {
	return &models.CommandRequest{
		Channel:         "voice",
		Transcript:      choice,
		RequestID:       "req-2",
		ClarificationID: "clar-1",
		Choice:          choice,
	}
}

func TestHandle_ResumeExecutesCapturedIntent(t *testing.T) {
	f := setupEngine(t)
	f.sessions.pending = pendingFixture()
	f.effector.jobs["job-2"] = &models.Job{ID: "job-2", Company: "Acme Labs"}

	res, err := f.engine.Handle(context.Background(), "user-1", resumeRequest("the second one"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusApplied, res.Status)

	// session consumed before the effect ran
	assert.Equal(t, []string{"clar-1"}, f.sessions.deleted)
	require.Len(t, f.effector.calls, 1)
	assert.Equal(t, "job-2", f.effector.calls[0].jobID)
	assert.Equal(t, models.StageInterview, f.effector.calls[0].stage)
	assert.Equal(t, "clar-1", f.effector.calls[0].meta["clarificationId"])
}

func TestHandle_ResumeFallsBackToTranscriptChoice(t *testing.T) {
	f := setupEngine(t)
	f.sessions.pending = pendingFixture()
	f.effector.jobs["job-1"] = &models.Job{ID: "job-1", Company: "Acme"}

	req := resumeRequest("")
	req.Transcript = "acme"
	res, err := f.engine.Handle(context.Background(), "user-1", req)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApplied, res.Status)
	assert.Equal(t, "job-1", f.effector.calls[0].jobID)
}

func TestHandle_ResumeStaleSessionReprompts(t *testing.T) {
	f := setupEngine(t)
	f.sessions.getErr = clarify.ErrNotFound

	res, err := f.engine.Handle(context.Background(), "user-1", resumeRequest("2"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusNeedClarification, res.Status)
	assert.Empty(t, res.Options)
	assert.Empty(t, f.effector.calls)
}

func TestHandle_ResumeUnresolvedChoiceKeepsSession(t *testing.T) {
	f := setupEngine(t)
	f.sessions.pending = pendingFixture()

	res, err := f.engine.Handle(context.Background(), "user-1", resumeRequest("the purple one"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusNeedClarification, res.Status)
	assert.Equal(t, "clar-1", res.ClarificationID)
	assert.Equal(t, pendingFixture().Options, res.Options)
	assert.Empty(t, f.sessions.deleted)
	assert.Empty(t, f.effector.calls)
}

func TestHandle_ResumeRaceLoserSeesExpired(t *testing.T) {
	f := setupEngine(t)
	f.sessions.pending = pendingFixture()
	f.sessions.deleteWon = false

	res, err := f.engine.Handle(context.Background(), "user-1", resumeRequest("2"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusNeedClarification, res.Status)
	assert.Empty(t, f.effector.calls)
}
