// Package engine orchestrates command handling: idempotency, intent parsing,
// candidate resolution, the clarification conversation and effect execution.
// Handlers above it only translate HTTP; everything stateful happens here.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "jobtrack-commands/internal/common/errors"
	"jobtrack-commands/internal/common/logger"
	"jobtrack-commands/internal/common/metrics"
	"jobtrack-commands/internal/engine/clarify"
	"jobtrack-commands/internal/engine/dedup"
	"jobtrack-commands/internal/engine/executor"
	"jobtrack-commands/internal/engine/normalize"
	"jobtrack-commands/internal/engine/parser"
	"jobtrack-commands/internal/engine/resolver"
	"jobtrack-commands/internal/models"
)

const (
	questionWhichJob    = "Which job did you mean?"
	questionPickAgain   = "I didn't catch that one. Which job did you mean?"
	questionExpired     = "That conversation has expired. Tell me again what you'd like to do."
	questionNoIntent    = "What would you like to do? You can create, update, move, archive, restore or comment on a job."
	questionMissingTo   = "Which stage should I move it to?"
	questionNoCandidate = "I couldn't find a matching job. Could you name the company?"
)

// Parser yields an untrusted {intent, args} pair for a transcript. Fails open
// with an empty intent.
type Parser interface {
	Parse(ctx context.Context, transcript string) parser.ParsedCommand
}

// Guard is the idempotency check in front of every command.
type Guard interface {
	Submit(ctx context.Context, userID, requestID string, payload *models.CommandRequest) (bool, error)
	Rollback(ctx context.Context, userID, requestID string)
}

// Resolver ranks a user's jobs against the parsed hints.
type Resolver interface {
	Resolve(ctx context.Context, userID, company, position string, w resolver.Weights) (*resolver.Decision, error)
}

// SessionStore persists the clarification conversation between turns.
type SessionStore interface {
	Save(ctx context.Context, pending *models.PendingClarification) error
	Get(ctx context.Context, id, userID string) (*models.PendingClarification, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// Effector applies state changes to job records.
type Effector interface {
	GetJob(ctx context.Context, userID, jobID string) (*models.Job, error)
	Create(ctx context.Context, userID, company, title, location string, stage models.Stage, meta map[string]interface{}) (models.Effect, error)
	MoveStage(ctx context.Context, userID string, job *models.Job, to models.Stage, meta map[string]interface{}) (models.Effect, error)
	Archive(ctx context.Context, userID string, job *models.Job, meta map[string]interface{}) (models.Effect, error)
	Restore(ctx context.Context, userID string, job *models.Job, meta map[string]interface{}) (models.Effect, error)
	Update(ctx context.Context, userID string, job *models.Job, title, location string, meta map[string]interface{}) (models.Effect, error)
	Comment(ctx context.Context, userID string, job *models.Job, text string, meta map[string]interface{}) (models.Effect, error)
}

var (
	_ Parser       = (*parser.Client)(nil)
	_ Guard        = (*dedup.Guard)(nil)
	_ Resolver     = (*resolver.Resolver)(nil)
	_ SessionStore = (*clarify.Store)(nil)
	_ Effector     = (*executor.Executor)(nil)
)

type Engine struct {
	guard    Guard
	parser   Parser
	resolver Resolver
	sessions SessionStore
	executor Effector
	logger   logger.Logger
}

func New(guard Guard, p Parser, r Resolver, sessions SessionStore, exec Effector, log logger.Logger) *Engine {
	return &Engine{
		guard:    guard,
		parser:   p,
		resolver: r,
		sessions: sessions,
		executor: exec,
		logger:   log.WithFields(map[string]interface{}{"component": "engine"}),
	}
}

// Handle runs one command end to end. Every outcome is an HTTP 200 shape
// except infrastructure failures; those roll back the dedup record so the
// client can retry with the same request id.
func (e *Engine) Handle(ctx context.Context, userID string, req *models.CommandRequest) (*models.CommandResponse, error) {
	start := time.Now()

	fresh, err := e.guard.Submit(ctx, userID, req.RequestID, req)
	if err != nil {
		return nil, err
	}
	if !fresh {
		e.logger.Info("duplicate request ignored", map[string]interface{}{
			"userId":    userID,
			"requestId": req.RequestID,
		})
		e.observe(models.StatusIgnoredDuplicate, start)
		return &models.CommandResponse{
			Status:    models.StatusIgnoredDuplicate,
			RequestID: req.RequestID,
		}, nil
	}

	var res *models.CommandResponse
	if req.ClarificationID != "" {
		res, err = e.resume(ctx, userID, req)
	} else {
		res, err = e.fresh(ctx, userID, req)
	}
	if err != nil {
		e.guard.Rollback(ctx, userID, req.RequestID)
		e.observe("ERROR", start)
		return nil, err
	}

	res.RequestID = req.RequestID
	e.observe(res.Status, start)
	return res, nil
}

func (e *Engine) observe(status string, start time.Time) {
	metrics.CommandsProcessed.WithLabelValues(status).Inc()
	metrics.CommandDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
}

// fresh handles a command that does not reference an open clarification.
func (e *Engine) fresh(ctx context.Context, userID string, req *models.CommandRequest) (*models.CommandResponse, error) {
	parsed := e.parser.Parse(ctx, req.Transcript)
	intent := models.Intent(parsed.Intent)
	if !intent.Valid() {
		return &models.CommandResponse{
			Status:   models.StatusNeedClarification,
			Question: questionNoIntent,
		}, nil
	}

	meta := requestMeta(req)

	switch intent {
	case models.IntentCreate:
		args := parser.DecodeCreate(parsed.Args)
		effect, err := e.executor.Create(ctx, userID, args.Company, args.Title, args.Location, args.Stage, meta)
		if err != nil {
			return nil, err
		}
		return applied(effect), nil

	case models.IntentMoveStage:
		args := parser.DecodeMoveStage(parsed.Args)
		stage, ok := e.moveTarget(args.Stage, req)
		if !ok {
			return &models.CommandResponse{
				Status:   models.StatusNeedClarification,
				Question: questionMissingTo,
			}, nil
		}
		session := models.ClarificationArgs{Stage: string(stage), Company: args.Company, Title: args.Position}
		return e.resolveAndApply(ctx, userID, intent, args.Company, args.Position, session, meta)

	case models.IntentArchive, models.IntentRestore:
		args := parser.DecodeMoveStage(parsed.Args)
		session := models.ClarificationArgs{Company: args.Company, Title: args.Position}
		return e.resolveAndApply(ctx, userID, intent, args.Company, args.Position, session, meta)

	case models.IntentComment:
		args := parser.DecodeComment(parsed.Args)
		text := args.Text
		if text == "" {
			text = req.Transcript
		}
		session := models.ClarificationArgs{Text: text, Company: args.Company, Title: args.Position}
		return e.resolveAndApply(ctx, userID, intent, args.Company, args.Position, session, meta)

	case models.IntentUpdate:
		args := parser.DecodeUpdate(parsed.Args)
		session := models.ClarificationArgs{Title: args.Title, Company: args.Company, Location: args.Location}
		return e.resolveAndApply(ctx, userID, intent, args.Company, "", session, meta)
	}

	return &models.CommandResponse{
		Status:   models.StatusNeedClarification,
		Question: questionNoIntent,
	}, nil
}

// moveTarget picks the destination stage: parser args first, then the
// request's explicit stage field, then stage keywords in the transcript.
func (e *Engine) moveTarget(parsed models.Stage, req *models.CommandRequest) (models.Stage, bool) {
	if parsed != "" {
		return parsed, true
	}
	if req.Stage != "" {
		if stage, ok := normalize.Stage(req.Stage); ok {
			return stage, true
		}
	}
	return normalize.StageFromTranscript(req.Transcript)
}

// resolveAndApply runs the confidence policy for a target-bound intent:
// apply immediately against a confident winner, otherwise persist a
// clarification session and ask.
func (e *Engine) resolveAndApply(ctx context.Context, userID string, intent models.Intent, company, position string, args models.ClarificationArgs, meta map[string]interface{}) (*models.CommandResponse, error) {
	decision, err := e.resolver.Resolve(ctx, userID, company, position, resolver.WeightsFor(intent))
	if err != nil {
		return nil, err
	}

	if decision.AutoApply {
		effect, err := e.apply(ctx, userID, intent, decision.Target, args, meta)
		if err != nil {
			return nil, err
		}
		return applied(effect), nil
	}

	if len(decision.Options) == 0 {
		return &models.CommandResponse{
			Status:   models.StatusNeedClarification,
			Question: questionNoCandidate,
		}, nil
	}

	pending := &models.PendingClarification{
		UserID:  userID,
		Intent:  intent,
		Args:    args,
		Options: decision.Options,
	}
	if err := e.sessions.Save(ctx, pending); err != nil {
		return nil, err
	}
	return &models.CommandResponse{
		Status:          models.StatusNeedClarification,
		ClarificationID: pending.ID,
		Question:        questionWhichJob,
		Options:         pending.Options,
	}, nil
}

// resume continues an open clarification session with the user's answer.
func (e *Engine) resume(ctx context.Context, userID string, req *models.CommandRequest) (*models.CommandResponse, error) {
	pending, err := e.sessions.Get(ctx, req.ClarificationID, userID)
	if errors.Is(err, clarify.ErrNotFound) {
		return &models.CommandResponse{
			Status:   models.StatusNeedClarification,
			Question: questionExpired,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	choice := strings.TrimSpace(req.Choice)
	if choice == "" {
		choice = req.Transcript
	}
	idx, method, ok := clarify.ResolveChoice(choice, pending.Options)
	if !ok {
		// failed guess: the session stays open so the user can retry
		return &models.CommandResponse{
			Status:          models.StatusNeedClarification,
			ClarificationID: pending.ID,
			Question:        questionPickAgain,
			Options:         pending.Options,
		}, nil
	}

	// delete first; the winner of a concurrent resume executes, the loser
	// sees an expired session
	won, err := e.sessions.Delete(ctx, pending.ID)
	if err != nil {
		return nil, err
	}
	if !won {
		return &models.CommandResponse{
			Status:   models.StatusNeedClarification,
			Question: questionExpired,
		}, nil
	}
	metrics.ClarificationsResolved.WithLabelValues(method).Inc()

	target, err := e.executor.GetJob(ctx, userID, pending.Options[idx].JobID)
	if err != nil {
		return nil, err
	}

	meta := requestMeta(req)
	meta["clarificationId"] = pending.ID
	effect, err := e.apply(ctx, userID, pending.Intent, target, pending.Args, meta)
	if err != nil {
		return nil, err
	}
	return applied(effect), nil
}

// apply executes one resolved intent against its target job.
func (e *Engine) apply(ctx context.Context, userID string, intent models.Intent, target *models.Job, args models.ClarificationArgs, meta map[string]interface{}) (models.Effect, error) {
	switch intent {
	case models.IntentMoveStage:
		stage, ok := normalize.Stage(args.Stage)
		if !ok {
			return models.Effect{}, apperrors.NewValidationFailedError(fmt.Sprintf("unknown stage %q", args.Stage))
		}
		return e.executor.MoveStage(ctx, userID, target, stage, meta)
	case models.IntentArchive:
		return e.executor.Archive(ctx, userID, target, meta)
	case models.IntentRestore:
		return e.executor.Restore(ctx, userID, target, meta)
	case models.IntentComment:
		return e.executor.Comment(ctx, userID, target, args.Text, meta)
	case models.IntentUpdate:
		return e.executor.Update(ctx, userID, target, args.Title, args.Location, meta)
	}
	return models.Effect{}, apperrors.NewValidationFailedError(fmt.Sprintf("intent %q has no target-bound effect", intent))
}

func applied(effects ...models.Effect) *models.CommandResponse {
	return &models.CommandResponse{
		Status:  models.StatusApplied,
		Effects: effects,
	}
}

func requestMeta(req *models.CommandRequest) map[string]interface{} {
	return map[string]interface{}{
		"requestId": req.RequestID,
		"channel":   req.Channel,
	}
}
