// Package resolver ranks a user's job records against the company/position
// hints extracted from a command and decides between immediate application
// and asking for clarification.
package resolver

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	apperrors "jobtrack-commands/internal/common/errors"
	"jobtrack-commands/internal/common/logger"
	"jobtrack-commands/internal/engine/normalize"
	"jobtrack-commands/internal/models"

	"github.com/redis/go-redis/v9"
)

type Resolver struct {
	config *Config
	db     *sql.DB
	redis  *redis.Client
	logger logger.Logger
}

func New(config *Config, db *sql.DB, rdb *redis.Client, log logger.Logger) *Resolver {
	return &Resolver{
		config: config,
		db:     db,
		redis:  rdb,
		logger: log.WithFields(map[string]interface{}{"component": "resolver"}),
	}
}

// FieldScore scores haystack against query, case- and accent-insensitive.
// Tiers: exact 4, word-boundary containment 3, raw substring 2, normalized
// containment 2, no match 0.
func FieldScore(haystack, query string) int {
	if haystack == "" || query == "" {
		return 0
	}

	h := normalize.Fold(haystack)
	q := normalize.Fold(query)

	if h == q {
		return 4
	}
	if wordBoundaryContains(h, q) {
		return 3
	}
	if strings.Contains(h, q) {
		return 2
	}

	hc := normalize.Canonical(haystack)
	qc := normalize.Canonical(query)
	if hc != "" && qc != "" && (strings.Contains(hc, qc) || strings.Contains(qc, hc)) {
		return 2
	}
	return 0
}

func wordBoundaryContains(haystack, query string) bool {
	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(query) + `\b`)
	if err != nil {
		return false
	}
	return re.MatchString(haystack)
}

// Score combines the field scores under the given weights, plus one point
// for candidates that are not archived.
func Score(job *models.Job, company, position string, w Weights) int {
	score := FieldScore(job.Company, company)*w.Company +
		FieldScore(job.Role(), position)*w.Position
	if job.Stage != models.StageArchived {
		score++
	}
	return score
}

// Rank orders candidates by score descending. Ties break on most recently
// updated first, then ascending id, so repeated calls with identical inputs
// return identical orderings.
func Rank(jobs []models.Job, company, position string, w Weights) []Candidate {
	candidates := make([]Candidate, 0, len(jobs))
	for _, job := range jobs {
		candidates = append(candidates, Candidate{
			Job:   job,
			Score: Score(&job, company, position, w),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if !candidates[i].Job.UpdatedAt.Equal(candidates[j].Job.UpdatedAt) {
			return candidates[i].Job.UpdatedAt.After(candidates[j].Job.UpdatedAt)
		}
		return candidates[i].Job.ID < candidates[j].Job.ID
	})

	return candidates
}

func cacheKey(userID string) string {
	return "jobs:candidates:" + userID
}

// Candidates returns the user's jobs, most recently updated first, capped at
// the configured limit. A short-TTL Redis cache fronts the query since a
// clarification conversation re-ranks the same set within seconds.
func (r *Resolver) Candidates(ctx context.Context, userID string) ([]models.Job, error) {
	key := cacheKey(userID)
	if val, err := r.redis.Get(ctx, key).Result(); err == nil {
		var jobs []models.Job
		if err := json.Unmarshal([]byte(val), &jobs); err == nil {
			return jobs, nil
		}
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, title, position, company, location, stage, notes_count, archived, created_at, updated_at
		FROM jobs
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT $2`, userID, r.config.MaxCandidates)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("list candidates", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		var job models.Job
		var position, location sql.NullString
		if err := rows.Scan(&job.ID, &job.UserID, &job.Title, &position, &job.Company,
			&location, &job.Stage, &job.NotesCount, &job.Archived, &job.CreatedAt, &job.UpdatedAt); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("scan candidate", err)
		}
		job.Position = position.String
		job.Location = location.String
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("iterate candidates", err)
	}

	if data, err := json.Marshal(jobs); err == nil {
		r.redis.Set(ctx, key, data, r.config.CacheTTL)
	}

	return jobs, nil
}

// Invalidate drops the cached candidate list after an effect mutates a job.
func (r *Resolver) Invalidate(ctx context.Context, userID string) {
	if err := r.redis.Del(ctx, cacheKey(userID)).Err(); err != nil {
		r.logger.Warn("candidate cache invalidation failed", map[string]interface{}{
			"userId": userID,
			"error":  err.Error(),
		})
	}
}

// Resolve ranks the user's jobs against the hints and applies the confidence
// policy: auto-apply only when the top candidate clears the floor and leads
// the runner-up by more than one weighted tier step (Weights.Gap).
func (r *Resolver) Resolve(ctx context.Context, userID, company, position string, w Weights) (*Decision, error) {
	jobs, err := r.Candidates(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return &Decision{}, nil
	}

	candidates := Rank(jobs, company, position, w)
	top := candidates[0]

	confident := top.Score >= w.Floor &&
		(len(candidates) == 1 || top.Score-candidates[1].Score >= w.Gap())
	if confident {
		job := top.Job
		r.logger.Debug("candidate auto-resolved", map[string]interface{}{
			"userId": userID,
			"jobId":  job.ID,
			"score":  top.Score,
		})
		return &Decision{AutoApply: true, Target: &job}, nil
	}

	limit := r.config.MaxOptions
	if limit > len(candidates) {
		limit = len(candidates)
	}
	options := make([]models.CandidateOption, 0, limit)
	for _, c := range candidates[:limit] {
		options = append(options, models.CandidateOption{
			JobID:   c.Job.ID,
			Company: c.Job.Company,
			Title:   c.Job.Role(),
			Stage:   c.Job.Stage,
		})
	}

	return &Decision{Options: options}, nil
}
