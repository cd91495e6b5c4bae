package resolver

import (
	"time"

	"jobtrack-commands/internal/models"
)

type Config struct {
	MaxCandidates int           // candidate fetch cap, cost control
	MaxOptions    int           // options surfaced per clarification
	CacheTTL      time.Duration // candidate list cache
}

// Weights tunes field scoring per intent family. Floor is the minimum top
// score required to auto-apply without asking.
type Weights struct {
	Company  int
	Position int
	Floor    int
}

// Stage transitions are destructive and visible, so they demand stronger
// evidence than attaching a comment.
var (
	MoveWeights    = Weights{Company: 2, Position: 2, Floor: 4}
	CommentWeights = Weights{Company: 2, Position: 1, Floor: 3}
)

// Gap is the minimum lead over the runner-up required to auto-apply: more
// than one scoring tier on the heavier field. A split of exact vs
// word-boundary on company alone ("Acme" vs "Acme Corp" for "acme") is one
// tier apart and must still ask.
func (w Weights) Gap() int {
	if w.Position > w.Company {
		return w.Position + 1
	}
	return w.Company + 1
}

// WeightsFor picks the weight set for an intent.
func WeightsFor(intent models.Intent) Weights {
	if intent == models.IntentComment {
		return CommentWeights
	}
	return MoveWeights
}

// Candidate pairs a job with its ranking score. Transient, never persisted.
type Candidate struct {
	Job   models.Job
	Score int
}

// Decision is the outcome of a ranking call: either a confident target to
// apply against, or the option list to ask the user about.
type Decision struct {
	AutoApply bool
	Target    *models.Job
	Options   []models.CandidateOption
}
