package models

import "time"

// Stage is the kanban column a job application sits in.
type Stage string

const (
	StageWishlist  Stage = "WISHLIST"
	StageApplied   Stage = "APPLIED"
	StageInterview Stage = "INTERVIEW"
	StageOffer     Stage = "OFFER"
	StageArchived  Stage = "ARCHIVED"
)

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	switch s {
	case StageWishlist, StageApplied, StageInterview, StageOffer, StageArchived:
		return true
	}
	return false
}

// Job is a user's job-application record. The engine reads it for ranking and
// issues scoped updates (stage, notes counter) through the executor; the rest
// of the record is owned by the tracker API.
type Job struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Title      string    `json:"title"`
	Position   string    `json:"position"`
	Company    string    `json:"company"`
	Location   string    `json:"location"`
	Stage      Stage     `json:"stage"`
	NotesCount int       `json:"notesCount"`
	Archived   bool      `json:"archived"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Role returns the position name of the job. Records written before the
// position column existed carry the role in the legacy title column, so the
// first non-empty of the two wins. This is the single read boundary for the
// position/title migration artifact.
func (j *Job) Role() string {
	if j.Position != "" {
		return j.Position
	}
	return j.Title
}
