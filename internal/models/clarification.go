package models

import "time"

// CandidateOption is one disambiguation choice shown to the user. It is a
// snapshot of the job at ranking time, not a live reference.
type CandidateOption struct {
	JobID   string `json:"jobId"`
	Company string `json:"company"`
	Title   string `json:"title,omitempty"`
	Stage   Stage  `json:"stage,omitempty"`
}

// ClarificationArgs captures the intent-specific payload of an ambiguous
// command so the follow-up turn can execute it without re-parsing.
type ClarificationArgs struct {
	Stage    string `json:"stage,omitempty"`
	Text     string `json:"text,omitempty"`
	Title    string `json:"title,omitempty"`
	Company  string `json:"company,omitempty"`
	Location string `json:"location,omitempty"`
}

// PendingClarification is the persisted state of an unresolved ambiguous
// command. At most one exists per user (unique user_id); a new ambiguous
// command overwrites the previous session.
type PendingClarification struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId"`
	Intent    Intent            `json:"intent"`
	Args      ClarificationArgs `json:"args"`
	Options   []CandidateOption `json:"options"`
	CreatedAt time.Time         `json:"createdAt"`
}
