package models

// Intent is the normalized action a command requests.
type Intent string

const (
	IntentCreate    Intent = "CREATE"
	IntentUpdate    Intent = "UPDATE"
	IntentMoveStage Intent = "MOVE_STAGE"
	IntentArchive   Intent = "ARCHIVE"
	IntentRestore   Intent = "RESTORE"
	IntentComment   Intent = "COMMENT"
)

// Valid reports whether i is one of the known intents.
func (i Intent) Valid() bool {
	switch i {
	case IntentCreate, IntentUpdate, IntentMoveStage, IntentArchive, IntentRestore, IntentComment:
		return true
	}
	return false
}

// Response status discriminators. All three are HTTP 200 outcomes.
const (
	StatusApplied           = "APPLIED"
	StatusIgnoredDuplicate  = "IGNORED_DUPLICATE"
	StatusNeedClarification = "NEED_CLARIFICATION"
)

// CommandRequest is the body of POST /commands. The request arrives
// pre-authenticated; the user id travels out of band (X-User-Id).
type CommandRequest struct {
	Channel         string `json:"channel"`
	Transcript      string `json:"transcript"`
	RequestID       string `json:"requestId"`
	ClarificationID string `json:"clarificationId,omitempty"`
	Choice          string `json:"choice,omitempty"`
	Stage           string `json:"stage,omitempty"`
}

// Effect describes one applied state change.
type Effect struct {
	Type      string `json:"type"`
	JobID     string `json:"jobId"`
	To        string `json:"to,omitempty"`
	CommentID string `json:"commentId,omitempty"`
}

// CommandResponse is the uniform response shape for all non-error outcomes.
type CommandResponse struct {
	Status          string            `json:"status"`
	RequestID       string            `json:"requestId,omitempty"`
	ClarificationID string            `json:"clarificationId,omitempty"`
	Question        string            `json:"question,omitempty"`
	Options         []CandidateOption `json:"options,omitempty"`
	Effects         []Effect          `json:"effects,omitempty"`
}
