package models

import "time"

// AuditAction mirrors the action column of the job_audit table.
type AuditAction string

const (
	AuditCreate    AuditAction = "CREATE"
	AuditUpdate    AuditAction = "UPDATE"
	AuditMoveStage AuditAction = "MOVE_STAGE"
	AuditArchive   AuditAction = "ARCHIVE"
	AuditRestore   AuditAction = "RESTORE"
	AuditComment   AuditAction = "COMMENT"
)

// AuditEntry is one trail record for an applied effect. Meta always carries
// the originating command's request id and channel.
type AuditEntry struct {
	ID        string                 `json:"id"`
	JobID     string                 `json:"jobId"`
	UserID    string                 `json:"userId"`
	Action    AuditAction            `json:"action"`
	FromStage string                 `json:"fromStage,omitempty"`
	ToStage   string                 `json:"toStage,omitempty"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

// DedupRecord marks a processed client request id. Rows are immutable and are
// never deleted by the engine outside the failure-rollback path.
type DedupRecord struct {
	RequestID string    `json:"requestId"`
	UserID    string    `json:"userId"`
	Status    string    `json:"status"` // APPLIED or IGNORED
	CreatedAt time.Time `json:"createdAt"`
}
