// Package audit writes the per-effect trail. The Postgres row is the record
// of truth; a copy is indexed into Elasticsearch for the ops search UI when a
// client is configured. Audit failures never fail the command that produced
// them, but they are logged and counted.
package audit

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"time"

	apperrors "jobtrack-commands/internal/common/errors"
	"jobtrack-commands/internal/common/logger"
	"jobtrack-commands/internal/common/metrics"
	"jobtrack-commands/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"
)

type Sink struct {
	db     *sql.DB
	es     *elasticsearch.Client // nil when audit search indexing is disabled
	index  string
	logger logger.Logger
}

func NewSink(db *sql.DB, es *elasticsearch.Client, index string, log logger.Logger) *Sink {
	return &Sink{
		db:     db,
		es:     es,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "audit"}),
	}
}

// Record writes one audit entry. Called once per applied effect, before the
// HTTP response is sent; Meta carries the originating request id and channel.
func (s *Sink) Record(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	metaJSON, err := json.Marshal(entry.Meta)
	if err != nil {
		metaJSON = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO job_audit (id, job_id, user_id, action, from_stage, to_stage, meta, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8)`,
		entry.ID, entry.JobID, entry.UserID, string(entry.Action),
		entry.FromStage, entry.ToStage, metaJSON, entry.CreatedAt)
	if err != nil {
		metrics.AuditEmitFailures.Inc()
		return apperrors.NewAuditWriteFailedError(err)
	}

	s.indexDocument(ctx, entry)
	return nil
}

// indexDocument mirrors the entry into the search index, best-effort.
func (s *Sink) indexDocument(ctx context.Context, entry *models.AuditEntry) {
	if s.es == nil {
		return
	}

	doc, err := json.Marshal(entry)
	if err != nil {
		return
	}

	res, err := s.es.Index(
		s.index,
		bytes.NewReader(doc),
		s.es.Index.WithContext(ctx),
		s.es.Index.WithDocumentID(entry.ID),
	)
	if err != nil {
		s.logger.Warn("audit index failed", map[string]interface{}{
			"auditId": entry.ID,
			"error":   err.Error(),
		})
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		s.logger.Warn("audit index rejected", map[string]interface{}{
			"auditId": entry.ID,
			"status":  res.Status(),
		})
	}
}
