// Package server is the HTTP edge of the command engine: routing, schema
// validation, auth header extraction and health/metrics endpoints. All
// command semantics live below it in the engine package.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	apperrors "jobtrack-commands/internal/common/errors"
	"jobtrack-commands/internal/common/logger"
	"jobtrack-commands/internal/common/observability"
	"jobtrack-commands/internal/engine"
	"jobtrack-commands/internal/models"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBodyBytes = 64 << 10

// CommandHandler runs one command end to end.
type CommandHandler interface {
	Handle(ctx context.Context, userID string, req *models.CommandRequest) (*models.CommandResponse, error)
}

var _ CommandHandler = (*engine.Engine)(nil)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	RequestTimeout time.Duration
}

type Server struct {
	config   *Config
	commands CommandHandler
	postgres Pinger
	redis    Pinger
	errors   *apperrors.HTTPHandler
	obs      *observability.Observability
	logger   logger.Logger
}

func New(config *Config, commands CommandHandler, pg, redis Pinger, obs *observability.Observability, log logger.Logger) *Server {
	return &Server{
		config:   config,
		commands: commands,
		postgres: pg,
		redis:    redis,
		errors:   apperrors.NewHTTPHandler(log),
		obs:      obs,
		logger:   log.WithFields(map[string]interface{}{"component": "server"}),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/commands", s.handleCommands)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error": "missing X-User-Id header",
		})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.errors.Write(w, apperrors.NewValidationFailedError("unreadable request body"))
		return
	}
	if err := validateCommandBody(body); err != nil {
		s.errors.Write(w, err)
		return
	}

	var req models.CommandRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.errors.Write(w, apperrors.NewValidationFailedError("malformed request body"))
		return
	}

	ctx := r.Context()
	if s.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := s.commands.Handle(ctx, userID, &req)
	if err != nil {
		s.errors.Write(w, err)
		return
	}

	if s.obs != nil {
		s.obs.RecordCommandProcessed(ctx, res.Status)
		s.obs.RecordCommandDuration(ctx, time.Since(start), res.Status)
	}

	s.logger.Info("command handled", map[string]interface{}{
		"userId":    userID,
		"requestId": req.RequestID,
		"status":    res.Status,
	})
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleReady pings the stores the command path cannot run without.
// Elasticsearch is best-effort downstream, so it does not gate readiness.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.postgres.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "postgres unreachable",
		})
		return
	}
	if s.redis != nil {
		if err := s.redis.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"reason": "redis unreachable",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
