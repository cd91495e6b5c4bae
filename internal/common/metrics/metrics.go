// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CommandsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commands_processed_total",
			Help: "Total number of commands processed by outcome status",
		},
		[]string{"status"},
	)

	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "command_duration_seconds",
			Help: "Duration of command processing in seconds",
		},
		[]string{"status"},
	)

	ClarificationsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clarifications_resolved_total",
			Help: "Total number of clarification choices resolved by method",
		},
		[]string{"method"},
	)

	AuditEmitFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_emit_failures_total",
			Help: "Total number of audit emissions that failed",
		},
	)

	ParserFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intent_parser_failures_total",
			Help: "Total number of intent parser calls that failed open",
		},
		[]string{"reason"},
	)
)
