// Package audit records every allow/deny decision the gateway makes.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/authgate/authgate/models"
)

// Sink receives authorization decisions. Implementations must not block the
// request path on failure; a failed write is logged, not propagated.
type Sink interface {
	Record(ctx context.Context, record *models.AuditRecord) error
}

// LogSink writes audit records as structured log lines.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Record implements Sink.
func (s *LogSink) Record(_ context.Context, record *models.AuditRecord) error {
	s.logger.Info("authorization decision",
		zap.String("correlation_id", record.CorrelationID),
		zap.String("user_id", record.UserID),
		zap.String("tenant_id", record.TenantID),
		zap.String("decision", string(record.Decision)),
		zap.String("reason", record.Reason),
		zap.String("method", record.Method),
		zap.String("path", record.Path),
		zap.Time("occurred_at", record.OccurredAt))
	return nil
}

// MultiSink fans a record out to several sinks.
type MultiSink struct {
	sinks  []Sink
	logger *zap.Logger
}

// NewMultiSink creates a MultiSink.
func NewMultiSink(logger *zap.Logger, sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks, logger: logger}
}

// Record implements Sink. Individual sink failures are logged and swallowed
// so one slow or broken sink cannot fail the request.
func (s *MultiSink) Record(ctx context.Context, record *models.AuditRecord) error {
	for _, sink := range s.sinks {
		if err := sink.Record(ctx, record); err != nil {
			s.logger.Error("audit sink write failed", zap.Error(err))
		}
	}
	return nil
}

// NewRecord builds an audit record with the timestamp filled in.
func NewRecord(correlationID string, p *models.Principal, decision models.AuditDecision, reason, method, path string) *models.AuditRecord {
	record := &models.AuditRecord{
		CorrelationID: correlationID,
		Decision:      decision,
		Reason:        reason,
		Method:        method,
		Path:          path,
		OccurredAt:    time.Now().UTC(),
	}
	if p != nil {
		record.UserID = p.UserID
		record.TenantID = p.TenantID
	}
	return record
}
