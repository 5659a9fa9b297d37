package audit

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/authgate/authgate/models"
)

// PostgresSink persists audit records to PostgreSQL.
type PostgresSink struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresSink opens the database and ensures the audit table exists.
func NewPostgresSink(ctx context.Context, databaseURL string, logger *zap.Logger) (*PostgresSink, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit database ping failed: %w", err)
	}

	sink := &PostgresSink{db: db, logger: logger}
	if err := sink.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

// NewPostgresSinkWithDB wraps an existing connection. Used by tests.
func NewPostgresSinkWithDB(db *sql.DB, logger *zap.Logger) *PostgresSink {
	return &PostgresSink{db: db, logger: logger}
}

// Record implements Sink.
func (s *PostgresSink) Record(ctx context.Context, record *models.AuditRecord) error {
	query := `
		INSERT INTO auth_audit_log (correlation_id, user_id, tenant_id, decision, reason, method, path, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		record.CorrelationID,
		record.UserID,
		record.TenantID,
		string(record.Decision),
		record.Reason,
		record.Method,
		record.Path,
		record.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// Ping reports sink health for readiness checks.
func (s *PostgresSink) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *PostgresSink) Close() error {
	return s.db.Close()
}

func (s *PostgresSink) initSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS auth_audit_log (
			id BIGSERIAL PRIMARY KEY,
			correlation_id TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			tenant_id TEXT NOT NULL DEFAULT '',
			decision TEXT NOT NULL,
			reason TEXT NOT NULL,
			method TEXT NOT NULL,
			path TEXT NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize audit schema: %w", err)
	}
	s.logger.Info("audit schema initialized")
	return nil
}
