package risk

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mbd888/fraudscope/internal/logging"
	"github.com/mbd888/fraudscope/internal/metrics"
)

// PostgresStore persists assessments in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed audit store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the risk_assessments table if it doesn't exist.
// Mirrors migrations/00001_risk_assessments.sql.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS risk_assessments (
			id                VARCHAR(40) PRIMARY KEY,
			transaction_id    VARCHAR(32) NOT NULL,
			source            VARCHAR(10) NOT NULL CHECK (source IN ('local', 'remote')),
			step              INTEGER NOT NULL DEFAULT 0,
			amount            DOUBLE PRECISION NOT NULL DEFAULT 0,
			age               VARCHAR(16) NOT NULL DEFAULT '',
			gender            VARCHAR(16) NOT NULL DEFAULT '',
			merchant          VARCHAR(64) NOT NULL DEFAULT '',
			category          VARCHAR(64) NOT NULL DEFAULT '',
			fraud_probability NUMERIC(4,1) NOT NULL CHECK (fraud_probability >= 0 AND fraud_probability <= 100),
			risk_level        VARCHAR(10) NOT NULL CHECK (risk_level IN ('Low', 'Medium', 'High')),
			risk_color        VARCHAR(10) NOT NULL,
			confidence_score  INTEGER NOT NULL,
			recommendation    TEXT NOT NULL,
			action            VARCHAR(10) NOT NULL CHECK (action IN ('approve', 'review', 'block')),
			assessed_at       VARCHAR(40) NOT NULL,
			model_version     VARCHAR(16) NOT NULL,
			recorded_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_risk_assessments_recorded
			ON risk_assessments (recorded_at DESC);

		CREATE INDEX IF NOT EXISTS idx_risk_assessments_blocks
			ON risk_assessments (recorded_at DESC) WHERE action = 'block';
	`)
	return err
}

func (s *PostgresStore) Record(ctx context.Context, rec *AuditRecord) error {
	a := rec.Assessment
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO risk_assessments (
			id, transaction_id, source, step, amount, age, gender, merchant, category,
			fraud_probability, risk_level, risk_color, confidence_score, recommendation,
			action, assessed_at, model_version, recorded_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		rec.ID,
		a.TransactionID,
		string(rec.Source),
		rec.Input.Step,
		rec.Input.Amount,
		rec.Input.Age,
		rec.Input.Gender,
		rec.Input.Merchant,
		rec.Input.Category,
		a.FraudProbability,
		string(a.RiskLevel),
		a.RiskColor,
		a.ConfidenceScore,
		a.Recommendation,
		string(a.Action),
		a.Timestamp,
		a.ModelVersion,
		rec.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record risk assessment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]*AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, source, step, amount, age, gender, merchant, category,
		       fraud_probability, risk_level, risk_color, confidence_score, recommendation,
		       action, assessed_at, model_version, recorded_at
		FROM risk_assessments
		ORDER BY recorded_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list risk assessments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := collectRecords(ctx, rows)
	return result, rows.Err()
}

// auditRows is the part of *sql.Rows that collectRecords reads.
type auditRows interface {
	Next() bool
	Scan(dest ...any) error
}

// collectRecords reads every row, skipping rows that fail to scan.
func collectRecords(ctx context.Context, rows auditRows) []*AuditRecord {
	var result []*AuditRecord
	for rows.Next() {
		var (
			r          AuditRecord
			recordedAt time.Time
		)
		a := &r.Assessment
		if err := rows.Scan(
			&r.ID, &a.TransactionID, &r.Source,
			&r.Input.Step, &r.Input.Amount, &r.Input.Age, &r.Input.Gender, &r.Input.Merchant, &r.Input.Category,
			&a.FraudProbability, &a.RiskLevel, &a.RiskColor, &a.ConfidenceScore, &a.Recommendation,
			&a.Action, &a.Timestamp, &a.ModelVersion, &recordedAt,
		); err != nil {
			metrics.AuditReadErrors.Inc()
			logging.L(ctx).Warn("skipping unreadable audit row", "error", err)
			continue
		}
		a.Success = true
		r.RecordedAt = recordedAt
		result = append(result, &r)
	}
	return result
}

// Ping checks connectivity for health reporting.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
