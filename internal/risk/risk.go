// Package risk implements the rule-based fraud scorer used by the dashboard.
//
// Every transaction is evaluated against three weighted tiers: amount,
// merchant, and category. A small uniform jitter is added before the score is
// clamped to [0, 1] and classified into Low, Medium or High risk. The same
// rules back both the prediction API and the fallback path used when the
// remote scoring endpoint is unreachable.
package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Level is the risk tier of an assessment.
type Level string

const (
	LevelLow    Level = "Low"
	LevelMedium Level = "Medium"
	LevelHigh   Level = "High"
)

// Action is the recommended handling for a transaction. It is the risk tier
// relabelled.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReview  Action = "review"
	ActionBlock   Action = "block"
)

// Default thresholds for risk classification. Both bounds are inclusive on
// the higher tier.
const (
	DefaultHighThreshold   = 0.8
	DefaultMediumThreshold = 0.3
)

// ModelVersion is reported on every assessment.
const ModelVersion = "1.0"

// Widths of the audit columns holding assessment strings, in bytes.
const (
	MaxTransactionIDLength = 32
	MaxTimestampLength     = 40
	MaxModelVersionLength  = 16
)

// Display colors per tier.
const (
	ColorLow    = "#28a745"
	ColorMedium = "#ffc107"
	ColorHigh   = "#dc3545"
)

// Recommendation texts per tier. Clients match on these verbatim.
const (
	RecommendationLow    = "APPROVE - Low fraud risk. Transaction can proceed normally."
	RecommendationMedium = "REVIEW REQUIRED - Medium fraud risk. Queue for manual review."
	RecommendationHigh   = "BLOCK TRANSACTION - High fraud risk detected. Immediate investigation required."
)

// TransactionInput carries the fields submitted by the dashboard form.
//
// step and amount may arrive as JSON numbers or as strings; anything that
// does not parse to a finite number decodes to zero and therefore
// contributes no risk. A step outside the int32 range also decodes to zero.
type TransactionInput struct {
	Step     int     `json:"step"`
	Amount   float64 `json:"amount"`
	Age      string  `json:"age"`
	Gender   string  `json:"gender"`
	Merchant string  `json:"merchant"`
	Category string  `json:"category"`
}

// UnmarshalJSON accepts numeric form fields encoded either as numbers or strings.
func (in *TransactionInput) UnmarshalJSON(data []byte) error {
	var raw struct {
		Step     json.RawMessage `json:"step"`
		Amount   json.RawMessage `json:"amount"`
		Age      string          `json:"age"`
		Gender   string          `json:"gender"`
		Merchant string          `json:"merchant"`
		Category string          `json:"category"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	in.Step = lenientStep(raw.Step)
	in.Amount = lenientNumber(raw.Amount)
	in.Age = raw.Age
	in.Gender = raw.Gender
	in.Merchant = raw.Merchant
	in.Category = raw.Category
	return nil
}

func lenientNumber(raw json.RawMessage) float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0
	}
	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
	} else {
		s = string(raw)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// lenientStep bounds step to the audit column's INTEGER range.
func lenientStep(raw json.RawMessage) int {
	f := lenientNumber(raw)
	if f < math.MinInt32 || f > math.MaxInt32 {
		return 0
	}
	return int(f)
}

// RiskAssessment is the result shown on the dashboard. Field names match the
// wire format of the remote prediction endpoint.
type RiskAssessment struct {
	Success          bool    `json:"success"`
	TransactionID    string  `json:"transaction_id"`
	FraudProbability float64 `json:"fraud_probability"` // percent, one decimal
	RiskLevel        Level   `json:"risk_level"`
	RiskColor        string  `json:"risk_color"`
	ConfidenceScore  int     `json:"confidence_score"` // percent, 75-98
	Recommendation   string  `json:"recommendation"`
	Action           Action  `json:"action"`
	Timestamp        string  `json:"timestamp"`
	ModelVersion     string  `json:"model_version"`
}

// Source records which scorer produced an assessment.
type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// AuditRecord is a persisted assessment together with the input it scored.
type AuditRecord struct {
	ID         string           `json:"id"`
	Source     Source           `json:"source"`
	Input      TransactionInput `json:"input"`
	Assessment RiskAssessment   `json:"assessment"`
	RecordedAt time.Time        `json:"recordedAt"`
}

// Store persists assessments for the audit trail.
type Store interface {
	Record(ctx context.Context, rec *AuditRecord) error
	ListRecent(ctx context.Context, limit int) ([]*AuditRecord, error)
}
