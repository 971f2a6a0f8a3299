package risk

import (
	"context"
	"math"
	"time"

	"github.com/mbd888/fraudscope/internal/idgen"
	"github.com/mbd888/fraudscope/internal/logging"
	"github.com/mbd888/fraudscope/internal/metrics"
	"github.com/mbd888/fraudscope/internal/traces"
)

// Tier weights.
const (
	weightAmountHigh   = 0.4
	weightAmountMedium = 0.25
	weightAmountLow    = 0.1

	weightMerchantHigh   = 0.35
	weightMerchantMedium = 0.2

	weightCategoryHigh   = 0.15
	weightCategoryMedium = 0.08
)

// Amount tier boundaries (exclusive).
const (
	amountHigh   = 1000
	amountMedium = 500
	amountLow    = 100
)

// Lookup tables. Never mutated after init.
var (
	highRiskMerchants = map[string]bool{
		"M480139044":  true,
		"M2080738506": true,
		"M749144843":  true,
	}
	mediumRiskMerchants = map[string]bool{
		"M1823072687": true,
		"M1841913607": true,
	}
	highRiskCategories = map[string]bool{
		"es_tech":          true,
		"es_travel":        true,
		"es_sportsandtoys": true,
	}
	mediumRiskCategories = map[string]bool{
		"es_health":  true,
		"es_fashion": true,
	}
)

// timestampLayout matches the millisecond ISO form browsers emit.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Engine scores transactions with the additive rule set.
type Engine struct {
	store           Store
	jitter          Jitter
	now             func() time.Time
	highThreshold   float64
	mediumThreshold float64
}

// NewEngine creates a scorer backed by the given audit store. store may be nil.
func NewEngine(store Store) *Engine {
	return &Engine{
		store:           store,
		jitter:          NewUniformJitter(0),
		now:             time.Now,
		highThreshold:   DefaultHighThreshold,
		mediumThreshold: DefaultMediumThreshold,
	}
}

// WithJitter overrides the noise source.
func (e *Engine) WithJitter(j Jitter) *Engine {
	e.jitter = j
	return e
}

// WithClock overrides the clock used for transaction ids and timestamps.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// WithHighThreshold overrides the default High threshold.
func (e *Engine) WithHighThreshold(t float64) *Engine {
	e.highThreshold = t
	return e
}

// WithMediumThreshold overrides the default Medium threshold.
func (e *Engine) WithMediumThreshold(t float64) *Engine {
	e.mediumThreshold = t
	return e
}

// Assess scores a transaction. It never fails.
func (e *Engine) Assess(ctx context.Context, in *TransactionInput) *RiskAssessment {
	ctx, span := traces.StartSpan(ctx, "risk.assess",
		traces.Merchant(in.Merchant),
		traces.Category(in.Category),
	)
	defer span.End()

	p := Probability(in, e.jitter.Next())
	now := e.now().UTC()

	assessment := e.build(p, now)

	metrics.AssessmentsTotal.WithLabelValues(string(SourceLocal), string(assessment.RiskLevel)).Inc()
	logging.L(ctx).Debug("transaction scored",
		"transaction_id", assessment.TransactionID,
		"probability", p,
		"amount", in.Amount,
		"risk_level", assessment.RiskLevel,
	)

	if e.store != nil {
		rec := &AuditRecord{
			ID:         idgen.WithPrefix("aud_"),
			Source:     SourceLocal,
			Input:      *in,
			Assessment: *assessment,
			RecordedAt: now,
		}
		logger := logging.L(ctx)
		go func() {
			if err := e.store.Record(context.Background(), rec); err != nil {
				metrics.AuditWriteErrors.Inc()
				logger.Warn("failed to record assessment", "id", rec.ID, "error", err)
			}
		}()
	}

	return assessment
}

func (e *Engine) build(p float64, now time.Time) *RiskAssessment {
	level := classify(p, e.highThreshold, e.mediumThreshold)
	return &RiskAssessment{
		Success:          true,
		TransactionID:    TransactionID(now),
		FraudProbability: math.Round(p*100*10) / 10,
		RiskLevel:        level,
		RiskColor:        level.Color(),
		ConfidenceScore:  Confidence(p),
		Recommendation:   level.Recommendation(),
		Action:           level.Action(),
		Timestamp:        now.Format(timestampLayout),
		ModelVersion:     ModelVersion,
	}
}

// Probability returns the clamped fraud probability for a transaction given
// a jitter offset.
func Probability(in *TransactionInput, jitter float64) float64 {
	score := amountWeight(in.Amount) +
		merchantWeight(in.Merchant) +
		categoryWeight(in.Category) +
		jitter

	if score > 1.0 {
		score = 1.0
	}
	if score < 0.0 || math.IsNaN(score) {
		score = 0.0
	}
	return score
}

func amountWeight(amount float64) float64 {
	switch {
	case amount > amountHigh:
		return weightAmountHigh
	case amount > amountMedium:
		return weightAmountMedium
	case amount > amountLow:
		return weightAmountLow
	default:
		return 0
	}
}

func merchantWeight(merchant string) float64 {
	switch {
	case highRiskMerchants[merchant]:
		return weightMerchantHigh
	case mediumRiskMerchants[merchant]:
		return weightMerchantMedium
	default:
		return 0
	}
}

func categoryWeight(category string) float64 {
	switch {
	case highRiskCategories[category]:
		return weightCategoryHigh
	case mediumRiskCategories[category]:
		return weightCategoryMedium
	default:
		return 0
	}
}

// Classify maps a probability to its tier using the default thresholds.
func Classify(p float64) Level {
	return classify(p, DefaultHighThreshold, DefaultMediumThreshold)
}

func classify(p, high, medium float64) Level {
	switch {
	case p >= high:
		return LevelHigh
	case p >= medium:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Confidence returns how far p is from the 0.5 midpoint, as an integer
// percentage clamped to [75, 98].
func Confidence(p float64) int {
	c := 1 - math.Abs(p-0.5)
	if c < 0.75 {
		c = 0.75
	}
	if c > 0.98 {
		c = 0.98
	}
	return int(math.Round(c * 100))
}

// TransactionID formats t as TXN followed by 14 digits (YYYYMMDDhhmmss, UTC).
// Two calls within the same second return the same id.
func TransactionID(t time.Time) string {
	return "TXN" + t.UTC().Format("20060102150405")
}

// Color returns the display color for the tier.
func (l Level) Color() string {
	switch l {
	case LevelHigh:
		return ColorHigh
	case LevelMedium:
		return ColorMedium
	default:
		return ColorLow
	}
}

// Recommendation returns the fixed recommendation text for the tier.
func (l Level) Recommendation() string {
	switch l {
	case LevelHigh:
		return RecommendationHigh
	case LevelMedium:
		return RecommendationMedium
	default:
		return RecommendationLow
	}
}

// Action returns the recommended action for the tier.
func (l Level) Action() Action {
	switch l {
	case LevelHigh:
		return ActionBlock
	case LevelMedium:
		return ActionReview
	default:
		return ActionApprove
	}
}

// IsHighRiskMerchant reports whether merchant is in the high-risk table.
func IsHighRiskMerchant(merchant string) bool { return highRiskMerchants[merchant] }

// IsHighRiskCategory reports whether category is in the high-risk table.
func IsHighRiskCategory(category string) bool { return highRiskCategories[category] }
