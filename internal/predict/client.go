// Package predict submits transactions to the remote scoring endpoint and
// falls back to the local rule engine when the endpoint cannot be reached.
//
// The two failure classes are handled differently. A TransportError
// (network failure, timeout, non-2xx status) is logged and replaced by a
// local assessment, and so is a 2xx body that is not JSON at all. An
// ApplicationError (success:false, or JSON that is not a usable assessment)
// is returned to the caller unchanged. A transaction that cannot be encoded
// is scored locally without contacting the endpoint.
package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mbd888/fraudscope/internal/circuitbreaker"
	"github.com/mbd888/fraudscope/internal/idgen"
	"github.com/mbd888/fraudscope/internal/logging"
	"github.com/mbd888/fraudscope/internal/metrics"
	"github.com/mbd888/fraudscope/internal/risk"
	"github.com/mbd888/fraudscope/internal/traces"
)

// DefaultTimeout bounds a single remote call.
const DefaultTimeout = 5 * time.Second

// maxResponseBytes caps how much of a remote body is read.
const maxResponseBytes = 1 << 20

// Fallback reasons reported in Outcome and metrics.
const (
	ReasonDisabled    = "disabled"
	ReasonBreakerOpen = "breaker_open"
	ReasonTransport   = "transport_error"
	ReasonEncode      = "encode_error"
)

// Scorer is the local rule engine.
type Scorer interface {
	Assess(ctx context.Context, in *risk.TransactionInput) *risk.RiskAssessment
}

// Outcome is the result of Predict.
type Outcome struct {
	Assessment     *risk.RiskAssessment
	Source         risk.Source
	FallbackReason string // empty when Source is remote
}

// Client calls the remote endpoint with a local fallback.
type Client struct {
	endpoint   string // full URL of the predict route, empty when disabled
	breakerKey string
	httpClient *http.Client
	local      Scorer
	breaker    *circuitbreaker.Breaker
	store      risk.Store
	now        func() time.Time
}

// New creates a client. An empty baseURL disables the remote call and every
// prediction is served locally.
func New(baseURL string, timeout time.Duration, local Scorer) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		local:      local,
		now:        time.Now,
	}
	if baseURL != "" {
		c.endpoint = strings.TrimRight(baseURL, "/") + "/api/predict"
		if u, err := url.Parse(baseURL); err == nil {
			c.breakerKey = u.Host
		} else {
			c.breakerKey = baseURL
		}
	}
	return c
}

// WithBreaker skips the remote call while the breaker is open.
func (c *Client) WithBreaker(b *circuitbreaker.Breaker) *Client {
	c.breaker = b
	return c
}

// WithStore records remote assessments in the audit trail. Local
// assessments are recorded by the engine itself.
func (c *Client) WithStore(s risk.Store) *Client {
	c.store = s
	return c
}

// WithHTTPClient replaces the HTTP client. Its timeout is used as is.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// RemoteEnabled reports whether a remote endpoint is configured.
func (c *Client) RemoteEnabled() bool { return c.endpoint != "" }

// Endpoint returns the breaker key of the remote endpoint.
func (c *Client) Endpoint() string { return c.breakerKey }

// Predict scores in through the remote endpoint, falling back to the local
// scorer on transport failures. An ApplicationError is returned as is.
func (c *Client) Predict(ctx context.Context, in *risk.TransactionInput) (*Outcome, error) {
	if !c.RemoteEnabled() {
		return c.fallback(ctx, in, ReasonDisabled), nil
	}
	body, err := json.Marshal(in)
	if err != nil {
		logging.L(ctx).Warn("transaction not encodable, using local scorer", "error", err)
		return c.fallback(ctx, in, ReasonEncode), nil
	}
	if c.breaker != nil && !c.breaker.Allow(c.breakerKey) {
		return c.fallback(ctx, in, ReasonBreakerOpen), nil
	}

	assessment, err := c.attempt(ctx, in, body)
	switch {
	case err == nil:
		c.recordBreaker(true)
		metrics.PredictionsTotal.WithLabelValues(string(risk.SourceRemote)).Inc()
		metrics.AssessmentsTotal.WithLabelValues(string(risk.SourceRemote), string(assessment.RiskLevel)).Inc()
		c.audit(ctx, in, assessment)
		return &Outcome{Assessment: assessment, Source: risk.SourceRemote}, nil
	case IsTransport(err):
		c.recordBreaker(false)
		logging.L(ctx).Info("remote scoring unavailable, using local scorer", "error", err)
		return c.fallback(ctx, in, ReasonTransport), nil
	default:
		// the endpoint answered, so it counts as reachable
		c.recordBreaker(true)
		metrics.PredictionsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
}

// attempt makes one remote call. It returns a *TransportError or an
// *ApplicationError on failure.
func (c *Client) attempt(ctx context.Context, in *risk.TransactionInput, body []byte) (*risk.RiskAssessment, error) {
	if !c.RemoteEnabled() {
		return nil, ErrRemoteDisabled
	}

	ctx, span := traces.StartSpan(ctx, "predict.remote",
		traces.Source(string(risk.SourceRemote)),
		traces.Merchant(in.Merchant),
		traces.Category(in.Category),
	)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if reqID := logging.RequestID(ctx); reqID != "" {
		req.Header.Set("X-Request-ID", reqID)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.RemoteLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		traces.RecordError(span, err)
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		traces.RecordError(span, err)
		return nil, &TransportError{StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		terr := &TransportError{StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
		traces.RecordError(span, terr)
		return nil, terr
	}

	assessment, err := decodeAssessment(raw)
	if err != nil {
		traces.RecordError(span, err)
		return nil, err
	}
	return assessment, nil
}

func (c *Client) fallback(ctx context.Context, in *risk.TransactionInput, reason string) *Outcome {
	if reason != ReasonDisabled {
		metrics.FallbacksTotal.WithLabelValues(reason).Inc()
	}
	metrics.PredictionsTotal.WithLabelValues(string(risk.SourceLocal)).Inc()
	return &Outcome{
		Assessment:     c.local.Assess(ctx, in),
		Source:         risk.SourceLocal,
		FallbackReason: reason,
	}
}

func (c *Client) recordBreaker(ok bool) {
	if c.breaker == nil {
		return
	}
	if ok {
		c.breaker.Success(c.breakerKey)
	} else {
		c.breaker.Failure(c.breakerKey)
	}
}

func (c *Client) audit(ctx context.Context, in *risk.TransactionInput, a *risk.RiskAssessment) {
	if c.store == nil {
		return
	}
	rec := &risk.AuditRecord{
		ID:         idgen.WithPrefix("aud_"),
		Source:     risk.SourceRemote,
		Input:      *in,
		Assessment: *a,
		RecordedAt: c.now().UTC(),
	}
	logger := logging.L(ctx)
	go func() {
		if err := c.store.Record(context.Background(), rec); err != nil {
			metrics.AuditWriteErrors.Inc()
			logger.Warn("failed to record remote assessment", "id", rec.ID, "error", err)
		}
	}()
}

// wireAssessment is the remote response. The remote service reports the
// confidence as a float and may omit the zone from its timestamp.
type wireAssessment struct {
	Success          *bool    `json:"success"`
	Error            string   `json:"error"`
	TransactionID    string   `json:"transaction_id"`
	FraudProbability *float64 `json:"fraud_probability"`
	RiskLevel        string   `json:"risk_level"`
	RiskColor        string   `json:"risk_color"`
	ConfidenceScore  float64  `json:"confidence_score"`
	Recommendation   string   `json:"recommendation"`
	Action           string   `json:"action"`
	Timestamp        string   `json:"timestamp"`
	ModelVersion     string   `json:"model_version"`
}

func decodeAssessment(raw []byte) (*risk.RiskAssessment, error) {
	var w wireAssessment
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, &TransportError{StatusCode: http.StatusOK, Err: fmt.Errorf("decode response: %w", err)}
	}
	if w.Success == nil || !*w.Success {
		msg := w.Error
		if msg == "" {
			msg = "Prediction failed"
		}
		return nil, &ApplicationError{Message: msg}
	}

	level := risk.Level(w.RiskLevel)
	switch level {
	case risk.LevelLow, risk.LevelMedium, risk.LevelHigh:
	default:
		return nil, &ApplicationError{Message: fmt.Sprintf("Invalid risk level %q from scoring service", w.RiskLevel)}
	}
	if w.FraudProbability == nil {
		return nil, &ApplicationError{Message: "Missing fraud probability from scoring service"}
	}
	p := *w.FraudProbability
	if math.IsNaN(p) || p < 0 || p > 100 {
		return nil, &ApplicationError{Message: fmt.Sprintf("Fraud probability %v out of range from scoring service", p)}
	}
	for _, f := range []struct {
		name, value string
		max         int
	}{
		{"transaction id", w.TransactionID, risk.MaxTransactionIDLength},
		{"timestamp", w.Timestamp, risk.MaxTimestampLength},
		{"model version", w.ModelVersion, risk.MaxModelVersionLength},
	} {
		if len(f.value) > f.max {
			return nil, &ApplicationError{Message: fmt.Sprintf("Invalid %s from scoring service", f.name)}
		}
	}

	// action always follows the tier, whatever the remote sent
	a := &risk.RiskAssessment{
		Success:          true,
		TransactionID:    w.TransactionID,
		FraudProbability: p,
		RiskLevel:        level,
		RiskColor:        w.RiskColor,
		ConfidenceScore:  int(math.Round(math.Min(math.Max(w.ConfidenceScore, 0), 100))),
		Recommendation:   w.Recommendation,
		Action:           level.Action(),
		Timestamp:        w.Timestamp,
		ModelVersion:     w.ModelVersion,
	}
	if !hexColor.MatchString(a.RiskColor) {
		a.RiskColor = level.Color()
	}
	if a.Recommendation == "" {
		a.Recommendation = level.Recommendation()
	}
	if a.ModelVersion == "" {
		a.ModelVersion = risk.ModelVersion
	}
	return a, nil
}

// hexColor matches #rgb, #rgba, #rrggbb and #rrggbbaa.
var hexColor = regexp.MustCompile(`^#([0-9a-fA-F]{3,4}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)
