// Package dashboard serves the fraud dashboard page and its JSON API.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/fraudscope/internal/catalog"
	"github.com/mbd888/fraudscope/internal/charts"
	"github.com/mbd888/fraudscope/internal/health"
	"github.com/mbd888/fraudscope/internal/logging"
	"github.com/mbd888/fraudscope/internal/predict"
	"github.com/mbd888/fraudscope/internal/risk"
	"github.com/mbd888/fraudscope/internal/validation"
)

// Error bodies. The prediction routes keep the {success:false,error} shape
// the page script checks.
const (
	errPredictionFailed = "Internal server error during prediction"
	errInvalidBody      = "Request body must be a JSON object"
	errEndpointNotFound = "Endpoint not found"
)

// Predictor scores with the remote endpoint and falls back locally.
type Predictor interface {
	Predict(ctx context.Context, in *risk.TransactionInput) (*predict.Outcome, error)
	RemoteEnabled() bool
}

// Broadcaster publishes dashboard activity to realtime clients.
type Broadcaster interface {
	BroadcastAssessment(in *risk.TransactionInput, a *risk.RiskAssessment, source risk.Source)
	BroadcastChartsRebuilt(names []string)
}

// Handler provides the dashboard routes.
type Handler struct {
	scorer    predict.Scorer
	predictor Predictor
	store     risk.Store
	charts    *charts.Manager
	hub       Broadcaster
	health    *health.Registry
}

// NewHandler creates a handler. scorer serves /api/predict, predictor
// serves /api/assess.
func NewHandler(scorer predict.Scorer, predictor Predictor) *Handler {
	return &Handler{
		scorer:    scorer,
		predictor: predictor,
	}
}

// WithStore enables /api/assessments.
func (h *Handler) WithStore(s risk.Store) *Handler {
	h.store = s
	return h
}

// WithCharts enables the chart routes.
func (h *Handler) WithCharts(m *charts.Manager) *Handler {
	h.charts = m
	return h
}

// WithHub publishes assessments and rebuilds to realtime clients.
func (h *Handler) WithHub(b Broadcaster) *Handler {
	h.hub = b
	return h
}

// WithHealth adds dependency checks to /api/health.
func (h *Handler) WithHealth(r *health.Registry) *Handler {
	h.health = r
	return h
}

// RegisterRoutes sets up the page, the JSON API and the chart images.
// scoring runs in front of the two scoring routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, scoring ...gin.HandlerFunc) {
	r.GET("/", h.Page)

	api := r.Group("/api")
	api.POST("/predict", chain(scoring, h.Predict)...)
	api.POST("/assess", chain(scoring, h.Assess)...)
	api.GET("/stats", h.Stats)
	api.GET("/health", h.Health)
	api.GET("/merchants", h.Merchants)
	api.GET("/categories", h.Categories)
	api.GET("/assessments", h.Assessments)
	api.GET("/charts", h.Charts)
	api.POST("/charts/rebuild", h.RebuildCharts)

	r.GET("/charts/:file", h.ChartImage)
}

func chain(mw []gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
	return append(append([]gin.HandlerFunc(nil), mw...), h)
}

// NotFound is the catch-all for unknown routes.
func NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": errEndpointNotFound})
}

// bindTransaction decodes a scoring request. It writes the error response
// and returns false when the body is unusable.
func bindTransaction(c *gin.Context) (*risk.TransactionInput, bool) {
	raw, err := c.GetRawData()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"success": false, "error": "Request body too large"})
			return nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": errInvalidBody})
		return nil, false
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil || body == nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": errInvalidBody})
		return nil, false
	}
	if missing := validation.FirstMissing(body, validation.TransactionFields); missing != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": missing.Message})
		return nil, false
	}

	var in risk.TransactionInput
	if err := json.Unmarshal(raw, &in); err != nil {
		// a field of the wrong JSON type, e.g. "merchant": 7
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": errInvalidBody})
		return nil, false
	}
	if errs := validation.TransactionStrings(in.Age, in.Gender, in.Merchant, in.Category); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": errs.Error()})
		return nil, false
	}
	return &in, true
}

// Predict scores a transaction with the local rules.
func (h *Handler) Predict(c *gin.Context) {
	in, ok := bindTransaction(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	a := h.scorer.Assess(ctx, in)
	if a == nil {
		logging.L(ctx).Error("scorer returned no assessment", "merchant", in.Merchant)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": errPredictionFailed})
		return
	}

	logging.L(ctx).Info("fraud prediction",
		"transaction_id", a.TransactionID,
		"probability", a.FraudProbability,
		"amount", in.Amount,
	)
	if h.hub != nil {
		h.hub.BroadcastAssessment(in, a, risk.SourceLocal)
	}
	c.JSON(http.StatusOK, a)
}

type assessResponse struct {
	*risk.RiskAssessment
	Source         risk.Source `json:"source"`
	FallbackReason string      `json:"fallback_reason,omitempty"`
}

// Assess is the dashboard submit flow: remote scoring when configured,
// local rules otherwise.
func (h *Handler) Assess(c *gin.Context) {
	in, ok := bindTransaction(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	out, err := h.predictor.Predict(ctx, in)
	if err != nil {
		var appErr *predict.ApplicationError
		if errors.As(err, &appErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "error": appErr.Message})
			return
		}
		logging.L(ctx).Error("prediction failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": errPredictionFailed})
		return
	}

	if h.hub != nil {
		h.hub.BroadcastAssessment(in, out.Assessment, out.Source)
	}
	c.JSON(http.StatusOK, assessResponse{
		RiskAssessment: out.Assessment,
		Source:         out.Source,
		FallbackReason: out.FallbackReason,
	})
}

// Stats returns the model evaluation figures.
func (h *Handler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, catalog.ModelStats())
}

// Health reports service status. It is 503 only when a critical check fails.
func (h *Handler) Health(c *gin.Context) {
	status, code := "healthy", http.StatusOK
	body := gin.H{
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"model_loaded": h.predictor != nil && h.predictor.RemoteEnabled(),
		"version":      risk.ModelVersion,
	}

	if h.health != nil {
		report := h.health.Check(c.Request.Context())
		switch {
		case !report.Healthy:
			status, code = "unhealthy", http.StatusServiceUnavailable
		case report.Degraded:
			status = "degraded"
		}
		body["checks"] = report.Checks
	}

	body["status"] = status
	c.JSON(code, body)
}

// Merchants returns the merchant pick list.
func (h *Handler) Merchants(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"merchants": catalog.Merchants(),
		"high_risk": catalog.HighRiskMerchants(),
	})
}

// Categories returns the category pick list.
func (h *Handler) Categories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"categories": catalog.Categories(),
		"high_risk":  catalog.HighRiskCategories(),
	})
}

// Assessments returns the most recent audit records, newest first.
func (h *Handler) Assessments(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusOK, gin.H{"assessments": []*risk.AuditRecord{}, "count": 0})
		return
	}

	limit := parseLimit(c, 20, 100)
	records, err := h.store.ListRecent(c.Request.Context(), limit)
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to list assessments", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Failed to list assessments"})
		return
	}
	if records == nil {
		records = []*risk.AuditRecord{}
	}

	c.JSON(http.StatusOK, gin.H{
		"assessments": records,
		"count":       len(records),
	})
}

// Charts lists the live charts.
func (h *Handler) Charts(c *gin.Context) {
	names := []string{}
	if h.charts != nil {
		names = h.charts.Names()
	}
	c.JSON(http.StatusOK, gin.H{"charts": names, "count": len(names)})
}

// RebuildCharts tears down every chart and builds them again.
func (h *Handler) RebuildCharts(c *gin.Context) {
	if h.charts == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "charts_disabled", "message": "Charts are not configured"})
		return
	}

	ctx := c.Request.Context()
	if err := h.charts.RebuildAll(ctx, charts.DefaultSpecs()); err != nil {
		if errors.Is(err, charts.ErrRendererUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "renderer_unavailable", "message": "Chart renderer is unavailable"})
			return
		}
		logging.L(ctx).Error("chart rebuild failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Chart rebuild failed"})
		return
	}

	names := h.charts.Names()
	if h.hub != nil {
		h.hub.BroadcastChartsRebuilt(names)
	}
	c.JSON(http.StatusOK, gin.H{"charts": names, "count": len(names)})
}

// ChartImage serves /charts/<name>.png.
func (h *Handler) ChartImage(c *gin.Context) {
	name, ok := strings.CutSuffix(c.Param("file"), ".png")
	if !ok || name == "" || h.charts == nil {
		NotFound(c)
		return
	}

	png, err := h.charts.PNG(name)
	if err != nil {
		if errors.Is(err, charts.ErrNotFound) {
			NotFound(c)
			return
		}
		logging.L(c.Request.Context()).Error("failed to render chart", "chart", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Failed to render chart"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func parseLimit(c *gin.Context, defaultVal, maxVal int) int {
	limit := defaultVal
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxVal {
		limit = maxVal
	}
	return limit
}
