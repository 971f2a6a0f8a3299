package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/fraudscope/internal/dashboard"
	"github.com/mbd888/fraudscope/internal/predict"
	"github.com/mbd888/fraudscope/internal/risk"
)

// --- Test helpers ---

func newTestSetup(t *testing.T, handler http.Handler) *Handlers {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewHandlers(NewFraudscopeClient(Config{APIURL: ts.URL}))
}

func makeRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content block")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

func jsonHandler(status int, body any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func validArgs() map[string]any {
	return map[string]any{
		"step":     1.0,
		"amount":   1500.0,
		"age":      "2",
		"gender":   "F",
		"merchant": "M480139044",
		"category": "es_tech",
	}
}

// ============================================================
// Client tests
// ============================================================

func TestClient_DoRequest_HTTPError_WithMessage(t *testing.T) {
	ts := httptest.NewServer(jsonHandler(http.StatusInternalServerError, map[string]any{
		"error":   "internal_error",
		"message": "Failed to list assessments",
	}))
	defer ts.Close()

	client := NewFraudscopeClient(Config{APIURL: ts.URL})
	_, err := client.RecentAssessments(context.Background(), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "Failed to list assessments")
}

func TestClient_DoRequest_HTTPError_SuccessFalseShape(t *testing.T) {
	ts := httptest.NewServer(jsonHandler(http.StatusBadRequest, map[string]any{
		"error": "Missing required field: merchant",
	}))
	defer ts.Close()

	client := NewFraudscopeClient(Config{APIURL: ts.URL})
	_, err := client.AssessTransaction(context.Background(), Transaction{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "Missing required field: merchant")
}

func TestClient_DoRequest_HTTPError_NonJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream timeout"))
	}))
	defer ts.Close()

	client := NewFraudscopeClient(Config{APIURL: ts.URL})
	_, err := client.GetModelStats(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream timeout")
}

func TestClient_DoRequest_ConnectionRefused(t *testing.T) {
	client := NewFraudscopeClient(Config{APIURL: "http://127.0.0.1:1", Timeout: time.Second})
	_, err := client.ListMerchants(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestClient_AssessTransaction_SendsBody(t *testing.T) {
	var gotPath, gotMethod, gotContentType string
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		gotContentType = r.Header.Get("Content-Type")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewFraudscopeClient(Config{APIURL: ts.URL})
	_, err := client.AssessTransaction(context.Background(), Transaction{
		Step: 3, Amount: 42.5, Age: "4", Gender: "M", Merchant: "M348934600", Category: "es_food",
	})
	require.NoError(t, err)
	assert.Equal(t, "/api/assess", gotPath)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, 3.0, gotBody["step"])
	assert.Equal(t, 42.5, gotBody["amount"])
	assert.Equal(t, "es_food", gotBody["category"])
}

func TestClient_RecentAssessments_Query(t *testing.T) {
	var gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"assessments":[],"count":0}`))
	}))
	defer ts.Close()

	client := NewFraudscopeClient(Config{APIURL: ts.URL})
	_, err := client.RecentAssessments(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "limit=7", gotQuery)

	_, err = client.RecentAssessments(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, gotQuery)
}

func TestClient_GetHealth_Unhealthy(t *testing.T) {
	ts := httptest.NewServer(jsonHandler(http.StatusServiceUnavailable, map[string]any{"status": "unhealthy"}))
	defer ts.Close()

	client := NewFraudscopeClient(Config{APIURL: ts.URL})
	_, err := client.GetHealth(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

// ============================================================
// Handler tests
// ============================================================

func TestHandleAssessTransaction_Success(t *testing.T) {
	h := newTestSetup(t, jsonHandler(http.StatusOK, map[string]any{
		"success":           true,
		"transaction_id":    "TXN_20240115143000",
		"fraud_probability": 90.0,
		"risk_level":        "High",
		"confidence_score":  94,
		"recommendation":    risk.RecommendationHigh,
		"action":            "block",
		"source":            "remote",
	}))

	result, err := h.HandleAssessTransaction(context.Background(), makeRequest(validArgs()))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Transaction: TXN_20240115143000")
	assert.Contains(t, text, "Fraud Probability: 90.0%")
	assert.Contains(t, text, "Risk Level: High")
	assert.Contains(t, text, "Confidence: 94%")
	assert.Contains(t, text, "Action: block")
	assert.Contains(t, text, "Scored by: remote model")
	assert.NotContains(t, text, "Fallback")
}

func TestHandleAssessTransaction_ShowsFallback(t *testing.T) {
	h := newTestSetup(t, jsonHandler(http.StatusOK, map[string]any{
		"fraud_probability": 12.0,
		"risk_level":        "Low",
		"source":            "local",
		"fallback_reason":   "breaker_open",
	}))

	result, err := h.HandleAssessTransaction(context.Background(), makeRequest(validArgs()))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "Scored by: local model")
	assert.Contains(t, text, "Fallback: breaker_open")
}

func TestHandleAssessTransaction_MissingArguments(t *testing.T) {
	for _, key := range []string{"step", "amount", "age", "gender", "merchant", "category"} {
		t.Run(key, func(t *testing.T) {
			called := false
			h := newTestSetup(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			args := validArgs()
			delete(args, key)
			result, err := h.HandleAssessTransaction(context.Background(), makeRequest(args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Equal(t, key+" is required", resultText(t, result))
			assert.False(t, called, "API should not be called")
		})
	}
}

func TestHandleAssessTransaction_NegativeAmount(t *testing.T) {
	h := newTestSetup(t, jsonHandler(http.StatusOK, map[string]any{}))

	args := validArgs()
	args["amount"] = -5.0
	result, err := h.HandleAssessTransaction(context.Background(), makeRequest(args))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "must not be negative")
}

func TestHandleAssessTransaction_APIError(t *testing.T) {
	h := newTestSetup(t, jsonHandler(http.StatusUnprocessableEntity, map[string]any{
		"success": false,
		"error":   "Model rejected input",
	}))

	result, err := h.HandleAssessTransaction(context.Background(), makeRequest(validArgs()))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	text := resultText(t, result)
	assert.Contains(t, text, "Failed to assess transaction")
	assert.Contains(t, text, "Model rejected input")
}

func TestHandleGetModelStats(t *testing.T) {
	h := newTestSetup(t, jsonHandler(http.StatusOK, map[string]any{
		"model_performance": map[string]any{"accuracy": 99.4, "precision": 66.8, "recall": 94.9},
		"business_metrics":  map[string]any{"total_transactions": 118929, "fraud_detected": 1367},
		"model_info":        map[string]any{"algorithm": "RandomForest", "model_version": "1.0"},
	}))

	result, err := h.HandleGetModelStats(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Accuracy: 99.4%")
	assert.Contains(t, text, "Recall: 94.9%")
	assert.Contains(t, text, "Transactions: 118929")
	assert.Contains(t, text, "Algorithm: RandomForest")
	assert.NotContains(t, text, "ROC-AUC")
}

func TestHandleGetModelStats_UnexpectedShape(t *testing.T) {
	h := newTestSetup(t, jsonHandler(http.StatusOK, []string{"nope"}))

	result, err := h.HandleGetModelStats(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Failed to parse model stats")
}

func TestHandleListMerchants(t *testing.T) {
	h := newTestSetup(t, jsonHandler(http.StatusOK, map[string]any{
		"merchants": []string{"M348934600", "M480139044"},
		"high_risk": []string{"M480139044"},
	}))

	result, err := h.HandleListMerchants(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "Found 2 merchant(s)")
	assert.Contains(t, text, "- M480139044 (high risk)")
	assert.Contains(t, text, "- M348934600\n")
}

func TestHandleListCategories_BareArray(t *testing.T) {
	h := newTestSetup(t, jsonHandler(http.StatusOK, []string{"es_tech"}))

	result, err := h.HandleListCategories(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "- es_tech")
}

func TestHandleListCategories_Empty(t *testing.T) {
	h := newTestSetup(t, jsonHandler(http.StatusOK, map[string]any{"categories": []string{}}))

	result, err := h.HandleListCategories(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "No categories found.", resultText(t, result))
}

func TestHandleRecentAssessments(t *testing.T) {
	var gotLimit string
	h := newTestSetup(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("limit")
		jsonHandler(http.StatusOK, map[string]any{
			"assessments": []map[string]any{{
				"source":     "local",
				"recordedAt": "2024-01-15T14:30:00Z",
				"input":      map[string]any{"amount": 1500, "merchant": "M480139044", "category": "es_tech"},
				"assessment": map[string]any{"risk_level": "High", "action": "block"},
			}},
			"count": 1,
		})(w, r)
	}))

	result, err := h.HandleRecentAssessments(context.Background(), makeRequest(map[string]any{"limit": 3.0}))
	require.NoError(t, err)
	assert.Equal(t, "3", gotLimit)

	text := resultText(t, result)
	assert.Contains(t, text, "Found 1 assessment(s)")
	assert.Contains(t, text, "2024-01-15T14:30:00Z (local)")
	assert.Contains(t, text, "$1500.00 at M480139044 [es_tech]")
	assert.Contains(t, text, "Risk Level: High")
}

func TestHandleRecentAssessments_DefaultLimitAndEmpty(t *testing.T) {
	var gotLimit string
	h := newTestSetup(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("limit")
		_, _ = w.Write([]byte(`{"assessments":[],"count":0}`))
	}))

	result, err := h.HandleRecentAssessments(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "10", gotLimit)
	assert.Equal(t, "No assessments recorded yet.", resultText(t, result))
}

// ============================================================
// Against the real dashboard API
// ============================================================

func TestTools_AgainstDashboard(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := risk.NewMemoryStore()
	engine := risk.NewEngine(store).WithJitter(risk.NoJitter{})
	router := gin.New()
	dashboard.NewHandler(engine, predict.New("", time.Second, engine)).
		WithStore(store).
		RegisterRoutes(&router.RouterGroup)

	h := newTestSetup(t, router)
	ctx := context.Background()

	result, err := h.HandleAssessTransaction(ctx, makeRequest(validArgs()))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))
	text := resultText(t, result)
	assert.Contains(t, text, "Risk Level: High")
	assert.Contains(t, text, "Action: block")
	assert.Contains(t, text, "Scored by: local model")

	result, err = h.HandleListMerchants(ctx, makeRequest(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Found 8 merchant(s)")
	assert.Contains(t, resultText(t, result), "- M2080738506 (high risk)")

	result, err = h.HandleListCategories(ctx, makeRequest(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Found 16 category(s)")
	assert.Contains(t, resultText(t, result), "- es_travel (high risk)")

	result, err = h.HandleGetModelStats(ctx, makeRequest(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "Accuracy: 99.4%")

	require.Eventually(t, func() bool { return store.Len() == 1 }, time.Second, 10*time.Millisecond)
	result, err = h.HandleRecentAssessments(ctx, makeRequest(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "M480139044")
}

func TestNewMCPServer(t *testing.T) {
	s := NewMCPServer(Config{APIURL: "http://localhost:8080"})
	require.NotNil(t, s)
}

func TestToolDefinitions(t *testing.T) {
	assert.Equal(t, "assess_transaction", ToolAssessTransaction.Name)
	assert.ElementsMatch(t,
		[]string{"step", "amount", "age", "gender", "merchant", "category"},
		ToolAssessTransaction.InputSchema.Required)
	assert.Empty(t, ToolRecentAssessments.InputSchema.Required)

	for _, tool := range []mcp.Tool{ToolGetModelStats, ToolListMerchants, ToolListCategories, ToolRecentAssessments} {
		assert.NotEmpty(t, tool.Description, tool.Name)
	}
}

func TestHandlers_NeverReturnGoError(t *testing.T) {
	// Failures are reported through result.IsError.
	h := NewHandlers(NewFraudscopeClient(Config{APIURL: "http://127.0.0.1:1", Timeout: time.Second}))
	ctx := context.Background()

	tests := []struct {
		name string
		fn   func() (*mcp.CallToolResult, error)
	}{
		{"assess", func() (*mcp.CallToolResult, error) { return h.HandleAssessTransaction(ctx, makeRequest(validArgs())) }},
		{"stats", func() (*mcp.CallToolResult, error) { return h.HandleGetModelStats(ctx, makeRequest(nil)) }},
		{"merchants", func() (*mcp.CallToolResult, error) { return h.HandleListMerchants(ctx, makeRequest(nil)) }},
		{"categories", func() (*mcp.CallToolResult, error) { return h.HandleListCategories(ctx, makeRequest(nil)) }},
		{"recent", func() (*mcp.CallToolResult, error) { return h.HandleRecentAssessments(ctx, makeRequest(nil)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.fn()
			require.NoError(t, err)
			assert.True(t, result.IsError)
		})
	}
}
