package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *FraudscopeClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *FraudscopeClient) *Handlers {
	return &Handlers{client: client}
}

var transactionStringFields = []string{"age", "gender", "merchant", "category"}

// HandleAssessTransaction scores one transaction.
func (h *Handlers) HandleAssessTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	for _, key := range []string{"step", "amount"} {
		if _, ok := args[key]; !ok {
			return mcp.NewToolResultError(key + " is required"), nil
		}
	}
	for _, key := range transactionStringFields {
		if req.GetString(key, "") == "" {
			return mcp.NewToolResultError(key + " is required"), nil
		}
	}

	tx := Transaction{
		Step:     int(req.GetFloat("step", 0)),
		Amount:   req.GetFloat("amount", 0),
		Age:      req.GetString("age", ""),
		Gender:   req.GetString("gender", ""),
		Merchant: req.GetString("merchant", ""),
		Category: req.GetString("category", ""),
	}
	if tx.Amount < 0 {
		return mcp.NewToolResultError("amount must not be negative"), nil
	}

	raw, err := h.client.AssessTransaction(ctx, tx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to assess transaction: %v", err)), nil
	}

	text, err := formatAssessment(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse assessment: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetModelStats returns the model evaluation figures.
func (h *Handlers) HandleGetModelStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetModelStats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get model stats: %v", err)), nil
	}

	text, err := formatModelStats(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse model stats: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleListMerchants returns the merchant pick list.
func (h *Handlers) HandleListMerchants(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.ListMerchants(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list merchants: %v", err)), nil
	}

	text, err := formatNameList(raw, "merchants", "merchant")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse merchants: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleListCategories returns the category pick list.
func (h *Handlers) HandleListCategories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.ListCategories(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list categories: %v", err)), nil
	}

	text, err := formatNameList(raw, "categories", "category")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse categories: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleRecentAssessments lists the newest audit records.
func (h *Handlers) HandleRecentAssessments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 10)
	if limit < 1 {
		limit = 10
	}

	raw, err := h.client.RecentAssessments(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list assessments: %v", err)), nil
	}

	text, err := formatAssessmentList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse assessments: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// --- Formatting ---

func formatAssessment(raw json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("Fraud Assessment:\n")
	writeAssessment(&sb, m, "  ")
	if v := getString(m, "source"); v != "" {
		fmt.Fprintf(&sb, "  Scored by: %s model\n", v)
	}
	if v := getString(m, "fallback_reason"); v != "" {
		fmt.Fprintf(&sb, "  Fallback: %s\n", v)
	}
	return sb.String(), nil
}

func writeAssessment(sb *strings.Builder, m map[string]any, indent string) {
	if v := getString(m, "transaction_id"); v != "" {
		fmt.Fprintf(sb, "%sTransaction: %s\n", indent, v)
	}
	if v, ok := getFloat(m, "fraud_probability"); ok {
		fmt.Fprintf(sb, "%sFraud Probability: %.1f%%\n", indent, v)
	}
	if v := getString(m, "risk_level"); v != "" {
		fmt.Fprintf(sb, "%sRisk Level: %s\n", indent, v)
	}
	if v, ok := getFloat(m, "confidence_score"); ok {
		fmt.Fprintf(sb, "%sConfidence: %.0f%%\n", indent, v)
	}
	if v := getString(m, "action"); v != "" {
		fmt.Fprintf(sb, "%sAction: %s\n", indent, v)
	}
	if v := getString(m, "recommendation"); v != "" {
		fmt.Fprintf(sb, "%sRecommendation: %s\n", indent, v)
	}
}

func formatModelStats(raw json.RawMessage) (string, error) {
	var s struct {
		ModelPerformance map[string]any `json:"model_performance"`
		BusinessMetrics  map[string]any `json:"business_metrics"`
		ModelInfo        map[string]any `json:"model_info"`
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	if s.ModelPerformance == nil {
		return "", fmt.Errorf("unexpected stats response format")
	}

	var sb strings.Builder
	sb.WriteString("Model Performance:\n")
	for _, f := range []struct{ key, label string }{
		{"accuracy", "Accuracy"},
		{"precision", "Precision"},
		{"recall", "Recall"},
		{"f1_score", "F1 Score"},
		{"roc_auc", "ROC-AUC"},
		{"pr_auc", "PR-AUC"},
	} {
		if v, ok := getFloat(s.ModelPerformance, f.key); ok {
			fmt.Fprintf(&sb, "  %s: %.1f%%\n", f.label, v)
		}
	}

	if s.BusinessMetrics != nil {
		sb.WriteString("\nBusiness Metrics:\n")
		if v, ok := getFloat(s.BusinessMetrics, "total_transactions"); ok {
			fmt.Fprintf(&sb, "  Transactions: %.0f\n", v)
		}
		if v, ok := getFloat(s.BusinessMetrics, "fraud_detected"); ok {
			fmt.Fprintf(&sb, "  Fraud Detected: %.0f\n", v)
		}
		if v, ok := getFloat(s.BusinessMetrics, "false_alarms"); ok {
			fmt.Fprintf(&sb, "  False Alarms: %.0f\n", v)
		}
	}

	if s.ModelInfo != nil {
		sb.WriteString("\nModel:\n")
		if v := getString(s.ModelInfo, "algorithm"); v != "" {
			fmt.Fprintf(&sb, "  Algorithm: %s\n", v)
		}
		if v := getString(s.ModelInfo, "model_version"); v != "" {
			fmt.Fprintf(&sb, "  Version: %s\n", v)
		}
	}

	return sb.String(), nil
}

// formatNameList renders {"<key>": ["a", "b"], "high_risk": ["b"]} or a
// bare array. Entries listed under high_risk are flagged.
func formatNameList(raw json.RawMessage, key, noun string) (string, error) {
	var wrapped map[string]json.RawMessage
	var names, highRisk []string
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped[key] != nil {
		if err := json.Unmarshal(wrapped[key], &names); err != nil {
			return "", fmt.Errorf("unexpected %s response format", key)
		}
		if hr, ok := wrapped["high_risk"]; ok {
			_ = json.Unmarshal(hr, &highRisk)
		}
	} else if err := json.Unmarshal(raw, &names); err != nil {
		return "", fmt.Errorf("unexpected %s response format", key)
	}

	if len(names) == 0 {
		return fmt.Sprintf("No %s found.", key), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d %s(s):\n", len(names), noun)
	flagged := make(map[string]bool, len(highRisk))
	for _, n := range highRisk {
		flagged[n] = true
	}
	for _, n := range names {
		if flagged[n] {
			fmt.Fprintf(&sb, "- %s (high risk)\n", n)
			continue
		}
		fmt.Fprintf(&sb, "- %s\n", n)
	}
	return sb.String(), nil
}

func formatAssessmentList(raw json.RawMessage) (string, error) {
	var resp struct {
		Assessments []struct {
			Source     string         `json:"source"`
			Input      map[string]any `json:"input"`
			Assessment map[string]any `json:"assessment"`
			RecordedAt string         `json:"recordedAt"`
		} `json:"assessments"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	if len(resp.Assessments) == 0 {
		return "No assessments recorded yet.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d assessment(s):\n", len(resp.Assessments))
	for i, rec := range resp.Assessments {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, rec.RecordedAt)
		if rec.Source != "" {
			fmt.Fprintf(&sb, " (%s)", rec.Source)
		}
		sb.WriteString("\n")
		if rec.Input != nil {
			amount, _ := getFloat(rec.Input, "amount")
			fmt.Fprintf(&sb, "   $%.2f at %s [%s]\n", amount, getString(rec.Input, "merchant"), getString(rec.Input, "category"))
		}
		if rec.Assessment != nil {
			writeAssessment(&sb, rec.Assessment, "   ")
		}
	}
	return sb.String(), nil
}

// getString extracts a string value from a map, trying multiple key names.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%g", f)
			}
		}
	}
	return ""
}

// getFloat extracts a float64 value from a map, trying multiple key names.
func getFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if f, ok := v.(float64); ok {
				return f, true
			}
		}
	}
	return 0, false
}
