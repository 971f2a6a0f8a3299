// Package catalog serves the fixed reference data shown on the dashboard:
// model evaluation figures and the merchant and category pick lists.
package catalog

import "github.com/mbd888/fraudscope/internal/risk"

// PerformanceMetrics are percentages from the held-out evaluation.
type PerformanceMetrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1Score   float64 `json:"f1_score"`
	ROCAUC    float64 `json:"roc_auc"`
	PRAUC     float64 `json:"pr_auc"`
}

// BusinessMetrics summarize the evaluation in operational terms.
type BusinessMetrics struct {
	TotalTransactions int     `json:"total_transactions"`
	FraudDetected     int     `json:"fraud_detected"`
	FalseAlarms       int     `json:"false_alarms"`
	DetectionRate     float64 `json:"fraud_detection_rate"`
	FalseAlarmRate    float64 `json:"false_alarm_rate"`
}

// ModelInfo describes the trained model.
type ModelInfo struct {
	Algorithm    string `json:"algorithm"`
	Features     int    `json:"features_count"`
	TrainingSize int    `json:"training_data_size"`
	Version      string `json:"model_version"`
	LastUpdated  string `json:"last_updated"`
}

// Stats is the body of GET /api/stats.
type Stats struct {
	ModelPerformance PerformanceMetrics `json:"model_performance"`
	BusinessMetrics  BusinessMetrics    `json:"business_metrics"`
	ModelInfo        ModelInfo          `json:"model_info"`
}

// ModelStats returns the evaluation figures.
func ModelStats() Stats {
	return Stats{
		ModelPerformance: PerformanceMetrics{
			Accuracy:  99.4,
			Precision: 66.8,
			Recall:    94.9,
			F1Score:   78.4,
			ROCAUC:    99.9,
			PRAUC:     91.7,
		},
		BusinessMetrics: BusinessMetrics{
			TotalTransactions: 118929,
			FraudDetected:     1367,
			FalseAlarms:       679,
			DetectionRate:     94.9,
			FalseAlarmRate:    0.6,
		},
		ModelInfo: ModelInfo{
			Algorithm:    "RandomForest",
			Features:     21,
			TrainingSize: 475714,
			Version:      risk.ModelVersion,
			LastUpdated:  "2024-01-15",
		},
	}
}

var merchants = []string{
	"M348934600", "M1823072687", "M480139044", "M980657600",
	"M2080738506", "M1841913607", "M749144843", "M2018384601",
}

var categories = []string{
	"es_transportation", "es_sportsandtoys", "es_health", "es_fashion",
	"es_bars", "es_hyper", "es_food", "es_home", "es_contents", "es_tech",
	"es_travel", "es_wellnessandbeauty", "es_otherservices", "es_hotelservices",
	"es_barsandrestaurants", "es_leisure",
}

// Merchants returns the merchant pick list.
func Merchants() []string {
	return append([]string(nil), merchants...)
}

// Categories returns the category pick list.
func Categories() []string {
	return append([]string(nil), categories...)
}

// HighRiskMerchants returns the subset of Merchants the scorer treats as
// high risk.
func HighRiskMerchants() []string {
	var out []string
	for _, m := range merchants {
		if risk.IsHighRiskMerchant(m) {
			out = append(out, m)
		}
	}
	return out
}

// HighRiskCategories returns the subset of Categories the scorer treats as
// high risk.
func HighRiskCategories() []string {
	var out []string
	for _, c := range categories {
		if risk.IsHighRiskCategory(c) {
			out = append(out, c)
		}
	}
	return out
}

// Stat is a headline figure animated on the dashboard.
type Stat struct {
	Label   string `json:"label"`
	Display string `json:"display"`
}

// DashboardStats returns the four headline figures in display order.
func DashboardStats() []Stat {
	return []Stat{
		{Label: "Transactions Analyzed", Display: "118,929"},
		{Label: "Fraud Cases Detected", Display: "1,367"},
		{Label: "False Alarms", Display: "679"},
		{Label: "Model Accuracy", Display: "99.4%"},
	}
}
