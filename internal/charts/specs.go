package charts

// Canvas ids rendered by the dashboard page.
const (
	CanvasMetrics  = "metricsChart"
	CanvasRisk     = "riskChart"
	CanvasFeatures = "featuresChart"
	CanvasTrends   = "trendsChart"
)

// Chart names.
const (
	ChartMetrics  = "metrics"
	ChartRisk     = "risk"
	ChartFeatures = "features"
	ChartTrends   = "trends"
)

// DefaultSpecs returns the four dashboard charts. The datasets are fixed
// figures from the last model evaluation.
func DefaultSpecs() []Spec {
	return []Spec{
		{
			Name:   ChartMetrics,
			Target: CanvasMetrics,
			Kind:   KindBar,
			Dataset: Dataset{
				Labels: []string{"Precision", "Recall", "F1-Score", "Accuracy"},
				Series: []Series{{
					Label:  "Model Performance (%)",
					Values: []float64{66.8, 94.9, 78.4, 99.4},
					Colors: []string{"#667eea", "#10b981", "#f59e0b", "#8b5cf6"},
				}},
			},
			Options: Options{Title: "Model Performance (%)", AxisMax: 100},
		},
		{
			Name:   ChartRisk,
			Target: CanvasRisk,
			Kind:   KindDoughnut,
			Dataset: Dataset{
				Labels: []string{"Low Risk", "Medium Risk", "High Risk"},
				Series: []Series{{
					Values: []float64{85, 12, 3},
					Colors: []string{"#10b981", "#f59e0b", "#ef4444"},
				}},
			},
			Options: Options{Title: "Risk Distribution", ShowLegend: true},
		},
		{
			Name:   ChartFeatures,
			Target: CanvasFeatures,
			Kind:   KindHorizontalBar,
			Dataset: Dataset{
				Labels: []string{
					"Merchant Fraud Rate",
					"Merchant Transaction Count",
					"Merchant Amount Std",
					"Merchant Avg Amount",
					"Customer Total Fraud",
					"Transaction Amount",
				},
				Series: []Series{{
					Label:  "Feature Importance",
					Values: []float64{16.2, 15.5, 13.7, 10.4, 6.3, 6.1},
					Colors: []string{"#667eea"},
				}},
			},
			Options: Options{Title: "Feature Importance", AxisMax: 20},
		},
		{
			Name:   ChartTrends,
			Target: CanvasTrends,
			Kind:   KindLine,
			Dataset: Dataset{
				Labels: []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun"},
				Series: []Series{
					{
						Label:  "Fraud Detected",
						Values: []float64{245, 198, 267, 223, 289, 234},
						Colors: []string{"#ef4444"},
					},
					{
						Label:  "False Alarms",
						Values: []float64{89, 76, 92, 67, 98, 74},
						Colors: []string{"#f59e0b"},
					},
				},
			},
			Options: Options{Title: "Monthly Trends", ShowLegend: true},
		},
	}
}

// StaticSurface is a fixed set of canvases.
type StaticSurface map[string]Target

// Lookup implements Surface.
func (s StaticSurface) Lookup(id string) (Target, bool) {
	t, ok := s[id]
	return t, ok
}

// DashboardSurface returns the canvases of the dashboard page.
func DashboardSurface() StaticSurface {
	return StaticSurface{
		CanvasMetrics:  {ID: CanvasMetrics, Width: 640, Height: 360},
		CanvasRisk:     {ID: CanvasRisk, Width: 480, Height: 360},
		CanvasFeatures: {ID: CanvasFeatures, Width: 640, Height: 360},
		CanvasTrends:   {ID: CanvasTrends, Width: 640, Height: 360},
	}
}
