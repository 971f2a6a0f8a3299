package predict

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/fraudscope/internal/circuitbreaker"
	"github.com/mbd888/fraudscope/internal/metrics"
	"github.com/mbd888/fraudscope/internal/risk"
)

var fixedNow = time.Date(2024, 1, 15, 10, 30, 45, 0, time.UTC)

func localEngine() *risk.Engine {
	return risk.NewEngine(nil).
		WithJitter(risk.NoJitter{}).
		WithClock(func() time.Time { return fixedNow })
}

func highRiskInput() *risk.TransactionInput {
	return &risk.TransactionInput{
		Step: 1, Amount: 1500, Age: "3", Gender: "M",
		Merchant: "M480139044", Category: "es_tech",
	}
}

const remoteSuccess = `{
	"success": true,
	"transaction_id": "TXN20240115103045",
	"fraud_probability": 87.3,
	"risk_level": "High",
	"risk_color": "#dc3545",
	"confidence_score": 92.46,
	"recommendation": "BLOCK TRANSACTION - High fraud risk detected. Immediate investigation required.",
	"action": "block",
	"timestamp": "2024-01-15T10:30:45.123456",
	"model_version": "1.0"
}`

func encode(t *testing.T, in *risk.TransactionInput) []byte {
	t.Helper()
	body, err := json.Marshal(in)
	require.NoError(t, err)
	return body
}

func remote(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api/predict", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var in risk.TransactionInput
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestPredict_RemoteSuccess(t *testing.T) {
	srv, calls := remote(t, http.StatusOK, remoteSuccess)
	c := New(srv.URL, time.Second, localEngine())

	out, err := c.Predict(context.Background(), highRiskInput())
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, risk.SourceRemote, out.Source)
	assert.Empty(t, out.FallbackReason)
	assert.Equal(t, 87.3, out.Assessment.FraudProbability)
	assert.Equal(t, 92, out.Assessment.ConfidenceScore)
	assert.Equal(t, risk.LevelHigh, out.Assessment.RiskLevel)
	assert.Equal(t, "2024-01-15T10:30:45.123456", out.Assessment.Timestamp)
}

func TestPredict_ServerErrorFallsBack(t *testing.T) {
	srv, _ := remote(t, http.StatusInternalServerError, `{"success":false,"error":"boom"}`)
	c := New(srv.URL, time.Second, localEngine())

	before := testutil.ToFloat64(metrics.FallbacksTotal.WithLabelValues(ReasonTransport))
	out, err := c.Predict(context.Background(), highRiskInput())
	require.NoError(t, err)

	assert.Equal(t, risk.SourceLocal, out.Source)
	assert.Equal(t, ReasonTransport, out.FallbackReason)
	assert.Equal(t, risk.LevelHigh, out.Assessment.RiskLevel)
	assert.Equal(t, 90.0, out.Assessment.FraudProbability)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.FallbacksTotal.WithLabelValues(ReasonTransport)))
}

func TestPredict_UnreachableFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, time.Second, localEngine())
	out, err := c.Predict(context.Background(), highRiskInput())
	require.NoError(t, err)
	assert.Equal(t, risk.SourceLocal, out.Source)
	assert.Equal(t, "TXN20240115103045", out.Assessment.TransactionID)
}

func TestPredict_TimeoutFallsBack(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	c := New(srv.URL, 50*time.Millisecond, localEngine())
	start := time.Now()
	out, err := c.Predict(context.Background(), highRiskInput())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, risk.SourceLocal, out.Source)
}

func TestPredict_ApplicationErrorSurfaces(t *testing.T) {
	srv, _ := remote(t, http.StatusOK, `{"success":false,"error":"Model not loaded"}`)
	c := New(srv.URL, time.Second, localEngine())

	out, err := c.Predict(context.Background(), highRiskInput())
	assert.Nil(t, out)
	require.Error(t, err)
	assert.True(t, IsApplication(err))
	assert.False(t, IsTransport(err))
	assert.Equal(t, "Model not loaded", err.Error())
}

func TestPredict_UnparseableBodyFallsBack(t *testing.T) {
	srv, _ := remote(t, http.StatusOK, `<html>oops</html>`)
	c := New(srv.URL, time.Second, localEngine())

	out, err := c.Predict(context.Background(), highRiskInput())
	require.NoError(t, err)
	assert.Equal(t, risk.SourceLocal, out.Source)
	assert.Equal(t, ReasonTransport, out.FallbackReason)
}

func TestPredict_InvalidRiskLevelSurfaces(t *testing.T) {
	srv, _ := remote(t, http.StatusOK, `{"success":true,"fraud_probability":12,"risk_level":"Extreme"}`)
	c := New(srv.URL, time.Second, localEngine())

	_, err := c.Predict(context.Background(), highRiskInput())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Extreme")
}

func TestPredict_NoRemoteConfigured(t *testing.T) {
	c := New("", time.Second, localEngine())
	assert.False(t, c.RemoteEnabled())

	out, err := c.Predict(context.Background(), highRiskInput())
	require.NoError(t, err)
	assert.Equal(t, risk.SourceLocal, out.Source)
	assert.Equal(t, ReasonDisabled, out.FallbackReason)

	_, err = c.attempt(context.Background(), highRiskInput(), encode(t, highRiskInput()))
	assert.ErrorIs(t, err, ErrRemoteDisabled)
}

func TestPredict_BreakerSkipsRemote(t *testing.T) {
	srv, calls := remote(t, http.StatusBadGateway, ``)
	breaker := circuitbreaker.New(2, time.Hour)
	c := New(srv.URL, time.Second, localEngine()).WithBreaker(breaker)

	for i := 0; i < 2; i++ {
		out, err := c.Predict(context.Background(), highRiskInput())
		require.NoError(t, err)
		assert.Equal(t, ReasonTransport, out.FallbackReason)
	}
	assert.Equal(t, circuitbreaker.StateOpen, breaker.State(c.Endpoint()))

	out, err := c.Predict(context.Background(), highRiskInput())
	require.NoError(t, err)
	assert.Equal(t, ReasonBreakerOpen, out.FallbackReason)
	assert.Equal(t, int32(2), calls.Load(), "open breaker must not reach the remote")
}

func TestPredict_RecordsRemoteAssessment(t *testing.T) {
	srv, _ := remote(t, http.StatusOK, remoteSuccess)
	store := risk.NewMemoryStore()
	c := New(srv.URL+"/", time.Second, localEngine()).WithStore(store)

	_, err := c.Predict(context.Background(), highRiskInput())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return store.Len() == 1 }, time.Second, 5*time.Millisecond)
	recs, err := store.ListRecent(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, risk.SourceRemote, recs[0].Source)
	assert.Equal(t, "M480139044", recs[0].Input.Merchant)
}

func TestAttempt_TransportErrorCarriesStatus(t *testing.T) {
	srv, _ := remote(t, http.StatusServiceUnavailable, ``)
	c := New(srv.URL, time.Second, localEngine())

	_, err := c.attempt(context.Background(), highRiskInput(), encode(t, highRiskInput()))
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
	assert.Contains(t, te.Error(), "503")
}

func TestDecodeAssessment_FillsDefaults(t *testing.T) {
	a, err := decodeAssessment([]byte(`{"success":true,"fraud_probability":45.5,"risk_level":"Medium","confidence_score":80}`))
	require.NoError(t, err)
	assert.Equal(t, risk.ColorMedium, a.RiskColor)
	assert.Equal(t, risk.RecommendationMedium, a.Recommendation)
	assert.Equal(t, risk.ActionReview, a.Action)
	assert.Equal(t, risk.ModelVersion, a.ModelVersion)
}

func TestPredict_UnencodableInputScoredLocally(t *testing.T) {
	srv, calls := remote(t, http.StatusOK, remoteSuccess)
	breaker := circuitbreaker.New(1, time.Hour)
	c := New(srv.URL, time.Second, localEngine()).WithBreaker(breaker)

	in := highRiskInput()
	in.Amount = math.NaN()
	out, err := c.Predict(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, risk.SourceLocal, out.Source)
	assert.Equal(t, ReasonEncode, out.FallbackReason)
	require.NotNil(t, out.Assessment)

	assert.Zero(t, calls.Load())
	assert.Equal(t, circuitbreaker.StateClosed, breaker.State(c.Endpoint()), "local encode failures do not count against the remote")
}

func TestPredict_NonFiniteAmountFromJSON(t *testing.T) {
	srv, calls := remote(t, http.StatusOK, remoteSuccess)
	c := New(srv.URL, time.Second, localEngine())

	var in risk.TransactionInput
	require.NoError(t, json.Unmarshal([]byte(`{"step":"NaN","amount":"NaN","age":"2","gender":"F","merchant":"M1","category":"es_food"}`), &in))
	out, err := c.Predict(context.Background(), &in)
	require.NoError(t, err)
	assert.Equal(t, risk.SourceRemote, out.Source)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDecodeAssessment_ActionFollowsLevel(t *testing.T) {
	a, err := decodeAssessment([]byte(`{"success":true,"fraud_probability":91,"risk_level":"High","action":"approve","risk_color":"not-a-color"}`))
	require.NoError(t, err)
	assert.Equal(t, risk.ActionBlock, a.Action)
	assert.Equal(t, risk.ColorHigh, a.RiskColor)

	a, err = decodeAssessment([]byte(`{"success":true,"fraud_probability":10,"risk_level":"Low","risk_color":"#00ff00","confidence_score":250}`))
	require.NoError(t, err)
	assert.Equal(t, "#00ff00", a.RiskColor, "valid remote colors are kept")
	assert.Equal(t, 100, a.ConfidenceScore)
}

func TestDecodeAssessment_RejectsUnstorableValues(t *testing.T) {
	long := func(n int) string { return strings.Repeat("x", n+1) }
	tests := []struct {
		name string
		body string
	}{
		{"negative probability", `{"success":true,"fraud_probability":-1,"risk_level":"Low"}`},
		{"probability over 100", `{"success":true,"fraud_probability":100.5,"risk_level":"High"}`},
		{"long transaction id", `{"success":true,"fraud_probability":5,"risk_level":"Low","transaction_id":"` + long(risk.MaxTransactionIDLength) + `"}`},
		{"long timestamp", `{"success":true,"fraud_probability":5,"risk_level":"Low","timestamp":"` + long(risk.MaxTimestampLength) + `"}`},
		{"long model version", `{"success":true,"fraud_probability":5,"risk_level":"Low","model_version":"` + long(risk.MaxModelVersionLength) + `"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := decodeAssessment([]byte(tc.body))
			require.Error(t, err)
			assert.True(t, IsApplication(err))
		})
	}
}

func TestPredict_OutOfRangeProbabilitySurfaces(t *testing.T) {
	srv, _ := remote(t, http.StatusOK, `{"success":true,"fraud_probability":1e6,"risk_level":"High"}`)
	store := risk.NewMemoryStore()
	c := New(srv.URL, time.Second, localEngine()).WithStore(store)

	out, err := c.Predict(context.Background(), highRiskInput())
	assert.Nil(t, out)
	require.Error(t, err)
	assert.True(t, IsApplication(err))
	assert.Zero(t, store.Len(), "rejected assessments are not recorded")
}
