package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to a fraudscope server.
type Config struct {
	APIURL  string        // Base URL, e.g. "http://localhost:8080"
	Timeout time.Duration // Per-request bound, 30s when zero
}

// FraudscopeClient is a pure HTTP client for the dashboard's JSON API.
type FraudscopeClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewFraudscopeClient creates a new client for a fraudscope server.
func NewFraudscopeClient(cfg Config) *FraudscopeClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FraudscopeClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// apiError covers both error shapes the server returns:
// {error, message} and {success:false, error}.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (e apiError) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

// doRequest makes an HTTP request to the server and returns the response body.
func (c *FraudscopeClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.text() != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.text())
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// Transaction is the body of a scoring request.
type Transaction struct {
	Step     int     `json:"step"`
	Amount   float64 `json:"amount"`
	Age      string  `json:"age"`
	Gender   string  `json:"gender"`
	Merchant string  `json:"merchant"`
	Category string  `json:"category"`
}

// AssessTransaction scores a transaction through the dashboard submit flow,
// which uses the remote model when configured.
func (c *FraudscopeClient) AssessTransaction(ctx context.Context, tx Transaction) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/api/assess", nil, tx)
}

// GetModelStats returns the model evaluation figures.
func (c *FraudscopeClient) GetModelStats(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/api/stats", nil, nil)
}

// ListMerchants returns the merchant pick list.
func (c *FraudscopeClient) ListMerchants(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/api/merchants", nil, nil)
}

// ListCategories returns the category pick list.
func (c *FraudscopeClient) ListCategories(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/api/categories", nil, nil)
}

// RecentAssessments returns the newest audit records.
func (c *FraudscopeClient) RecentAssessments(ctx context.Context, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/api/assessments", q, nil)
}

// GetHealth returns the service health report. Unhealthy reports come back
// as 503 and surface as an error.
func (c *FraudscopeClient) GetHealth(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/api/health", nil, nil)
}
