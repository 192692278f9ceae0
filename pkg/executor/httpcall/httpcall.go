// Package httpcall implements the http action: a single remote call with
// the run's input params folded into the request.
package httpcall

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/quickops/jobflow/pkg/models"
)

// Executor performs the HTTP request described by a job's http config
// section. The attempt deadline arrives through ctx and cancels the request
// in flight.
type Executor struct {
	client *http.Client
	logger *slog.Logger
}

func NewExecutor(logger *slog.Logger) *Executor {
	return &Executor{
		client: &http.Client{},
		logger: logger,
	}
}

func (e *Executor) Type() models.ActionType {
	return models.ActionTypeHTTP
}

// Schema returns the JSON schema for the http config section.
func (e *Executor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to send the request to.",
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method to use. Defaults to GET.",
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "Headers to include in the request.",
				"additionalProperties": map[string]any{
					"type": "string",
				},
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Request body. A JSON object body is merged with the run's input params.",
			},
		},
		"required":             []string{"url"},
		"additionalProperties": false,
	}
}

// Execute sends the request and returns the decoded response. Responses
// with status >= 400 are reported as action errors so the retry policy of
// the owning job applies.
func (e *Executor) Execute(ctx context.Context, config models.ActionConfig, params map[string]any) (any, error) {
	cfg := config.HTTP
	if cfg == nil {
		return nil, fmt.Errorf("http config section missing")
	}

	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodGet
	}

	req, err := e.buildRequest(ctx, cfg, method, params)
	if err != nil {
		return nil, err
	}

	e.logger.DebugContext(ctx, "Sending HTTP request", "method", method, "url", req.URL.String())

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	return e.processResponse(ctx, resp)
}

func (e *Executor) buildRequest(
	ctx context.Context,
	cfg *models.HTTPConfig,
	method string,
	params map[string]any,
) (*http.Request, error) {
	requestURL := cfg.URL

	var (
		bodyReader io.Reader
		isJSONBody bool
	)

	switch method {
	case http.MethodGet:
		// Params travel as query string arguments.
		withQuery, err := appendQuery(cfg.URL, params)
		if err != nil {
			return nil, err
		}

		requestURL = withQuery
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		body, isJSON, err := mergeBody(cfg.Body, params)
		if err != nil {
			return nil, err
		}

		bodyReader = strings.NewReader(body)
		isJSONBody = isJSON
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}

	if isJSONBody && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// mergeBody folds the input params into the configured body. A JSON object
// body is merged key-by-key with params taking precedence; any other body
// is replaced entirely when params are present.
func mergeBody(body string, params map[string]any) (string, bool, error) {
	if len(params) == 0 {
		trimmed := strings.TrimSpace(body)

		return body, strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "["), nil
	}

	merged := make(map[string]any)

	if strings.TrimSpace(body) != "" {
		if err := json.Unmarshal([]byte(body), &merged); err != nil {
			merged = make(map[string]any)
		}
	}

	for key, value := range params {
		merged[key] = value
	}

	encoded, err := json.Marshal(merged)
	if err != nil {
		return "", false, fmt.Errorf("failed to marshal request body: %w", err)
	}

	return string(encoded), true, nil
}

func appendQuery(rawURL string, params map[string]any) (string, error) {
	if len(params) == 0 {
		return rawURL, nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	query := parsed.Query()
	for key, value := range params {
		query.Set(key, fmt.Sprintf("%v", value))
	}

	parsed.RawQuery = query.Encode()

	return parsed.String(), nil
}

func (e *Executor) processResponse(ctx context.Context, resp *http.Response) (any, error) {
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("http request returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	var body any

	err = json.Unmarshal(bodyBytes, &body)
	if err != nil {
		body = string(bodyBytes)
	}

	result := map[string]any{
		"status_code": resp.StatusCode,
		"body":        body,
		"headers":     resp.Header,
	}

	e.logger.InfoContext(ctx, "HTTP request completed",
		"status_code", resp.StatusCode,
		"body_length", len(bodyBytes))

	return result, nil
}
