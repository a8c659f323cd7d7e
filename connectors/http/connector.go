// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

// Package http implements the connector for HTTP search providers: the
// web search, news, and markets APIs the retrieval lanes fan out to.
// Query is a GET against a provider path with encoded parameters;
// Execute covers the rare provider write (saved-search registration,
// webhook subscription). Responses are unwrapped into flat rows so a
// lane's RowMapper never sees provider envelope shapes.
package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lumenquery/fusion/connectors/base"
)

const (
	// DefaultTimeout bounds one provider request when the lane budget
	// hasn't already imposed a tighter context deadline.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxResponseSize caps a provider response body (10MB).
	DefaultMaxResponseSize = 10 * 1024 * 1024
)

// resultEnvelopeKeys are the array fields search providers commonly wrap
// their hits in. The first present key wins; a bare top-level array
// needs no unwrapping.
var resultEnvelopeKeys = []string{"results", "items", "articles", "quotes", "data", "hits"}

// HTTPConnector is a hardened client for one search provider instance.
// SSRF validation runs once at Connect; retries are bounded by the
// shared backend retry policy so a flaky provider can't eat a lane
// budget with backoff sleeps.
type HTTPConnector struct {
	config          *base.ConnectorConfig
	httpClient      *http.Client
	logger          *log.Logger
	baseURL         string
	credentials     map[string]string
	headers         map[string]string
	maxResponseSize int64
	retry           base.RetryPolicy
	allowPrivateIPs bool
	resultsKey      string
}

// NewHTTPConnector creates a search-provider connector with secure
// defaults: SSRF protection on, TLS 1.2 minimum, bounded retries.
func NewHTTPConnector() *HTTPConnector {
	return &HTTPConnector{
		logger:          log.New(os.Stdout, "[search_api] ", log.LstdFlags),
		headers:         make(map[string]string),
		maxResponseSize: DefaultMaxResponseSize,
		retry:           base.DefaultRetryPolicy(),
	}
}

// Connect validates the provider base URL and prepares the HTTP client.
func (c *HTTPConnector) Connect(ctx context.Context, config *base.ConnectorConfig) error {
	c.config = config

	baseURLStr, ok := config.Options["base_url"].(string)
	if !ok || baseURLStr == "" {
		baseURLStr = config.ConnectionURL
	}
	if baseURLStr == "" {
		return base.NewConnectorError(config.Name, "Connect", "base_url is required", nil)
	}

	if allowPrivate, ok := config.Options["allow_private_ips"].(bool); ok {
		c.allowPrivateIPs = allowPrivate
	}

	urlOpts := base.DefaultURLValidationOptions()
	urlOpts.AllowPrivateIPs = c.allowPrivateIPs
	if err := base.ValidateURL(baseURLStr, urlOpts); err != nil {
		return base.NewConnectorError(config.Name, "Connect", "provider URL rejected", err)
	}

	c.baseURL = strings.TrimSuffix(baseURLStr, "/")

	c.credentials = make(map[string]string, len(config.Credentials))
	for key, val := range config.Credentials {
		c.credentials[key] = val
	}

	if headers, ok := config.Options["headers"].(map[string]interface{}); ok {
		for key, val := range headers {
			if strVal, ok := val.(string); ok {
				c.headers[key] = strVal
			}
		}
	}

	if key, ok := config.Options["results_key"].(string); ok {
		c.resultsKey = key
	}

	timeout := DefaultTimeout
	if config.Timeout > 0 {
		timeout = config.Timeout
	}

	if maxSize, ok := config.Options["max_response_size"].(float64); ok && maxSize > 0 {
		c.maxResponseSize = int64(maxSize)
	}
	if config.MaxRetries > 0 {
		c.retry.MaxRetries = config.MaxRetries
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if skipVerify, ok := config.Options["tls_skip_verify"].(bool); ok && skipVerify {
		tlsConfig.InsecureSkipVerify = true
		c.logger.Printf("WARNING: TLS verification disabled for %s", config.Name)
	}

	c.httpClient = &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: tlsConfig,
			MaxIdleConns:    100,
			MaxConnsPerHost: 10,
			IdleConnTimeout: 90 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		},
	}

	if noRedirect, ok := config.Options["disable_redirects"].(bool); ok && noRedirect {
		c.httpClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	c.logger.Printf("connected provider %s (timeout=%v, max_retries=%d)", config.Name, timeout, c.retry.MaxRetries)
	return nil
}

// Disconnect releases pooled connections.
func (c *HTTPConnector) Disconnect(ctx context.Context) error {
	if c.httpClient != nil {
		if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
			transport.CloseIdleConnections()
		}
	}
	return nil
}

// HealthCheck probes the provider's health path (default "/").
func (c *HTTPConnector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	if c.baseURL == "" {
		return &base.HealthStatus{Healthy: false, Error: "base_url not configured", Timestamp: time.Now()}, nil
	}

	healthPath := "/"
	if c.config != nil {
		if hp, ok := c.config.Options["health_path"].(string); ok {
			healthPath = hp
		}
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return &base.HealthStatus{Healthy: false, Timestamp: time.Now(), Error: err.Error()}, nil
	}
	c.applyAuth(req)
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return &base.HealthStatus{Healthy: false, Latency: latency, Timestamp: time.Now(), Error: err.Error()}, nil
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	return &base.HealthStatus{
		Healthy: resp.StatusCode >= 200 && resp.StatusCode < 400,
		Latency: latency,
		Details: map[string]string{
			"base_url":    c.baseURL,
			"status_code": strconv.Itoa(resp.StatusCode),
		},
		Timestamp: time.Now(),
	}, nil
}

// Query runs one provider search: GET {base_url}{statement}?{params}.
// Retryable failures (connection errors, 408/429/5xx) are retried under
// the backend retry policy; the lane's context deadline cuts the whole
// exchange off regardless.
func (c *HTTPConnector) Query(ctx context.Context, query *base.Query) (*base.QueryResult, error) {
	path := query.Statement
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	reqURL, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "invalid request path", err)
	}

	if len(query.Parameters) > 0 {
		params := url.Values{}
		for key, val := range query.Parameters {
			if strings.HasPrefix(key, "_") {
				continue
			}
			params.Set(key, fmt.Sprintf("%v", val))
		}
		reqURL.RawQuery = params.Encode()
	}

	start := time.Now()
	var body []byte
	var status int

	err = c.retry.Do(ctx, func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
		if reqErr != nil {
			return reqErr
		}
		c.applyAuth(req)
		c.applyHeaders(req)

		resp, doErr := c.httpClient.Do(req)
		if doErr != nil {
			return &transientError{doErr}
		}
		defer func() { _ = resp.Body.Close() }()

		status = resp.StatusCode
		limited := io.LimitReader(resp.Body, c.maxResponseSize+1)
		body, reqErr = io.ReadAll(limited)
		if reqErr != nil {
			return &transientError{reqErr}
		}
		if int64(len(body)) > c.maxResponseSize {
			return fmt.Errorf("response exceeds %d byte limit", c.maxResponseSize)
		}
		if isRetryableStatus(status) {
			return &transientError{fmt.Errorf("HTTP %d", status)}
		}
		return nil
	}, isTransient)
	if err != nil {
		if ctx.Err() != nil {
			return nil, base.NewConnectorError(c.Name(), "Query", "request cancelled", ctx.Err())
		}
		return nil, base.NewConnectorError(c.Name(), "Query", "provider request failed", err)
	}

	duration := time.Since(start)

	if status < 200 || status >= 300 {
		return nil, base.NewConnectorError(c.Name(), "Query",
			fmt.Sprintf("HTTP %d: %s", status, base.SanitizeLogString(string(body))), nil)
	}

	rows, err := c.unwrapRows(body)
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "unparseable provider response", err)
	}

	c.logger.Printf("GET %s: %d rows, %v", path, len(rows), duration)

	return &base.QueryResult{
		Rows:      rows,
		RowCount:  len(rows),
		Duration:  duration,
		Connector: c.Name(),
	}, nil
}

// Execute runs a provider write. Only PUT and DELETE are retried; POST
// and PATCH get a single attempt since the provider may have applied
// the write even when the response was lost.
func (c *HTTPConnector) Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error) {
	method := strings.ToUpper(cmd.Action)
	if method == "" {
		method = http.MethodPost
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
	default:
		return nil, base.NewConnectorError(c.Name(), "Execute", fmt.Sprintf("unsupported HTTP method: %s", method), nil)
	}

	path := cmd.Statement
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var bodyBytes []byte
	if len(cmd.Parameters) > 0 {
		var err error
		bodyBytes, err = json.Marshal(cmd.Parameters)
		if err != nil {
			return nil, base.NewConnectorError(c.Name(), "Execute", "failed to encode body", err)
		}
	}

	policy := c.retry
	if method == http.MethodPost || method == http.MethodPatch {
		policy.MaxRetries = 0
	}

	start := time.Now()
	var status int
	var respBody []byte

	err := policy.Do(ctx, func() error {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, reqErr := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if reqErr != nil {
			return reqErr
		}
		c.applyAuth(req)
		c.applyHeaders(req)
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, doErr := c.httpClient.Do(req)
		if doErr != nil {
			return &transientError{doErr}
		}
		defer func() { _ = resp.Body.Close() }()

		status = resp.StatusCode
		respBody, _ = io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize))
		return nil
	}, isTransient)
	if err != nil {
		return &base.CommandResult{
			Success:   false,
			Duration:  time.Since(start),
			Message:   fmt.Sprintf("request failed: %v", err),
			Connector: c.Name(),
		}, nil
	}

	success := status >= 200 && status < 300
	message := fmt.Sprintf("HTTP %d", status)
	if len(respBody) > 0 {
		message = fmt.Sprintf("HTTP %d: %s", status, base.SanitizeLogString(string(respBody)))
	}

	rowsAffected := 0
	if success {
		rowsAffected = 1
	}

	return &base.CommandResult{
		Success:      success,
		RowsAffected: rowsAffected,
		Duration:     time.Since(start),
		Message:      message,
		Connector:    c.Name(),
	}, nil
}

// Name returns the provider instance name.
func (c *HTTPConnector) Name() string {
	if c.config != nil {
		return c.config.Name
	}
	return "search-provider"
}

// Type returns the connector type.
func (c *HTTPConnector) Type() string { return "search_api" }

// Version returns the connector version.
func (c *HTTPConnector) Version() string { return "1.0.0" }

// Capabilities returns the supported operations.
func (c *HTTPConnector) Capabilities() []string {
	return []string{"query", "execute", "retry", "ssrf-protection"}
}

// applyAuth injects the provider credential. Which header scheme a
// provider wants is inferred from which credential keys were resolved
// from the secrets manager.
func (c *HTTPConnector) applyAuth(req *http.Request) {
	if key, ok := c.credentials["api_key"]; ok && key != "" {
		headerName := c.credentials["header_name"]
		if headerName == "" {
			headerName = "X-API-Key"
		}
		req.Header.Set(headerName, key)
		return
	}
	if token, ok := c.credentials["token"]; ok && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
		return
	}
	if username, ok := c.credentials["username"]; ok && username != "" {
		req.SetBasicAuth(username, c.credentials["password"])
	}
}

func (c *HTTPConnector) applyHeaders(req *http.Request) {
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "lumenquery-fusion/1.0")
	}
	for key, val := range c.headers {
		req.Header.Set(key, val)
	}
}

// unwrapRows flattens a provider response into result rows. A top-level
// array maps directly; an object is unwrapped through the configured
// results_key or the first known envelope key holding an array; an
// object with no recognizable envelope becomes a single row.
func (c *HTTPConnector) unwrapRows(body []byte) ([]map[string]interface{}, error) {
	var parsed interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}

	switch v := parsed.(type) {
	case []interface{}:
		return itemsToRows(v), nil
	case map[string]interface{}:
		keys := resultEnvelopeKeys
		if c.resultsKey != "" {
			keys = []string{c.resultsKey}
		}
		for _, key := range keys {
			if arr, ok := v[key].([]interface{}); ok {
				return itemsToRows(arr), nil
			}
		}
		return []map[string]interface{}{v}, nil
	default:
		return []map[string]interface{}{{"value": v}}, nil
	}
}

func itemsToRows(items []interface{}) []map[string]interface{} {
	rows := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		if itemMap, ok := item.(map[string]interface{}); ok {
			rows = append(rows, itemMap)
		} else {
			rows = append(rows, map[string]interface{}{"value": item})
		}
	}
	return rows
}

// transientError marks a failure worth retrying.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
