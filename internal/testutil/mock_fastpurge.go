// Package testutil provides testing utilities for the Fast Purge client.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock Fast Purge endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is a purge request received by the mock.
type RecordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// Objects decodes the "objects" array of the request body as strings.
// CP codes are returned in their decimal form.
func (r RecordedRequest) Objects() ([]string, error) {
	var body struct {
		Objects []json.Number `json:"objects"`
	}
	if err := json.Unmarshal(r.Body, &body); err == nil {
		out := make([]string, len(body.Objects))
		for i, n := range body.Objects {
			out[i] = n.String()
		}
		return out, nil
	}

	var strBody struct {
		Objects []string `json:"objects"`
	}
	if err := json.Unmarshal(r.Body, &strBody); err != nil {
		return nil, fmt.Errorf("decode objects: %w", err)
	}
	return strBody.Objects, nil
}

// MockFastPurge is a configurable mock Fast Purge server for testing.
type MockFastPurge struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	requests []RecordedRequest
}

// NewMockFastPurge creates a new mock Fast Purge server.
func NewMockFastPurge() *MockFastPurge {
	mock := &MockFastPurge{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))

		mock.mu.Lock()
		mock.requests = append(mock.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Header: r.Header.Clone(),
			Body:   body,
		})
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockFastPurge) URL() string {
	return m.server.URL
}

// HostPort returns the host and port the mock listens on.
func (m *MockFastPurge) HostPort() (string, int) {
	u, err := url.Parse(m.server.URL)
	if err != nil {
		panic(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		panic(err)
	}
	return u.Hostname(), port
}

// Close shuts down the mock server.
func (m *MockFastPurge) Close() {
	m.server.Close()
}

// SetHandler sets a custom handler for a specific path.
func (m *MockFastPurge) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockFastPurge) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, writeResponse(resp))
}

// SetSequence answers successive requests to path with resps in order,
// repeating the last one once exhausted.
func (m *MockFastPurge) SetSequence(path string, resps ...MockResponse) {
	var mu sync.Mutex
	next := 0
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := resps[next]
		if next < len(resps)-1 {
			next++
		}
		mu.Unlock()
		writeResponse(resp)(w, r)
	})
}

// Requests returns a copy of every request received.
func (m *MockFastPurge) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockFastPurge) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// Reset clears recorded requests.
func (m *MockFastPurge) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// defaultHandler accepts every purge.
func (m *MockFastPurge) defaultHandler(w http.ResponseWriter, r *http.Request) {
	writeResponse(NewAcceptedResponse(0.1))(w, r)
}

func writeResponse(resp MockResponse) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	}
}

// NewAcceptedResponse creates a 201 Created purge response.
func NewAcceptedResponse(estimatedSeconds float64) MockResponse {
	return MockResponse{
		StatusCode: http.StatusCreated,
		Body: fmt.Sprintf(`{"httpStatus":201,"detail":"Request accepted","estimatedSeconds":%g,"purgeId":"e535071c-26b2-11e7-94d7-276f2f54d938","supportId":"17PY1492793544958045-219026624"}`,
			estimatedSeconds),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter string) MockResponse {
	headers := map[string]string{
		"Content-Type": "application/problem+json",
	}
	if retryAfter != "" {
		headers["Retry-After"] = retryAfter
	}
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"type":"https://problems.purge.akamaiapis.net/-/pep-authn/request-rate-limit","title":"Too many requests","status":429,"detail":"The rate limit has been exceeded."}`,
		Headers:    headers,
	}
}

// NewServerErrorResponse creates a 503 Service Unavailable response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusServiceUnavailable,
		Body:       `{"title":"Service unavailable","status":503,"detail":"simulated internal error"}`,
		Headers: map[string]string{
			"Content-Type": "application/problem+json",
		},
	}
}

// NewUnauthorizedResponse creates a 401 Unauthorized response.
func NewUnauthorizedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"title":"Not authorized","status":401,"detail":"The signature does not match"}`,
		Headers: map[string]string{
			"Content-Type": "application/problem+json",
		},
	}
}

// NewBadRequestResponse creates a 400 Bad Request response.
func NewBadRequestResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusBadRequest,
		Body:       `{"title":"Bad request","status":400,"detail":"Invalid purge object"}`,
		Headers: map[string]string{
			"Content-Type": "application/problem+json",
		},
	}
}
