package testutil

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/flexprice/flexbill/internal/httpclient"
)

// MockHTTPClient answers requests from registered responses and records what it was sent
type MockHTTPClient struct {
	mu       sync.RWMutex
	routes   map[string]MockResponse
	requests []*httpclient.Request
}

// MockResponse is a canned response. A non-nil Err is returned instead of a response.
type MockResponse struct {
	StatusCode int
	Body       []byte
	Headers    map[string]string
	Err        error
}

func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{
		routes: make(map[string]MockResponse),
	}
}

// RegisterResponse answers every request whose URL ends with url
func (m *MockHTTPClient) RegisterResponse(url string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[url] = resp
}

func (m *MockHTTPClient) Send(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	for route, resp := range m.routes {
		if !strings.HasSuffix(req.URL, route) {
			continue
		}
		if resp.Err != nil {
			return nil, resp.Err
		}
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, &httpclient.Error{StatusCode: resp.StatusCode, Response: resp.Body}
		}
		return &httpclient.Response{
			StatusCode: resp.StatusCode,
			Body:       resp.Body,
			Headers:    resp.Headers,
		}, nil
	}

	return nil, &httpclient.Error{StatusCode: http.StatusNotFound, Response: []byte("Not Found")}
}

// Requests returns the requests sent so far
func (m *MockHTTPClient) Requests() []*httpclient.Request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*httpclient.Request(nil), m.requests...)
}

func (m *MockHTTPClient) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = make(map[string]MockResponse)
	m.requests = nil
}
