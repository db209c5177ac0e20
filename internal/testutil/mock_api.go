// Package testutil provides testing utilities for batch fetchers.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockAPIResponse overrides the behavior of the mock batch endpoint.
type MockAPIResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockAPI is a configurable mock upstream serving items by key from a single
// batch endpoint: GET <path>?<param>=k1&<param>=k2...
type MockAPI struct {
	server *httptest.Server
	path   string
	param  string
	keyOf  string

	mu       sync.RWMutex
	items    map[string]map[string]any
	override *MockAPIResponse
	single   bool

	// Tracking
	requests          [][]string
	LastRequestHeader http.Header
}

// NewMockAPI creates a mock API serving path, reading keys from the param
// query parameter and matching them against the keyField of stored items.
func NewMockAPI(path, param, keyField string) *MockAPI {
	mock := &MockAPI{
		path:  path,
		param: param,
		keyOf: keyField,
		items: make(map[string]map[string]any),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, mock.handle)
	mock.server = httptest.NewServer(mux)

	return mock
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// AddItem stores an item, keyed by its key field.
func (m *MockAPI) AddItem(item map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, _ := item[m.keyOf].(string)
	m.items[key] = item
}

// SetResponse replaces the item lookup with a fixed response.
// Passing nil restores the default behavior.
func (m *MockAPI) SetResponse(resp *MockAPIResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.override = resp
}

// SetSingleItemResponses makes single-key requests answer with a bare object
// instead of a one-element array.
func (m *MockAPI) SetSingleItemResponses(single bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.single = single
}

// Requests returns the key lists of all requests received so far.
func (m *MockAPI) Requests() [][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]string, len(m.requests))
	copy(out, m.requests)
	return out
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

func (m *MockAPI) handle(w http.ResponseWriter, r *http.Request) {
	keys := r.URL.Query()[m.param]

	m.mu.Lock()
	m.requests = append(m.requests, keys)
	m.LastRequestHeader = r.Header.Clone()
	override := m.override
	single := m.single
	found := make([]map[string]any, 0, len(keys))
	for _, key := range keys {
		if item, ok := m.items[key]; ok {
			found = append(found, item)
		}
	}
	m.mu.Unlock()

	if override != nil {
		if override.Delay > 0 {
			time.Sleep(override.Delay)
		}
		for key, value := range override.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(override.StatusCode)
		if override.Body != "" {
			w.Write([]byte(override.Body))
		}
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	if single && len(keys) == 1 && len(found) == 1 {
		json.NewEncoder(w).Encode(found[0])
		return
	}
	json.NewEncoder(w).Encode(found)
}

// NewServerErrorResponse creates a 500 response with a JSON message.
func NewServerErrorResponse(message string) *MockAPIResponse {
	body, _ := json.Marshal(map[string]string{"message": message})
	return &MockAPIResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewNestedExceptionResponse creates a 500 response shaped like a .NET
// exception with an inner exception.
func NewNestedExceptionResponse(outer, inner string) *MockAPIResponse {
	body, _ := json.Marshal(map[string]any{
		"Message": outer,
		"innerException": map[string]any{
			"ExceptionMessage": inner,
		},
	})
	return &MockAPIResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}
