package mock

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// RecordedRequest запрос, принятый тестовым сервером.
type RecordedRequest struct {
	Method     string
	Path       string
	Header     http.Header
	Body       []byte
	ReceivedAt time.Time
}

// TestServer provides utilities for testing HTTP clients
type TestServer struct {
	*httptest.Server
	requests []RecordedRequest
	mu       sync.Mutex
}

// NewTestServer creates a new test server
func NewTestServer(handler http.HandlerFunc) *TestServer {
	ts := &TestServer{}

	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		ts.mu.Lock()
		ts.requests = append(ts.requests, RecordedRequest{
			Method:     r.Method,
			Path:       r.URL.RequestURI(),
			Header:     r.Header.Clone(),
			Body:       body,
			ReceivedAt: time.Now(),
		})
		ts.mu.Unlock()

		if handler != nil {
			handler(w, r)
		}
	}))

	return ts
}

// GetRequests returns all recorded requests
func (ts *TestServer) GetRequests() []RecordedRequest {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	requests := make([]RecordedRequest, len(ts.requests))
	copy(requests, ts.requests)
	return requests
}

// GetLastRequest returns the last recorded request
func (ts *TestServer) GetLastRequest() (RecordedRequest, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if len(ts.requests) == 0 {
		return RecordedRequest{}, false
	}
	return ts.requests[len(ts.requests)-1], true
}

// RequestCount returns the number of recorded requests
func (ts *TestServer) RequestCount() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.requests)
}

// Reset clears all recorded requests
func (ts *TestServer) Reset() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.requests = nil
}

// StatusSequenceHandler отвечает статусами по порядку, затем последним из списка.
// Тело ответа {"attempt": N}.
type StatusSequenceHandler struct {
	mu       sync.Mutex
	statuses []int
	attempts int
}

// NewStatusSequenceHandler creates a handler answering with statuses in order
func NewStatusSequenceHandler(statuses ...int) *StatusSequenceHandler {
	if len(statuses) == 0 {
		statuses = []int{http.StatusOK}
	}
	return &StatusSequenceHandler{statuses: statuses}
}

// ServeHTTP implements http.Handler
func (h *StatusSequenceHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	idx := h.attempts
	if idx >= len(h.statuses) {
		idx = len(h.statuses) - 1
	}
	status := h.statuses[idx]
	h.attempts++
	attempt := h.attempts
	h.mu.Unlock()

	WriteJSON(w, status, map[string]int{"attempt": attempt})
}

// Attempts returns the number of handled requests
func (h *StatusSequenceHandler) Attempts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attempts
}

// WriteJSON пишет JSON ответ с указанным статусом
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
