// Package testutil provides testing utilities for the screener client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// MockPage defines the response served for one page number.
type MockPage struct {
	StatusCode int
	TotalCount int
	Hits       []map[string]any

	// Body, when set, is written verbatim instead of the encoded page.
	Body  string
	Delay time.Duration
}

// MockScreener is a configurable mock of the screener search service.
// Page k of a retrieval is served from the k-th configured MockPage; pages
// beyond the configured ones return zero hits with the last total.
type MockScreener struct {
	server *httptest.Server
	mu     sync.RWMutex
	pages  []MockPage

	// Tracking
	pagesRequested    []int
	lastRequestHeader http.Header
	lastForm          url.Values
}

// NewMockScreener creates a new mock screener server.
func NewMockScreener(pages ...MockPage) *MockScreener {
	mock := &MockScreener{pages: pages}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server URL.
func (m *MockScreener) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockScreener) Close() {
	m.server.Close()
}

// Reset clears all tracking state.
func (m *MockScreener) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pagesRequested = nil
	m.lastRequestHeader = nil
	m.lastForm = nil
}

// SetPages replaces the configured pages.
func (m *MockScreener) SetPages(pages ...MockPage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages = pages
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockScreener) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pagesRequested)
}

// PagesRequested returns the page numbers in request order.
func (m *MockScreener) PagesRequested() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]int, len(m.pagesRequested))
	copy(out, m.pagesRequested)
	return out
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockScreener) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRequestHeader
}

// LastForm returns the form of the most recent request.
func (m *MockScreener) LastForm() url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastForm
}

func (m *MockScreener) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	page, err := strconv.Atoi(r.PostForm.Get("pn"))
	if err != nil || page < 1 {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, `{"error": "invalid page %q"}`, r.PostForm.Get("pn"))
		return
	}

	m.mu.Lock()
	m.pagesRequested = append(m.pagesRequested, page)
	m.lastRequestHeader = r.Header.Clone()
	m.lastForm = r.PostForm
	resp := m.pageLocked(page)
	m.mu.Unlock()

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	if resp.Body != "" {
		w.Write([]byte(resp.Body))
		return
	}
	if status != http.StatusOK {
		fmt.Fprintf(w, `{"error": "status %d"}`, status)
		return
	}

	hits := resp.Hits
	if hits == nil {
		hits = []map[string]any{}
	}
	json.NewEncoder(w).Encode(map[string]any{
		"totalCount": resp.TotalCount,
		"hits":       hits,
	})
}

func (m *MockScreener) pageLocked(page int) MockPage {
	if page <= len(m.pages) {
		return m.pages[page-1]
	}
	total := 0
	if len(m.pages) > 0 {
		total = m.pages[len(m.pages)-1].TotalCount
	}
	return MockPage{StatusCode: http.StatusOK, TotalCount: total}
}

// Hits generates n screener hits with consecutive pair_ID values starting at
// first.
func Hits(first, n int) []map[string]any {
	hits := make([]map[string]any, n)
	for i := 0; i < n; i++ {
		id := first + i
		hits[i] = map[string]any{
			"pair_ID":        id,
			"name_trans":     fmt.Sprintf("Instrument %d", id),
			"stock_symbol":   fmt.Sprintf("SYM%d", id),
			"last":           float64(id) + 0.25,
			"exchange_trans": "NASDAQ",
			"viewData": map[string]any{
				"symbol": fmt.Sprintf("SYM%d", id),
				"flag":   "USA",
			},
		}
	}
	return hits
}

// NewPage creates a standard 200 OK page.
func NewPage(total int, hits []map[string]any) MockPage {
	return MockPage{StatusCode: http.StatusOK, TotalCount: total, Hits: hits}
}

// NewServerErrorPage creates a 500 Internal Server Error page.
func NewServerErrorPage() MockPage {
	return MockPage{StatusCode: http.StatusInternalServerError}
}

// NewMalformedPage creates a 200 OK page whose body is not a valid page.
func NewMalformedPage() MockPage {
	return MockPage{StatusCode: http.StatusOK, Body: `{"totalCount": 5, "hits": [`}
}
