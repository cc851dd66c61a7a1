package helpers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"

	"github.com/boreal-financial/catalog-sync/internal/sources"
)

// MockStaffAPI serves GET /public/lenders with a response that can be swapped between passes
type MockStaffAPI struct {
	*httptest.Server

	mu       sync.Mutex
	status   int
	body     string
	token    string
	requests atomic.Int32
}

// NewMockStaffAPI starts a staff API answering with records
func NewMockStaffAPI(records []LenderRecord) *MockStaffAPI {
	m := &MockStaffAPI{status: http.StatusOK, body: BuildLendersJSON(records)}
	m.Server = httptest.NewServer(http.HandlerFunc(m.serve))
	return m
}

func (m *MockStaffAPI) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != sources.LendersPath {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	m.requests.Add(1)

	m.mu.Lock()
	status, body, token := m.status, m.body, m.token
	m.mu.Unlock()

	if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

// RespondWith replaces the response for subsequent requests
func (m *MockStaffAPI) RespondWith(status int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
	m.body = body
}

// RespondWithRecords serves records with status 200
func (m *MockStaffAPI) RespondWithRecords(records []LenderRecord) {
	m.RespondWith(http.StatusOK, BuildLendersJSON(records))
}

// RequireToken rejects requests that do not carry token as a bearer token
func (m *MockStaffAPI) RequireToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}

// Requests returns the number of lender requests served
func (m *MockStaffAPI) Requests() int {
	return int(m.requests.Load())
}
