// Package testutil provides testing utilities for the follower enrichment service.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"
)

// UserFixture describes one mock provider user.
type UserFixture struct {
	ID             string
	Username       string
	FullName       string
	FollowersCount int
	IsPrivate      bool
}

// MockResponse defines a canned response for a mock endpoint.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// failureScript makes an endpoint fail a fixed number of times before
// falling through to the normal behavior.
type failureScript struct {
	remaining  int
	statusCode int
	headers    map[string]string
}

// MockProvider is a configurable mock of the social data provider API.
// It serves the listing, lookup, and username-resolution endpoints with
// registered fixtures and optional scripted failures.
type MockProvider struct {
	server *httptest.Server

	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	users     map[string]UserFixture
	usernames map[string]string
	pageBody  []byte

	lookupFailures map[string]*failureScript
	listFailure    *failureScript

	// Tracking
	RequestCount int
	LookupCounts map[string]int
	LastQuery    url.Values
}

// NewMockProvider creates a new mock provider server.
func NewMockProvider() *MockProvider {
	mock := &MockProvider{
		handlers:       make(map[string]func(w http.ResponseWriter, r *http.Request)),
		users:          make(map[string]UserFixture),
		usernames:      make(map[string]string),
		lookupFailures: make(map[string]*failureScript),
		LookupCounts:   make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastQuery = r.URL.Query()
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockProvider) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockProvider) Close() {
	m.server.Close()
}

// Reset clears all fixtures, failure scripts, and tracking counters.
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = make(map[string]func(w http.ResponseWriter, r *http.Request))
	m.users = make(map[string]UserFixture)
	m.usernames = make(map[string]string)
	m.pageBody = nil
	m.lookupFailures = make(map[string]*failureScript)
	m.listFailure = nil
	m.RequestCount = 0
	m.LookupCounts = make(map[string]int)
	m.LastQuery = nil
}

// SetHandler sets a custom handler for a specific path, overriding the
// default endpoint behavior.
func (m *MockProvider) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple canned response for a path.
func (m *MockProvider) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
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
	})
}

// AddUser registers a user fixture served by the lookup endpoint.
func (m *MockProvider) AddUser(u UserFixture) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	if u.Username != "" {
		m.usernames[u.Username] = u.ID
	}
}

// SetFollowersPage configures the listing endpoint with the object
// response shape: {"users": [...], "next_max_id": "..."}.
func (m *MockProvider) SetFollowersPage(followers []UserFixture, nextCursor string) {
	page := map[string]any{"users": followerRecords(followers)}
	if nextCursor != "" {
		page["next_max_id"] = nextCursor
	}
	body, _ := json.Marshal(page)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageBody = body
}

// SetFollowersPageList configures the listing endpoint with the list
// response shape: [users[], next_max_id_or_null].
func (m *MockProvider) SetFollowersPageList(followers []UserFixture, nextCursor string) {
	var cursor any
	if nextCursor != "" {
		cursor = nextCursor
	}
	body, _ := json.Marshal([]any{followerRecords(followers), cursor})

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageBody = body
}

// FailLookups makes the lookup endpoint fail `times` times with the given
// status for one user id before serving the registered fixture.
func (m *MockProvider) FailLookups(id string, times, statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookupFailures[id] = &failureScript{remaining: times, statusCode: statusCode}
}

// FailListings makes the listing endpoint fail `times` times with the
// given status before serving the configured page.
func (m *MockProvider) FailListings(times, statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listFailure = &failureScript{remaining: times, statusCode: statusCode}
}

// FailListingsWithRetryAfter is FailListings with a Retry-After header on
// the failure responses.
func (m *MockProvider) FailListingsWithRetryAfter(times, statusCode int, retryAfter string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listFailure = &failureScript{
		remaining:  times,
		statusCode: statusCode,
		headers:    map[string]string{"Retry-After": retryAfter},
	}
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockProvider) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetLookupCount returns the number of lookup calls for one user id.
func (m *MockProvider) GetLookupCount(id string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LookupCounts[id]
}

// defaultHandler serves the three provider endpoints from registered fixtures.
func (m *MockProvider) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	switch r.URL.Path {
	case "/v1/user/followers/chunk":
		m.handleListing(w)
	case "/v1/user/by/id":
		m.handleLookup(w, r.URL.Query().Get("id"))
	case "/v1/user/by/username":
		m.handleResolve(w, r.URL.Query().Get("username"))
	default:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"detail": "unknown endpoint"}`)
	}
}

func (m *MockProvider) handleListing(w http.ResponseWriter) {
	m.mu.Lock()
	if m.listFailure != nil && m.listFailure.remaining > 0 {
		m.listFailure.remaining--
		script := *m.listFailure
		m.mu.Unlock()
		for key, value := range script.headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(script.statusCode)
		fmt.Fprint(w, `{"detail": "scripted failure"}`)
		return
	}
	body := m.pageBody
	m.mu.Unlock()

	if body == nil {
		// No page configured: an account with no followers
		body = []byte(`{"users": []}`)
	}
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (m *MockProvider) handleLookup(w http.ResponseWriter, id string) {
	m.mu.Lock()
	m.LookupCounts[id]++
	if script, ok := m.lookupFailures[id]; ok && script.remaining > 0 {
		script.remaining--
		statusCode := script.statusCode
		m.mu.Unlock()
		w.WriteHeader(statusCode)
		fmt.Fprint(w, `{"detail": "scripted failure"}`)
		return
	}
	user, ok := m.users[id]
	m.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"detail": "user not found"}`)
		return
	}

	body, _ := json.Marshal(map[string]any{
		"pk":              user.ID,
		"username":        user.Username,
		"full_name":       user.FullName,
		"followers_count": user.FollowersCount,
		"is_private":      user.IsPrivate,
	})
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (m *MockProvider) handleResolve(w http.ResponseWriter, username string) {
	m.mu.RLock()
	id, ok := m.usernames[username]
	m.mu.RUnlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"detail": "user not found"}`)
		return
	}

	body, _ := json.Marshal(map[string]any{"pk": id, "username": username})
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// followerRecords renders fixtures as minimal listing records.
func followerRecords(followers []UserFixture) []map[string]any {
	records := make([]map[string]any, 0, len(followers))
	for _, f := range followers {
		records = append(records, map[string]any{
			"pk":       f.ID,
			"username": f.Username,
		})
	}
	return records
}
