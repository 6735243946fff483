package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/france-chomage/jobcomb/app/categories"
	"github.com/france-chomage/jobcomb/app/database"
	"github.com/france-chomage/jobcomb/app/ingest"
)

type mockRegistry struct {
	profiles map[string]*categories.Profile
	reloaded bool
}

func (m *mockRegistry) Get(name string) (*categories.Profile, error) {
	profile, ok := m.profiles[name]
	if !ok {
		return nil, categories.ErrNotFound
	}
	if !profile.Enabled {
		return nil, categories.ErrDisabled
	}
	return profile, nil
}

func (m *mockRegistry) Enabled() []*categories.Profile {
	var enabled []*categories.Profile
	for _, profile := range m.profiles {
		if profile.Enabled {
			enabled = append(enabled, profile)
		}
	}
	return enabled
}

func (m *mockRegistry) Count() int { return len(m.profiles) }

func (m *mockRegistry) Reload() error {
	m.reloaded = true
	return nil
}

type mockCycles struct {
	counts      ingest.Counts
	ingestErr   error
	sent        int
	sendErr     error
	rescheduled bool
}

func (m *mockCycles) IngestCategory(ctx context.Context, name string) (ingest.Counts, error) {
	return m.counts, m.ingestErr
}

func (m *mockCycles) SendCategory(ctx context.Context, name string) (int, error) {
	return m.sent, m.sendErr
}

func (m *mockCycles) Reschedule() error {
	m.rescheduled = true
	return nil
}

type mockStore struct {
	stats        *database.Stats
	cacheCleared bool
}

func (m *mockStore) CreateIfNew(job database.Job) (*database.Job, bool, error) {
	return nil, false, nil
}

func (m *mockStore) GetUnsent(category string, maxAgeDays int) ([]database.Job, error) {
	return nil, nil
}

func (m *mockStore) MarkSent(ids []int64) (int, error) { return 0, nil }

func (m *mockStore) PurgeOlderThan(days int) (int, error) { return 0, nil }

func (m *mockStore) Stats(days int) (*database.Stats, error) {
	return m.stats, nil
}

func (m *mockStore) ClearCache() { m.cacheCleared = true }

func newTestServer(registry *mockRegistry, cycles *mockCycles, apiKey string) *gin.Engine {
	handler := NewHandler(registry, &mockStore{stats: &database.Stats{
		Total:       10,
		Delivered:   6,
		Pending:     4,
		PerCategory: map[string]database.CategoryStats{},
		PeriodDays:  30,
	}}, cycles, "test")
	return NewServer(handler, apiKey)
}

func testRegistry() *mockRegistry {
	return &mockRegistry{profiles: map[string]*categories.Profile{
		"informatique": {Name: "informatique", SearchTerms: "développeur",
			TopicID: 3, FetchHours: []int{9}, Enabled: true},
		"restauration": {Name: "restauration", SearchTerms: "cuisinier",
			TopicID: 7, FetchHours: []int{9}},
	}}
}

func TestGetHealth(t *testing.T) {
	server := newTestServer(testRegistry(), &mockCycles{}, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("Expected status 'ok', got %v", body["status"])
	}
	if body["loaded_categories"] != float64(2) {
		t.Errorf("Expected 2 loaded categories, got %v", body["loaded_categories"])
	}
}

func TestGetStats(t *testing.T) {
	server := newTestServer(testRegistry(), &mockCycles{}, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["total"] != float64(10) {
		t.Errorf("Expected total 10, got %v", body["total"])
	}
	if body["pending"] != float64(4) {
		t.Errorf("Expected pending 4, got %v", body["pending"])
	}
}

func TestAPIRequiresKey(t *testing.T) {
	server := newTestServer(testRegistry(), &mockCycles{}, "secret")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/categories", nil)
	server.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without key, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/categories", nil)
	req.Header.Set("X-API-Key", "wrong")
	server.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with wrong key, got %d", w.Code)
	}
}

func TestAPIAcceptsBearerToken(t *testing.T) {
	server := newTestServer(testRegistry(), &mockCycles{}, "secret")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/categories", nil)
	req.Header.Set("Authorization", "Bearer secret")
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 with bearer token, got %d", w.Code)
	}
}

func TestAPIDisabledWithoutKey(t *testing.T) {
	server := newTestServer(testRegistry(), &mockCycles{}, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/categories", nil)
	server.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 when API is disabled, got %d", w.Code)
	}
}

func TestAPIIngestCategory(t *testing.T) {
	cycles := &mockCycles{counts: ingest.Counts{Fetched: 5, Stored: 3, Duplicates: 2}}
	server := newTestServer(testRegistry(), cycles, "secret")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/categories/informatique/ingest", nil)
	req.Header.Set("X-API-Key", "secret")
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["stored"] != float64(3) {
		t.Errorf("Expected 3 stored, got %v", body["stored"])
	}
}

func TestAPIIngestUnknownCategory(t *testing.T) {
	server := newTestServer(testRegistry(), &mockCycles{}, "secret")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/categories/plomberie/ingest", nil)
	req.Header.Set("X-API-Key", "secret")
	server.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown category, got %d", w.Code)
	}
}

func TestAPIIngestDisabledCategory(t *testing.T) {
	server := newTestServer(testRegistry(), &mockCycles{}, "secret")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/categories/restauration/ingest", nil)
	req.Header.Set("X-API-Key", "secret")
	server.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for disabled category, got %d", w.Code)
	}
}

func TestAPISendCategoryError(t *testing.T) {
	cycles := &mockCycles{sendErr: errors.New("transport unavailable")}
	server := newTestServer(testRegistry(), cycles, "secret")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/categories/informatique/send", nil)
	req.Header.Set("X-API-Key", "secret")
	server.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 for delivery error, got %d", w.Code)
	}
}

func TestAPIWorkflow(t *testing.T) {
	cycles := &mockCycles{counts: ingest.Counts{Fetched: 4, Stored: 4}, sent: 4}
	server := newTestServer(testRegistry(), cycles, "secret")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/categories/informatique/workflow", nil)
	req.Header.Set("X-API-Key", "secret")
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["stored"] != float64(4) || body["sent"] != float64(4) {
		t.Errorf("Expected stored=4 sent=4, got %v", body)
	}
}

func TestAPIReload(t *testing.T) {
	registry := testRegistry()
	cycles := &mockCycles{}
	server := newTestServer(registry, cycles, "secret")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/reload", nil)
	req.Header.Set("X-API-Key", "secret")
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !registry.reloaded {
		t.Error("Expected registry reload")
	}
	if !cycles.rescheduled {
		t.Error("Expected scheduler reschedule after reload")
	}
}

func TestAPIClearCache(t *testing.T) {
	store := &mockStore{stats: &database.Stats{}}
	handler := NewHandler(testRegistry(), store, &mockCycles{}, "test")
	server := NewServer(handler, "secret")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/cache/clear", nil)
	req.Header.Set("X-API-Key", "secret")
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !store.cacheCleared {
		t.Error("Expected the dedup cache cleared")
	}
}
