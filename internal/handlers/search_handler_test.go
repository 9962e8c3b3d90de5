package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/jeiths2202/ims-crawler/internal/models"
)

// mockSearchService implements interfaces.SearchService for testing
type mockSearchService struct {
	hybridFunc func(ctx context.Context, userID, query string, limit int) ([]*models.Issue, error)
}

func (m *mockSearchService) Hybrid(ctx context.Context, userID, query string, limit int) ([]*models.Issue, error) {
	if m.hybridFunc != nil {
		return m.hybridFunc(ctx, userID, query, limit)
	}
	return nil, nil
}

func newSearchHandler(search *mockSearchService, crawler *mockCrawlerService, issues *mockIssueStorage) *SearchHandler {
	if crawler == nil {
		crawler = &mockCrawlerService{}
	}
	if issues == nil {
		issues = &mockIssueStorage{}
	}
	return NewSearchHandler(search, crawler, issues, arbor.NewLogger())
}

func TestSearchHandler_Success(t *testing.T) {
	var capturedUser, capturedQuery string
	var capturedLimit int
	mockService := &mockSearchService{
		hybridFunc: func(ctx context.Context, userID, query string, limit int) ([]*models.Issue, error) {
			capturedUser = userID
			capturedQuery = query
			capturedLimit = limit
			return []*models.Issue{
				{ID: 1, IMSID: "900001", Title: "JEUS deploy NPE"},
				{ID: 2, IMSID: "900002", Title: "Tibero lock wait"},
			}, nil
		},
	}

	handler := newSearchHandler(mockService, nil, nil)
	req := httptest.NewRequest("GET", "/api/search?user_id=user-1&q=deadlock&limit=5", nil)
	rec := httptest.NewRecorder()

	handler.SearchHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if capturedUser != "user-1" || capturedQuery != "deadlock" || capturedLimit != 5 {
		t.Errorf("Unexpected service args: user=%q query=%q limit=%d", capturedUser, capturedQuery, capturedLimit)
	}

	var response map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response["query"] != "deadlock" {
		t.Errorf("Expected query 'deadlock', got %v", response["query"])
	}
	if int(response["count"].(float64)) != 2 {
		t.Errorf("Expected count 2, got %v", response["count"])
	}
}

func TestSearchHandler_MissingParams(t *testing.T) {
	handler := newSearchHandler(&mockSearchService{}, nil, nil)

	for _, url := range []string{"/api/search", "/api/search?q=x", "/api/search?user_id=u"} {
		req := httptest.NewRequest("GET", url, nil)
		rec := httptest.NewRecorder()

		handler.SearchHandler(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", url, rec.Code)
		}
	}
}

func TestSearchHandler_InvalidLimit(t *testing.T) {
	handler := newSearchHandler(&mockSearchService{}, nil, nil)
	req := httptest.NewRequest("GET", "/api/search?user_id=u&q=x&limit=-3", nil)
	rec := httptest.NewRecorder()

	handler.SearchHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestSearchHandler_ServiceError(t *testing.T) {
	mockService := &mockSearchService{
		hybridFunc: func(ctx context.Context, userID, query string, limit int) ([]*models.Issue, error) {
			return nil, &mockError{msg: "embedding provider unavailable"}
		},
	}

	handler := newSearchHandler(mockService, nil, nil)
	req := httptest.NewRequest("GET", "/api/search?user_id=u&q=x", nil)
	rec := httptest.NewRecorder()

	handler.SearchHandler(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d", rec.Code)
	}

	var response map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&response)
	if response["status"] != "error" {
		t.Errorf("Expected status 'error', got %v", response["status"])
	}
}

func TestIssuesHandler_DefaultLimit(t *testing.T) {
	var capturedLimit int
	issues := &mockIssueStorage{
		findByUserIDFunc: func(ctx context.Context, userID string, limit int) ([]*models.Issue, error) {
			capturedLimit = limit
			return []*models.Issue{{ID: 1, IMSID: "900001"}}, nil
		},
		countByUserFunc: func(ctx context.Context, userID string) (int, error) {
			return 37, nil
		},
	}

	handler := newSearchHandler(&mockSearchService{}, nil, issues)
	req := httptest.NewRequest("GET", "/api/issues?user_id=user-1", nil)
	rec := httptest.NewRecorder()

	handler.IssuesHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if capturedLimit != 100 {
		t.Errorf("Expected default limit 100, got %d", capturedLimit)
	}

	var response map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&response)
	if int(response["total"].(float64)) != 37 {
		t.Errorf("Expected total 37, got %v", response["total"])
	}
}

func TestIssuesHandler_MissingUser(t *testing.T) {
	handler := newSearchHandler(&mockSearchService{}, nil, nil)
	req := httptest.NewRequest("GET", "/api/issues", nil)
	rec := httptest.NewRecorder()

	handler.IssuesHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestBackfillHandler(t *testing.T) {
	var capturedUser string
	crawler := &mockCrawlerService{
		backfillFunc: func(ctx context.Context, userID string) (int, error) {
			capturedUser = userID
			return 12, nil
		},
	}

	handler := newSearchHandler(&mockSearchService{}, crawler, nil)
	req := httptest.NewRequest("POST", "/api/embeddings/backfill", strings.NewReader(`{"user_id":"user-1"}`))
	rec := httptest.NewRecorder()

	handler.BackfillHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if capturedUser != "user-1" {
		t.Errorf("Expected backfill for user-1, got %q", capturedUser)
	}

	var response map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&response)
	if int(response["backfilled"].(float64)) != 12 {
		t.Errorf("Expected backfilled 12, got %v", response["backfilled"])
	}
}

func TestBackfillHandler_MissingUser(t *testing.T) {
	handler := newSearchHandler(&mockSearchService{}, nil, nil)
	req := httptest.NewRequest("POST", "/api/embeddings/backfill", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	handler.BackfillHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

// mockError implements error interface for testing
type mockError struct {
	msg string
}

func (e *mockError) Error() string {
	return e.msg
}
