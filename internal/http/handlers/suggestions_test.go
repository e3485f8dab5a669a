package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func listContext(t *testing.T, query string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/suggestions"+query, nil)
	return c, rec
}

func TestSuggestionListFilter(t *testing.T) {
	projectID := uuid.New()
	pfID := uuid.New()
	nodeID := uuid.New()

	t.Run("all params", func(t *testing.T) {
		c, _ := listContext(t, "?status=pending&project_framework_id="+pfID.String()+"&node_id="+nodeID.String())
		filter, ok := suggestionListFilter(c, projectID)
		if !ok {
			t.Fatal("filter rejected valid params")
		}
		if filter.ProjectID != projectID {
			t.Fatalf("project = %s, want %s", filter.ProjectID, projectID)
		}
		if filter.Status != "pending" {
			t.Fatalf("status = %q", filter.Status)
		}
		if filter.ProjectFrameworkID == nil || *filter.ProjectFrameworkID != pfID {
			t.Fatalf("project framework = %v, want %s", filter.ProjectFrameworkID, pfID)
		}
		if filter.NodeID == nil || *filter.NodeID != nodeID {
			t.Fatalf("node = %v, want %s", filter.NodeID, nodeID)
		}
	})

	t.Run("node scope alone", func(t *testing.T) {
		c, _ := listContext(t, "?node_id="+nodeID.String())
		filter, ok := suggestionListFilter(c, projectID)
		if !ok {
			t.Fatal("filter rejected valid params")
		}
		if filter.NodeID == nil || *filter.NodeID != nodeID {
			t.Fatalf("node = %v, want %s", filter.NodeID, nodeID)
		}
		if filter.ProjectFrameworkID != nil || filter.Status != "" {
			t.Fatalf("filter = %+v, want only project and node set", filter)
		}
	})

	t.Run("no params", func(t *testing.T) {
		c, _ := listContext(t, "")
		filter, ok := suggestionListFilter(c, projectID)
		if !ok {
			t.Fatal("filter rejected empty query")
		}
		if filter.ProjectFrameworkID != nil || filter.NodeID != nil || filter.Status != "" {
			t.Fatalf("filter = %+v, want only project set", filter)
		}
	})

	t.Run("malformed node_id", func(t *testing.T) {
		c, rec := listContext(t, "?node_id=not-a-uuid")
		if _, ok := suggestionListFilter(c, projectID); ok {
			t.Fatal("expected rejection")
		}
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("malformed project_framework_id", func(t *testing.T) {
		c, rec := listContext(t, "?project_framework_id=nope")
		if _, ok := suggestionListFilter(c, projectID); ok {
			t.Fatal("expected rejection")
		}
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})
}
