package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	httphdlr "mediaflow/handler/http"
	"mediaflow/src/infrastructure/job"
)

// emptyRepo is a job.Repository with no records.
type emptyRepo struct{}

func (emptyRepo) Insert(context.Context, *job.Job) (string, error)             { return "", nil }
func (emptyRepo) Get(context.Context, string) (*job.Job, error)                { return nil, nil }
func (emptyRepo) Update(context.Context, string, map[string]any) error         { return nil }
func (emptyRepo) Find(context.Context, job.Filter, int, int) ([]job.Job, error) { return nil, nil }
func (emptyRepo) Count(context.Context, job.Filter) (int64, error)             { return 0, nil }

func TestListJobsEmptyPageIsArray(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	httphdlr.NewHandler(job.NewRegistry(emptyRepo{}), nil, nil).RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/list", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if got := strings.TrimSpace(string(body["jobs"])); got != "[]" {
		t.Errorf("jobs = %s, want []", got)
	}
}
