package job_test

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"mediaflow/src/infrastructure/job"
)

// memRepo is an in-memory job.Repository. Insertion order stands in
// for created_at ordering, so Find sorts by id descending.
type memRepo struct {
	mu   sync.Mutex
	seq  int64
	jobs map[string]*job.Job
}

func newMemRepo() *memRepo {
	return &memRepo{jobs: map[string]*job.Job{}}
}

func (r *memRepo) Insert(_ context.Context, j *job.Job) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	id := strconv.FormatInt(r.seq, 10)
	stored := *j
	stored.ID = id
	r.jobs[id] = &stored
	return id, nil
}

func (r *memRepo) Get(_ context.Context, id string) (*job.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return nil, nil
	}
	return cloneJob(j), nil
}

func (r *memRepo) Update(_ context.Context, id string, fields map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return job.ErrJobNotFound
	}
	for k, v := range fields {
		switch k {
		case "job_name":
			j.Name = v.(string)
		case "status":
			j.Status = v.(job.Status)
		case "priority":
			j.Priority = v.(job.Priority)
		case "progress":
			j.Progress = v.(*job.Progress)
		case "result":
			j.Result = v.(*job.Result)
		case "retries":
			j.Retries = v.(int)
		case "metadata":
			j.Metadata = v.(map[string]any)
		case "started_at":
			t := v.(time.Time)
			j.StartedAt = &t
		case "completed_at":
			t := v.(time.Time)
			j.CompletedAt = &t
		}
	}
	return nil
}

func (r *memRepo) Find(_ context.Context, f job.Filter, offset, limit int) ([]job.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := r.match(f)
	sort.Slice(matched, func(i, k int) bool {
		a, _ := strconv.ParseInt(matched[i].ID, 10, 64)
		b, _ := strconv.ParseInt(matched[k].ID, 10, 64)
		return a > b
	})

	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (r *memRepo) Count(_ context.Context, f job.Filter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.match(f))), nil
}

func (r *memRepo) match(f job.Filter) []job.Job {
	var out []job.Job
	for _, j := range r.jobs {
		if f.EntityID != "" && j.EntityID != f.EntityID {
			continue
		}
		if f.EntityType != "" && j.EntityType != f.EntityType {
			continue
		}
		if f.Type != "" && j.Type != f.Type {
			continue
		}
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		out = append(out, *cloneJob(j))
	}
	return out
}

func cloneJob(j *job.Job) *job.Job {
	c := *j
	if j.Metadata != nil {
		c.Metadata = make(map[string]any, len(j.Metadata))
		for k, v := range j.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func TestCreateDefaults(t *testing.T) {
	registry := job.NewRegistry(newMemRepo())

	id, err := registry.Create(context.Background(), job.CreateParams{
		Type: job.TypeVideoGeneration,
		Name: "sora_op123",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if id == "" {
		t.Fatal("Create() returned empty id")
	}

	j, err := registry.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if j.Status != job.StatusPending {
		t.Errorf("status = %q, want %q", j.Status, job.StatusPending)
	}
	if j.Priority != job.PriorityNormal {
		t.Errorf("priority = %q, want %q", j.Priority, job.PriorityNormal)
	}
	if j.MaxRetries != job.DefaultMaxRetries {
		t.Errorf("max_retries = %d, want %d", j.MaxRetries, job.DefaultMaxRetries)
	}
	if j.CreatedAt.IsZero() {
		t.Error("created_at not set")
	}
}

func TestCreateEmptyName(t *testing.T) {
	repo := newMemRepo()
	registry := job.NewRegistry(repo)

	_, err := registry.Create(context.Background(), job.CreateParams{Type: job.TypeGeneral})

	var validationErr *job.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("Create() error = %v, want ValidationError", err)
	}
	if total, _ := repo.Count(context.Background(), job.Filter{}); total != 0 {
		t.Errorf("record persisted despite validation failure, count = %d", total)
	}
}

func TestGetNotFound(t *testing.T) {
	registry := job.NewRegistry(newMemRepo())

	_, err := registry.Get(context.Background(), "12345")
	if !errors.Is(err, job.ErrJobNotFound) {
		t.Fatalf("Get() error = %v, want ErrJobNotFound", err)
	}
}

func TestUpdateMergesMetadata(t *testing.T) {
	registry := job.NewRegistry(newMemRepo())

	id, _ := registry.Create(context.Background(), job.CreateParams{
		Name:     "merge-test",
		Metadata: map[string]any{"prompt": "a red fox", "model": "veo"},
	})

	j, err := registry.Update(context.Background(), id, job.UpdateParams{
		Metadata: map[string]any{"operation_id": "op-1", "model": "veo-2"},
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if j.Metadata["prompt"] != "a red fox" {
		t.Error("unrelated metadata key lost on merge")
	}
	if j.Metadata["model"] != "veo-2" {
		t.Errorf("metadata model = %v, want veo-2", j.Metadata["model"])
	}
	if j.Metadata["operation_id"] != "op-1" {
		t.Error("new metadata key not merged")
	}
	if j.Name != "merge-test" {
		t.Error("unspecified field changed by metadata update")
	}
}

func TestUpdateStatusTimestamps(t *testing.T) {
	registry := job.NewRegistry(newMemRepo())
	id, _ := registry.Create(context.Background(), job.CreateParams{Name: "ts-test"})

	started := job.StatusStarted
	j, err := registry.Update(context.Background(), id, job.UpdateParams{Status: &started})
	if err != nil {
		t.Fatalf("Update(started) error = %v", err)
	}
	if j.StartedAt == nil {
		t.Fatal("started_at not set on transition to started")
	}
	if j.CompletedAt != nil {
		t.Fatal("completed_at set before terminal status")
	}

	success := job.StatusSuccess
	j, err = registry.Update(context.Background(), id, job.UpdateParams{
		Status: &success,
		Result: &job.Result{Success: true},
	})
	if err != nil {
		t.Fatalf("Update(success) error = %v", err)
	}
	if j.CompletedAt == nil {
		t.Fatal("completed_at not set on terminal status")
	}
}

func TestTerminalResultImmutable(t *testing.T) {
	registry := job.NewRegistry(newMemRepo())
	id, _ := registry.Create(context.Background(), job.CreateParams{Name: "final-test"})

	success := job.StatusSuccess
	result := &job.Result{Success: true, Data: map[string]any{"storage_path": "videos/x.mp4"}}
	if _, err := registry.Update(context.Background(), id, job.UpdateParams{
		Status: &success,
		Result: result,
	}); err != nil {
		t.Fatalf("Update(success) error = %v", err)
	}

	// Re-applying the identical terminal outcome is a no-op.
	j, err := registry.Update(context.Background(), id, job.UpdateParams{
		Status: &success,
		Result: &job.Result{Success: true, Data: map[string]any{"storage_path": "videos/x.mp4"}},
	})
	if err != nil {
		t.Fatalf("idempotent re-apply rejected: %v", err)
	}
	if j.Result.Data["storage_path"] != "videos/x.mp4" {
		t.Error("result changed by idempotent re-apply")
	}

	// Any other mutation of a terminal job is rejected.
	tests := []struct {
		name   string
		params job.UpdateParams
	}{
		{"different result", job.UpdateParams{Result: &job.Result{Success: false, Error: "boom"}}},
		{"status change", job.UpdateParams{Status: statusPtr(job.StatusFailure)}},
		{"name change", job.UpdateParams{Name: strPtr("renamed")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := registry.Update(context.Background(), id, tt.params)
			var validationErr *job.ValidationError
			if !errors.As(err, &validationErr) {
				t.Errorf("Update() error = %v, want ValidationError", err)
			}
		})
	}
}

func TestListPagination(t *testing.T) {
	registry := job.NewRegistry(newMemRepo())

	for i := 0; i < 15; i++ {
		if _, err := registry.Create(context.Background(), job.CreateParams{
			Name: "paged-" + strconv.Itoa(i),
			Type: job.TypeVideoGeneration,
		}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	first, total, err := registry.List(context.Background(), job.Filter{}, 1, 10)
	if err != nil {
		t.Fatalf("List(page 1) error = %v", err)
	}
	if len(first) != 10 {
		t.Errorf("page 1 size = %d, want 10", len(first))
	}
	if total != 15 {
		t.Errorf("total = %d, want 15", total)
	}

	second, total, err := registry.List(context.Background(), job.Filter{}, 2, 10)
	if err != nil {
		t.Fatalf("List(page 2) error = %v", err)
	}
	if len(second) != 5 {
		t.Errorf("page 2 size = %d, want 5", len(second))
	}
	if total != 15 {
		t.Errorf("total on page 2 = %d, want 15", total)
	}

	seen := map[string]bool{}
	for _, j := range first {
		seen[j.ID] = true
	}
	for _, j := range second {
		if seen[j.ID] {
			t.Errorf("job %s appears on both pages", j.ID)
		}
	}
}

func TestListFilters(t *testing.T) {
	registry := job.NewRegistry(newMemRepo())

	registry.Create(context.Background(), job.CreateParams{Name: "a", Type: job.TypeVideoGeneration, EntityID: "video-1", EntityType: "video"})
	registry.Create(context.Background(), job.CreateParams{Name: "b", Type: job.TypeCleanup})

	jobs, total, err := registry.List(context.Background(), job.Filter{EntityID: "video-1"}, 1, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 1 || len(jobs) != 1 || jobs[0].Name != "a" {
		t.Errorf("filter by entity_id returned %d jobs (total %d)", len(jobs), total)
	}
}

func statusPtr(s job.Status) *job.Status { return &s }
func strPtr(s string) *string            { return &s }
