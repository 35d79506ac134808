package job

import (
	"context"
	"fmt"
	"reflect"
	"time"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Registry owns the Job lifecycle: creation, lookup, merge updates and
// filtered listing. All mutation goes through Update, which is the only
// write path to a job record.
type Registry struct {
	repo Repository
}

func NewRegistry(repo Repository) *Registry {
	return &Registry{repo: repo}
}

// CreateParams describes a new job. Name is required.
type CreateParams struct {
	Type       Type
	Name       string
	Priority   Priority
	EntityID   string
	EntityType string
	Metadata   map[string]any
	MaxRetries int
	RetryDelay int
	ExpiresAt  *time.Time
}

// Create persists a new pending job and returns its identifier.
func (r *Registry) Create(ctx context.Context, p CreateParams) (string, error) {
	if p.Name == "" {
		return "", &ValidationError{Field: "job_name", Message: "must not be empty"}
	}
	if p.Type == "" {
		p.Type = TypeGeneral
	}
	if !p.Type.Valid() {
		return "", &ValidationError{Field: "job_type", Message: fmt.Sprintf("unknown type %q", p.Type)}
	}
	if p.Priority == "" {
		p.Priority = PriorityNormal
	}
	if !p.Priority.Valid() {
		return "", &ValidationError{Field: "priority", Message: fmt.Sprintf("unknown priority %q", p.Priority)}
	}
	if p.MaxRetries <= 0 {
		p.MaxRetries = DefaultMaxRetries
	}

	j := &Job{
		Type:       p.Type,
		Name:       p.Name,
		Status:     StatusPending,
		Priority:   p.Priority,
		Metadata:   p.Metadata,
		EntityID:   p.EntityID,
		EntityType: p.EntityType,
		CreatedAt:  time.Now().UTC(),
		ExpiresAt:  p.ExpiresAt,
		MaxRetries: p.MaxRetries,
		RetryDelay: p.RetryDelay,
	}

	id, err := r.repo.Insert(ctx, j)
	if err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}
	return id, nil
}

// Get returns the job or ErrJobNotFound.
func (r *Registry) Get(ctx context.Context, id string) (*Job, error) {
	j, err := r.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	if j == nil {
		return nil, ErrJobNotFound
	}
	return j, nil
}

// UpdateParams carries the mutable job fields. Nil pointers leave the
// corresponding field untouched; Metadata entries are merged key by key
// into the existing bag.
type UpdateParams struct {
	Name     *string
	Status   *Status
	Priority *Priority
	Progress *Progress
	Metadata map[string]any
	Result   *Result
	Retries  *int
}

// Update merges the given fields into the job and returns the fresh
// record. A terminal job accepts only an idempotent re-application of
// its existing result/status; any other mutation is rejected.
func (r *Registry) Update(ctx context.Context, id string, p UpdateParams) (*Job, error) {
	cur, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if cur.Status.Terminal() {
		if r.isIdempotentReapply(cur, p) {
			return cur, nil
		}
		return nil, &ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("job is %s and can no longer be modified", cur.Status),
		}
	}

	fields := map[string]any{}

	if p.Name != nil {
		if *p.Name == "" {
			return nil, &ValidationError{Field: "job_name", Message: "must not be empty"}
		}
		fields["job_name"] = *p.Name
	}
	if p.Priority != nil {
		if !p.Priority.Valid() {
			return nil, &ValidationError{Field: "priority", Message: fmt.Sprintf("unknown priority %q", *p.Priority)}
		}
		fields["priority"] = *p.Priority
	}
	if p.Status != nil {
		if !p.Status.Valid() {
			return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", *p.Status)}
		}
		fields["status"] = *p.Status

		now := time.Now().UTC()
		if *p.Status == StatusStarted && cur.StartedAt == nil {
			fields["started_at"] = now
		}
		if p.Status.Terminal() && cur.CompletedAt == nil {
			fields["completed_at"] = now
		}
	}
	if p.Progress != nil {
		fields["progress"] = p.Progress
	}
	if p.Result != nil {
		fields["result"] = p.Result
	}
	if p.Retries != nil {
		fields["retries"] = *p.Retries
	}
	if len(p.Metadata) > 0 {
		merged := make(map[string]any, len(cur.Metadata)+len(p.Metadata))
		for k, v := range cur.Metadata {
			merged[k] = v
		}
		for k, v := range p.Metadata {
			merged[k] = v
		}
		fields["metadata"] = merged
	}

	if len(fields) == 0 {
		return cur, nil
	}

	if err := r.repo.Update(ctx, id, fields); err != nil {
		return nil, fmt.Errorf("failed to update job %s: %w", id, err)
	}
	return r.Get(ctx, id)
}

// isIdempotentReapply reports whether p re-states the terminal outcome
// the job already carries. Poll delivery is at-least-once, so the same
// finalization may arrive more than once.
func (r *Registry) isIdempotentReapply(cur *Job, p UpdateParams) bool {
	if p.Name != nil || p.Priority != nil || p.Progress != nil || p.Retries != nil || len(p.Metadata) > 0 {
		return false
	}
	if p.Status != nil && *p.Status != cur.Status {
		return false
	}
	if p.Result != nil {
		if cur.Result == nil {
			return false
		}
		if p.Result.Success != cur.Result.Success ||
			p.Result.Error != cur.Result.Error ||
			p.Result.Message != cur.Result.Message ||
			!reflect.DeepEqual(p.Result.Data, cur.Result.Data) {
			return false
		}
	}
	return true
}

// List returns jobs matching f, newest first, plus the total match
// count independent of pagination.
func (r *Registry) List(ctx context.Context, f Filter, page, pageSize int) ([]Job, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	total, err := r.repo.Count(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	jobs, err := r.repo.Find(ctx, f, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, total, nil
}
