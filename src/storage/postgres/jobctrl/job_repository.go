package jobctrl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"mediaflow/src/infrastructure/job"
)

// jobRecord is the persisted shape of a job. The open-ended fields
// (metadata, progress, result) are stored as JSON documents.
type jobRecord struct {
	ID          int64           `gorm:"primaryKey"`
	JobType     string          `gorm:"not null;index"`
	JobName     string          `gorm:"not null"`
	Status      string          `gorm:"not null;index"`
	Priority    string          `gorm:"not null"`
	Metadata    json.RawMessage `gorm:"type:jsonb"`
	EntityID    string          `gorm:"index;column:entity_id"`
	EntityType  string          `gorm:"column:entity_type"`
	Progress    json.RawMessage `gorm:"type:jsonb"`
	Result      json.RawMessage `gorm:"type:jsonb"`
	CreatedAt   time.Time       `gorm:"not null;index"`
	StartedAt   *time.Time
	CompletedAt *time.Time
	ExpiresAt   *time.Time
	Retries     int `gorm:"not null;default:0"`
	MaxRetries  int `gorm:"not null;default:3"`
	RetryDelay  int
}

func (jobRecord) TableName() string {
	return "jobs"
}

// JobRepository persists jobs in PostgreSQL and implements
// job.Repository.
type JobRepository struct {
	db        *gorm.DB
	snowflake *snowflake.Node
}

func NewJobRepository(db *gorm.DB) (*JobRepository, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %v", err)
	}

	if err := db.AutoMigrate(&jobRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate jobs table: %v", err)
	}

	return &JobRepository{
		db:        db,
		snowflake: node,
	}, nil
}

func (r *JobRepository) Insert(ctx context.Context, j *job.Job) (string, error) {
	rec, err := toRecord(j)
	if err != nil {
		return "", err
	}
	rec.ID = r.snowflake.Generate().Int64()

	if result := r.db.WithContext(ctx).Create(rec); result.Error != nil {
		return "", fmt.Errorf("%w: %v", job.ErrStore, result.Error)
	}
	return strconv.FormatInt(rec.ID, 10), nil
}

func (r *JobRepository) Get(ctx context.Context, id string) (*job.Job, error) {
	numID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, nil
	}

	var rec jobRecord
	result := r.db.WithContext(ctx).First(&rec, numID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", job.ErrStore, result.Error)
	}
	return toDomain(&rec)
}

func (r *JobRepository) Update(ctx context.Context, id string, fields map[string]any) error {
	numID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return job.ErrJobNotFound
	}

	cols, err := toColumns(fields)
	if err != nil {
		return err
	}

	result := r.db.WithContext(ctx).Model(&jobRecord{}).Where("id = ?", numID).Updates(cols)
	if result.Error != nil {
		return fmt.Errorf("%w: %v", job.ErrStore, result.Error)
	}
	if result.RowsAffected == 0 {
		return job.ErrJobNotFound
	}
	return nil
}

func (r *JobRepository) Find(ctx context.Context, f job.Filter, offset, limit int) ([]job.Job, error) {
	var recs []jobRecord
	result := applyFilter(r.db.WithContext(ctx).Model(&jobRecord{}), f).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&recs)
	if result.Error != nil {
		return nil, fmt.Errorf("%w: %v", job.ErrStore, result.Error)
	}

	jobs := make([]job.Job, 0, len(recs))
	for i := range recs {
		j, err := toDomain(&recs[i])
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, nil
}

func (r *JobRepository) Count(ctx context.Context, f job.Filter) (int64, error) {
	var total int64
	result := applyFilter(r.db.WithContext(ctx).Model(&jobRecord{}), f).Count(&total)
	if result.Error != nil {
		return 0, fmt.Errorf("%w: %v", job.ErrStore, result.Error)
	}
	return total, nil
}

func applyFilter(q *gorm.DB, f job.Filter) *gorm.DB {
	if f.EntityID != "" {
		q = q.Where("entity_id = ?", f.EntityID)
	}
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
	}
	if f.Type != "" {
		q = q.Where("job_type = ?", string(f.Type))
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	return q
}

// toColumns translates the registry's field map into table columns,
// marshalling document-valued fields.
func toColumns(fields map[string]any) (map[string]any, error) {
	cols := make(map[string]any, len(fields))
	for k, v := range fields {
		switch k {
		case "metadata", "progress", "result":
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal %s: %v", k, err)
			}
			cols[k] = json.RawMessage(raw)
		case "status":
			cols["status"] = string(v.(job.Status))
		case "priority":
			cols["priority"] = string(v.(job.Priority))
		default:
			cols[k] = v
		}
	}
	return cols, nil
}

func toRecord(j *job.Job) (*jobRecord, error) {
	rec := &jobRecord{
		JobType:     string(j.Type),
		JobName:     j.Name,
		Status:      string(j.Status),
		Priority:    string(j.Priority),
		EntityID:    j.EntityID,
		EntityType:  j.EntityType,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		ExpiresAt:   j.ExpiresAt,
		Retries:     j.Retries,
		MaxRetries:  j.MaxRetries,
		RetryDelay:  j.RetryDelay,
	}

	var err error
	if rec.Metadata, err = marshalOpt(j.Metadata); err != nil {
		return nil, err
	}
	if rec.Progress, err = marshalOpt(j.Progress); err != nil {
		return nil, err
	}
	if rec.Result, err = marshalOpt(j.Result); err != nil {
		return nil, err
	}
	return rec, nil
}

func toDomain(rec *jobRecord) (*job.Job, error) {
	j := &job.Job{
		ID:          strconv.FormatInt(rec.ID, 10),
		Type:        job.Type(rec.JobType),
		Name:        rec.JobName,
		Status:      job.Status(rec.Status),
		Priority:    job.Priority(rec.Priority),
		EntityID:    rec.EntityID,
		EntityType:  rec.EntityType,
		CreatedAt:   rec.CreatedAt,
		StartedAt:   rec.StartedAt,
		CompletedAt: rec.CompletedAt,
		ExpiresAt:   rec.ExpiresAt,
		Retries:     rec.Retries,
		MaxRetries:  rec.MaxRetries,
		RetryDelay:  rec.RetryDelay,
	}

	if len(rec.Metadata) > 0 {
		if err := json.Unmarshal(rec.Metadata, &j.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %v", err)
		}
	}
	if len(rec.Progress) > 0 {
		j.Progress = &job.Progress{}
		if err := json.Unmarshal(rec.Progress, j.Progress); err != nil {
			return nil, fmt.Errorf("failed to unmarshal progress: %v", err)
		}
	}
	if len(rec.Result) > 0 {
		j.Result = &job.Result{}
		if err := json.Unmarshal(rec.Result, j.Result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %v", err)
		}
	}
	return j, nil
}

func marshalOpt(v any) (json.RawMessage, error) {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return nil, nil
		}
	case *job.Progress:
		if t == nil {
			return nil, nil
		}
	case *job.Result:
		if t == nil {
			return nil, nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job field: %v", err)
	}
	return raw, nil
}
