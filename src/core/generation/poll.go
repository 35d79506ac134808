package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"mediaflow/src/infrastructure/job"
	"mediaflow/src/log"
)

const (
	// DefaultPollInterval is the fixed delay between poll attempts.
	DefaultPollInterval = 8 * time.Second
	// DefaultMaxPollAttempts caps the total number of attempts for one
	// job, bounding wall-clock wait for operations that never finish.
	DefaultMaxPollAttempts = 90

	attemptsMetadataKey = "poll_attempts"
)

// ObjectStore persists finished artifacts.
type ObjectStore interface {
	Upload(ctx context.Context, data []byte, path, contentType string) (string, error)
}

// PollWorker executes single poll attempts delivered through the work
// queue. Each attempt re-reads the job and exits silently when it is
// already terminal, so duplicate delivery is harmless.
type PollWorker struct {
	providers   map[string]Provider
	registry    *job.Registry
	store       ObjectStore
	scheduler   job.Scheduler
	interval    time.Duration
	maxAttempts int
}

func NewPollWorker(providers map[string]Provider, registry *job.Registry, store ObjectStore, scheduler job.Scheduler, interval time.Duration, maxAttempts int) *PollWorker {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxPollAttempts
	}
	return &PollWorker{
		providers:   providers,
		registry:    registry,
		store:       store,
		scheduler:   scheduler,
		interval:    interval,
		maxAttempts: maxAttempts,
	}
}

// HandleMessage is the queue handler for one poll attempt. It never
// returns an error: a polling failure is recorded on the job, not
// requeued, so a poisoned message cannot wedge the queue.
func (w *PollWorker) HandleMessage(msg *message.Message) error {
	var pm job.PollMessage
	if err := json.Unmarshal(msg.Payload, &pm); err != nil {
		log.Error(err, "Dropping malformed poll message", "message_uuid", msg.UUID)
		return nil
	}

	if err := w.Poll(msg.Context(), pm); err != nil {
		log.Error(err, "Poll attempt failed", "job_id", pm.JobID)
	}
	return nil
}

// Poll runs one poll attempt for the job referenced by pm.
func (w *PollWorker) Poll(ctx context.Context, pm job.PollMessage) error {
	j, err := w.registry.Get(ctx, pm.JobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			log.Info("Poll message references unknown job, dropping", "job_id", pm.JobID)
			return nil
		}
		// The record store is unavailable; try again later without
		// touching retry bookkeeping we cannot read.
		return w.scheduler.SchedulePoll(ctx, pm, w.interval)
	}

	if j.Status.Terminal() {
		return nil
	}

	attempts := metadataInt(j.Metadata, attemptsMetadataKey)
	if attempts >= w.maxAttempts || (j.ExpiresAt != nil && time.Now().After(*j.ExpiresAt)) {
		return w.expire(ctx, j, attempts)
	}

	provider, ok := w.providers[pm.Model]
	if !ok {
		return w.fail(ctx, j, fmt.Sprintf("no provider for model %q", pm.Model))
	}

	res, err := provider.Check(ctx, pm.OperationID)
	if err != nil {
		return w.retry(ctx, j, pm, err)
	}

	switch {
	case res.Failure != "":
		return w.fail(ctx, j, res.Failure)
	case res.Artifact != nil:
		return w.finalize(ctx, j, pm, res.Artifact)
	default:
		return w.reschedule(ctx, j, pm, res.Message, attempts)
	}
}

// reschedule records progress and queues the next attempt.
func (w *PollWorker) reschedule(ctx context.Context, j *job.Job, pm job.PollMessage, note string, attempts int) error {
	status := job.StatusProgress
	if j.Status == job.StatusPending {
		status = job.StatusStarted
	}

	params := job.UpdateParams{
		Status:   &status,
		Metadata: map[string]any{attemptsMetadataKey: attempts + 1},
	}
	if note != "" {
		params.Progress = &job.Progress{Message: note}
	}
	if _, err := w.registry.Update(ctx, j.ID, params); err != nil {
		return err
	}

	return w.scheduler.SchedulePoll(ctx, pm, w.interval)
}

// retry handles an unexpected polling error: bounded re-scheduling,
// then terminal failure once the budget is spent.
func (w *PollWorker) retry(ctx context.Context, j *job.Job, pm job.PollMessage, cause error) error {
	retries := j.Retries + 1

	if retries > j.MaxRetries {
		status := job.StatusFailure
		_, err := w.registry.Update(ctx, j.ID, job.UpdateParams{
			Status:  &status,
			Retries: &retries,
			Result: &job.Result{
				Success: false,
				Error:   fmt.Sprintf("polling failed after %d retries: %v", j.MaxRetries, cause),
			},
		})
		return err
	}

	status := job.StatusRetry
	if _, err := w.registry.Update(ctx, j.ID, job.UpdateParams{
		Status:  &status,
		Retries: &retries,
	}); err != nil {
		return err
	}

	delay := w.interval
	if j.RetryDelay > 0 {
		delay = time.Duration(j.RetryDelay) * time.Second
	}
	log.Info("Poll attempt hit transient error, retrying",
		"job_id", j.ID, "retries", retries, "delay", delay.String(), "cause", cause.Error())
	return w.scheduler.SchedulePoll(ctx, pm, delay)
}

func (w *PollWorker) fail(ctx context.Context, j *job.Job, cause string) error {
	status := job.StatusFailure
	_, err := w.registry.Update(ctx, j.ID, job.UpdateParams{
		Status: &status,
		Result: &job.Result{Success: false, Error: cause},
	})
	return err
}

func (w *PollWorker) expire(ctx context.Context, j *job.Job, attempts int) error {
	status := job.StatusExpired
	_, err := w.registry.Update(ctx, j.ID, job.UpdateParams{
		Status: &status,
		Result: &job.Result{
			Success: false,
			Error:   fmt.Sprintf("operation did not finish within %d poll attempts", attempts),
		},
	})
	return err
}

// finalize stores the artifact and marks the job done.
func (w *PollWorker) finalize(ctx context.Context, j *job.Job, pm job.PollMessage, artifact *Artifact) error {
	path := artifactPath(j, artifact.MIME)
	publicURL, err := w.store.Upload(ctx, artifact.Data, path, artifact.MIME)
	if err != nil {
		// Storing the result is part of the attempt; treat a failed
		// upload like any other transient poll error.
		return w.retry(ctx, j, pm, err)
	}

	status := job.StatusSuccess
	_, err = w.registry.Update(ctx, j.ID, job.UpdateParams{
		Status: &status,
		Result: &job.Result{
			Success: true,
			Data: map[string]any{
				"storage_path": path,
				"public_url":   publicURL,
				"mime_type":    artifact.MIME,
			},
		},
	})
	if err != nil {
		return err
	}

	log.Info("Job finished", "job_id", j.ID, "storage_path", path)
	return nil
}

func artifactPath(j *job.Job, mime string) string {
	prefix := "videos"
	if j.Type == job.TypeImageProcessing {
		prefix = "images"
	}
	return fmt.Sprintf("%s/%s/%s%s", prefix, j.ID, uuid.NewString(), extension(mime))
}

func extension(mime string) string {
	switch mime {
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	default:
		return ".bin"
	}
}

func metadataInt(metadata map[string]any, key string) int {
	switch v := metadata[key].(type) {
	case int:
		return v
	case float64: // JSON round-trip turns numbers into float64
		return int(v)
	}
	return 0
}
