package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mediaflow/src/infrastructure/job"
	"mediaflow/src/log"
)

// DefaultInitialPollDelay is how long after dispatch the first poll
// attempt runs.
const DefaultInitialPollDelay = 5 * time.Second

// DispatchResult carries either the inline artifact of a synchronous
// provider or the id of the job tracking an asynchronous one.
type DispatchResult struct {
	Artifact *Artifact
	JobID    string
}

// Dispatcher validates generation requests, resolves a provider by
// model identifier and runs the sync or async path. On the async path
// it creates a tracking job and schedules the first poll attempt; the
// caller polls the job registry for completion.
type Dispatcher struct {
	providers    map[string]Provider
	registry     *job.Registry
	scheduler    job.Scheduler
	initialDelay time.Duration
}

func NewDispatcher(providers map[string]Provider, registry *job.Registry, scheduler job.Scheduler, initialDelay time.Duration) *Dispatcher {
	if initialDelay <= 0 {
		initialDelay = DefaultInitialPollDelay
	}
	return &Dispatcher{
		providers:    providers,
		registry:     registry,
		scheduler:    scheduler,
		initialDelay: initialDelay,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*DispatchResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, &job.ValidationError{Field: "prompt", Message: "must not be empty"}
	}

	provider, ok := d.providers[req.Model]
	if !ok {
		return nil, &UnsupportedModelError{Model: req.Model}
	}

	start, err := provider.Start(ctx, req)
	if err != nil {
		return nil, &ProviderError{Op: "start", Err: err}
	}

	if start.Inline != nil {
		return &DispatchResult{Artifact: start.Inline}, nil
	}

	jobID, err := d.registry.Create(ctx, job.CreateParams{
		Type:       jobType(req.Kind),
		Name:       jobName(req),
		Priority:   job.PriorityNormal,
		EntityID:   req.EntityID,
		EntityType: req.EntityType,
		Metadata: map[string]any{
			"prompt":       req.Prompt,
			"model":        req.Model,
			"operation_id": start.OperationID,
		},
	})
	if err != nil {
		return nil, err
	}

	err = d.scheduler.SchedulePoll(ctx, job.PollMessage{
		JobID:       jobID,
		Model:       req.Model,
		OperationID: start.OperationID,
	}, d.initialDelay)
	if err != nil {
		// The operation is running at the provider but nothing will
		// ever poll it; fail the job so it does not stay pending.
		status := job.StatusFailure
		if _, uerr := d.registry.Update(ctx, jobID, job.UpdateParams{
			Status: &status,
			Result: &job.Result{Success: false, Error: fmt.Sprintf("failed to schedule poll: %v", err)},
		}); uerr != nil {
			log.Error(uerr, "Failed to mark unschedulable job as failed", "job_id", jobID)
		}
		return nil, fmt.Errorf("failed to schedule poll for job %s: %w", jobID, err)
	}

	return &DispatchResult{JobID: jobID}, nil
}

func jobType(k Kind) job.Type {
	if k == KindImage {
		return job.TypeImageProcessing
	}
	return job.TypeVideoGeneration
}

// jobName derives a human-readable label from the request. Not unique.
func jobName(req Request) string {
	prompt := strings.TrimSpace(req.Prompt)
	// Truncate by runes so a multi-byte prompt is never cut mid-character.
	if runes := []rune(prompt); len(runes) > 40 {
		prompt = string(runes[:40])
	}
	return fmt.Sprintf("%s: %s", req.Model, prompt)
}
