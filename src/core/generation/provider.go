package generation

import (
	"context"
	"fmt"
)

// Kind selects the kind of artifact a request produces
type Kind string

const (
	KindVideo Kind = "video"
	KindImage Kind = "image"
)

// Request describes one generation request
type Request struct {
	Kind       Kind
	Model      string
	Prompt     string
	Params     map[string]any
	EntityID   string
	EntityType string
}

// Artifact is a generated binary result
type Artifact struct {
	Data []byte
	MIME string
}

// StartResult is either an inline artifact (synchronous provider) or
// an operation handle to poll (asynchronous provider). Exactly one of
// the two fields is set.
type StartResult struct {
	Inline      *Artifact
	OperationID string
}

// CheckResult reports the state of an in-flight operation. Pending,
// Failure and Artifact are mutually exclusive: Pending while the
// provider is still working, Failure when it reported an error,
// Artifact when it finished.
type CheckResult struct {
	Pending  bool
	Message  string // optional provider progress note while pending
	Failure  string
	Artifact *Artifact
}

// Provider is an external generation capability. Start may block on
// network I/O; Check performs a single status call for the handle
// returned by Start.
type Provider interface {
	Start(ctx context.Context, req Request) (*StartResult, error)
	Check(ctx context.Context, operationID string) (*CheckResult, error)
}

// UnsupportedModelError is returned when no provider maps to the
// requested model identifier.
type UnsupportedModelError struct {
	Model string
}

func (e *UnsupportedModelError) Error() string {
	return fmt.Sprintf("no provider for model %q", e.Model)
}

// ProviderError wraps an external API failure
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
