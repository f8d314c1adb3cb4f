package stores

import (
	"context"
	"time"
)

// RunStatus represents the status of a provisioning run
type RunStatus string

const (
	RunStatusRunning     RunStatus = "running"
	RunStatusProvisioned RunStatus = "provisioned"
	RunStatusPresent     RunStatus = "present"
	RunStatusFailed      RunStatus = "failed"
)

// StepStatus represents the outcome of a pipeline step
type StepStatus string

const (
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// Run represents one provisioning run
type Run struct {
	ID          string     `json:"id"`
	OutDir      string     `json:"out_dir"`
	Platform    string     `json:"platform"`
	Target      string     `json:"target"`
	Version     string     `json:"version"`
	SourceURL   string     `json:"source_url"`
	Status      RunStatus  `json:"status"`
	Error       *string    `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Step represents one executed pipeline step of a run
type Step struct {
	ID          int64      `json:"id"`
	RunID       string     `json:"run_id"`
	Name        string     `json:"name"`
	Status      StepStatus `json:"status"`
	Detail      string     `json:"detail,omitempty"`
	Error       *string    `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt time.Time  `json:"completed_at"`
}

// Artifact represents a file produced or verified by a run
type Artifact struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	SHA256    string    `json:"sha256"`
	CreatedAt time.Time `json:"created_at"`
}

// Store defines the interface for the run ledger
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, id string, status RunStatus, errMsg *string) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)

	// Step operations
	AppendStep(ctx context.Context, step *Step) error
	ListSteps(ctx context.Context, runID string) ([]*Step, error)

	// Artifact operations
	AddArtifact(ctx context.Context, artifact *Artifact) error
	ListArtifacts(ctx context.Context, runID string) ([]*Artifact, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
