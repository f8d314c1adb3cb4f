package provision

import (
	"context"
	"os"
	"time"

	"github.com/openfroyo/fftwprov/pkg/stores"
	"github.com/rs/zerolog"
)

// ledger writes run history. Write failures are logged and never fail a run.
type ledger struct {
	store  stores.Store
	logger zerolog.Logger
}

func (l *ledger) enabled(runID string) bool {
	return l != nil && l.store != nil && runID != ""
}

func (l *ledger) begin(ctx context.Context, run *stores.Run) {
	if !l.enabled(run.ID) {
		return
	}
	if err := l.store.CreateRun(context.WithoutCancel(ctx), run); err != nil {
		l.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to record run")
	}
}

func (l *ledger) step(ctx context.Context, runID, name, detail string, started time.Time, stepErr error) {
	if !l.enabled(runID) {
		return
	}

	step := &stores.Step{
		RunID:       runID,
		Name:        name,
		Status:      stores.StepStatusCompleted,
		Detail:      detail,
		StartedAt:   started,
		CompletedAt: time.Now(),
	}
	if stepErr != nil {
		msg := stepErr.Error()
		step.Status = stores.StepStatusFailed
		step.Error = &msg
	}

	if err := l.store.AppendStep(context.WithoutCancel(ctx), step); err != nil {
		l.logger.Warn().Err(err).Str("run_id", runID).Str("step", name).Msg("Failed to record step")
	}
}

func (l *ledger) artifacts(ctx context.Context, runID string, paths []string) {
	if !l.enabled(runID) {
		return
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Failed to read artifact")
			continue
		}
		artifact := &stores.Artifact{
			RunID:  runID,
			Path:   path,
			Size:   int64(len(data)),
			SHA256: SHA256Hex(data),
		}
		if err := l.store.AddArtifact(context.WithoutCancel(ctx), artifact); err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Failed to record artifact")
		}
	}
}

func (l *ledger) finish(ctx context.Context, runID string, status stores.RunStatus, runErr error) {
	if !l.enabled(runID) {
		return
	}

	var msg *string
	if runErr != nil {
		s := runErr.Error()
		msg = &s
	}
	if err := l.store.FinishRun(context.WithoutCancel(ctx), runID, status, msg); err != nil {
		l.logger.Warn().Err(err).Str("run_id", runID).Msg("Failed to finish run")
	}
}
