package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newRun(id string, started time.Time) *Run {
	return &Run{
		ID:        id,
		OutDir:    "/tmp/out",
		Platform:  "unix",
		Target:    "x86_64-unknown-linux-gnu",
		Version:   "fftw-3.3.6-pl1",
		SourceURL: "http://www.fftw.org/fftw-3.3.6-pl1.tar.gz",
		Status:    RunStatusRunning,
		StartedAt: started,
	}
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Error("health check should fail before Init")
	}

	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("expected error for empty path")
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, table := range []string{"runs", "steps", "artifacts"} {
		var count int
		if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	// Running migrations again is a no-op.
	if err := store.Migrate(ctx); err != nil {
		t.Errorf("second Migrate() error = %v", err)
	}
}

func TestOpenFileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fftwprov.db")
	ctx := context.Background()

	store, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := store.CreateRun(ctx, newRun("run-file", time.Now())); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}
	store.Close()

	reopened, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	if _, err := reopened.GetRun(ctx, "run-file"); err != nil {
		t.Errorf("run not persisted: %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	started := time.Now().Add(-time.Minute).Truncate(time.Second)

	run := newRun("run-001", started)
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	got, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.Status != RunStatusRunning {
		t.Errorf("expected status %s, got %s", RunStatusRunning, got.Status)
	}
	if got.CompletedAt != nil {
		t.Errorf("expected nil CompletedAt, got %v", got.CompletedAt)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("expected StartedAt %v, got %v", started, got.StartedAt)
	}
	if got.SourceURL != run.SourceURL || got.Version != run.Version {
		t.Errorf("unexpected run fields: %+v", got)
	}

	msg := "[integrity] verify: mismatch"
	if err := store.FinishRun(ctx, run.ID, RunStatusFailed, &msg); err != nil {
		t.Fatalf("failed to finish run: %v", err)
	}

	got, err = store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.Status != RunStatusFailed {
		t.Errorf("expected status %s, got %s", RunStatusFailed, got.Status)
	}
	if got.Error == nil || *got.Error != msg {
		t.Errorf("expected error %q, got %v", msg, got.Error)
	}
	if got.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}
}

func TestRunNotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.GetRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun() error = %v, want ErrNotFound", err)
	}
	if err := store.FinishRun(ctx, "missing", RunStatusPresent, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("FinishRun() error = %v, want ErrNotFound", err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i, id := range []string{"run-a", "run-b", "run-c"} {
		if err := store.CreateRun(ctx, newRun(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("CreateRun(%s) error = %v", id, err)
		}
	}

	tests := []struct {
		name   string
		limit  int
		offset int
		want   []string
	}{
		{name: "all", limit: 10, offset: 0, want: []string{"run-c", "run-b", "run-a"}},
		{name: "first page", limit: 2, offset: 0, want: []string{"run-c", "run-b"}},
		{name: "second page", limit: 2, offset: 2, want: []string{"run-a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := store.ListRuns(ctx, tt.limit, tt.offset)
			if err != nil {
				t.Fatalf("ListRuns() error = %v", err)
			}
			if len(runs) != len(tt.want) {
				t.Fatalf("expected %d runs, got %d", len(tt.want), len(runs))
			}
			for i, id := range tt.want {
				if runs[i].ID != id {
					t.Errorf("runs[%d] = %s, want %s", i, runs[i].ID, id)
				}
			}
		})
	}
}

func TestStepsAndArtifacts(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := store.CreateRun(ctx, newRun("run-steps", now)); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	errMsg := "exit status 2"
	steps := []*Step{
		{RunID: "run-steps", Name: "fetch", Status: StepStatusCompleted, Detail: "1024 bytes", StartedAt: now, CompletedAt: now},
		{RunID: "run-steps", Name: "verify", Status: StepStatusCompleted, StartedAt: now, CompletedAt: now},
		{RunID: "run-steps", Name: "build", Status: StepStatusFailed, Error: &errMsg, StartedAt: now, CompletedAt: now},
	}
	for _, s := range steps {
		if err := store.AppendStep(ctx, s); err != nil {
			t.Fatalf("AppendStep() error = %v", err)
		}
		if s.ID == 0 {
			t.Error("expected step ID to be assigned")
		}
	}

	gotSteps, err := store.ListSteps(ctx, "run-steps")
	if err != nil {
		t.Fatalf("ListSteps() error = %v", err)
	}
	if len(gotSteps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(gotSteps))
	}
	for i, name := range []string{"fetch", "verify", "build"} {
		if gotSteps[i].Name != name {
			t.Errorf("steps[%d] = %s, want %s", i, gotSteps[i].Name, name)
		}
	}
	if gotSteps[2].Error == nil || *gotSteps[2].Error != errMsg {
		t.Errorf("expected step error %q, got %v", errMsg, gotSteps[2].Error)
	}

	artifact := &Artifact{RunID: "run-steps", Path: "/tmp/out/lib/libfftw3.a", Size: 42, SHA256: "abc"}
	if err := store.AddArtifact(ctx, artifact); err != nil {
		t.Fatalf("AddArtifact() error = %v", err)
	}

	artifacts, err := store.ListArtifacts(ctx, "run-steps")
	if err != nil {
		t.Fatalf("ListArtifacts() error = %v", err)
	}
	if len(artifacts) != 1 || artifacts[0].Path != artifact.Path || artifacts[0].Size != 42 {
		t.Errorf("unexpected artifacts: %+v", artifacts)
	}
}

func TestStepRequiresRun(t *testing.T) {
	store := setupTestStore(t)
	now := time.Now()

	err := store.AppendStep(context.Background(), &Step{
		RunID: "ghost", Name: "fetch", Status: StepStatusCompleted, StartedAt: now, CompletedAt: now,
	})
	if err == nil {
		t.Error("expected foreign key violation for unknown run")
	}
}
