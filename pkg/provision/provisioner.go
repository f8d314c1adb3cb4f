package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openfroyo/fftwprov/pkg/fetch"
	"github.com/openfroyo/fftwprov/pkg/policy"
	"github.com/openfroyo/fftwprov/pkg/stores"
	"github.com/openfroyo/fftwprov/pkg/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// Fetcher opens an archive location. *fetch.Registry satisfies it.
type Fetcher interface {
	Open(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// Dependencies are the collaborators of a Provisioner. Nil fields get defaults:
// an ExecRunner, the default fetch registry, no policy gate, no ledger and no-op
// telemetry.
type Dependencies struct {
	Runner    Runner
	Fetcher   Fetcher
	Policy    *policy.Engine
	Store     stores.Store
	Telemetry *telemetry.Telemetry
}

// Provisioner ensures the library artifacts exist in an output directory.
type Provisioner struct {
	opts      Options
	runner    Runner
	fetcher   Fetcher
	policy    *policy.Engine
	ledger    *ledger
	telemetry *telemetry.Telemetry
	log       *telemetry.Logger

	// lookPath resolves librarian candidates.
	lookPath func(string) (string, error)
}

// New creates a provisioner for the given options.
func New(opts Options, deps Dependencies) *Provisioner {
	tel := deps.Telemetry
	if tel == nil {
		tel = telemetry.Noop()
	}
	log := tel.Logger.NewComponentLogger("provision")
	logger := log.Zerolog()

	runner := deps.Runner
	if runner == nil {
		runner = NewExecRunner(logger)
	}

	fetcher := deps.Fetcher
	if fetcher == nil {
		fetcher = fetch.NewDefaultRegistry(fetch.Options{})
	}

	return &Provisioner{
		opts:      opts,
		runner:    runner,
		fetcher:   fetcher,
		policy:    deps.Policy,
		ledger:    &ledger{store: deps.Store, logger: logger},
		telemetry: tel,
		log:       log,
		lookPath:  exec.LookPath,
	}
}

// Options returns the provisioner's options.
func (p *Provisioner) Options() Options {
	return p.opts
}

// Links returns the link spec for the configured platform and output directory.
func (p *Provisioner) Links() LinkSpec {
	return Links(p.opts.EffectivePlatform(), p.opts.OutDir)
}

// Emit writes the link directives for the configured platform to w.
func (p *Provisioner) Emit(w io.Writer, format Format) error {
	if err := p.Links().Emit(w, format); err != nil {
		return NewFilesystemError(StepEmit, "failed to write link directives", err)
	}
	return nil
}

// tracker carries the state of one run through its steps.
type tracker struct {
	p     *Provisioner
	runID string
}

// newTracker starts tracking a run and stores the run's logger in ctx. runID is
// empty for runs that are not recorded in the ledger.
func (p *Provisioner) newTracker(ctx context.Context, runID string) (context.Context, *tracker) {
	log := p.log.WithField("platform", string(p.opts.EffectivePlatform()))
	if runID != "" {
		log = log.WithRunID(runID)
	}
	return log.WithContext(ctx), &tracker{p: p, runID: runID}
}

// step runs fn as a named pipeline step, recording a span, metrics and a ledger row.
// fn returns a short detail for the ledger.
func (t *tracker) step(ctx context.Context, name string, fn func(ctx context.Context) (string, error)) error {
	p := t.p
	log := telemetry.FromContext(ctx).WithField("step", name)
	ctx, span := p.telemetry.Tracer.StartStepSpan(ctx, name)
	defer span.End()

	started := time.Now()
	detail, err := fn(ctx)
	duration := time.Since(started)

	status := "completed"
	if err != nil {
		status = "failed"
		log.WithError(err).Warn("Step failed")
		span.SetAttributes(telemetry.AttrErrorClass.String(string(ClassOf(err))))
		telemetry.RecordError(span, err)
		p.telemetry.Metrics.RecordError(string(ClassOf(err)), name)
	} else {
		log.WithField("detail", detail).Debug("Step completed")
		telemetry.RecordSuccess(span)
	}
	p.telemetry.Metrics.RecordStep(name, status, duration)
	p.ledger.step(ctx, t.runID, name, detail, started, err)

	return err
}

// PolicyInput returns the document the source policy is evaluated against.
func (p *Provisioner) PolicyInput() *policy.Input {
	checksum := p.opts.SourceChecksum()
	return &policy.Input{
		Platform: string(p.opts.EffectivePlatform()),
		Target:   p.opts.Target,
		Version:  p.opts.Version,
		Source:   policy.NewSourceInput(p.opts.SourceURL()),
		Checksum: policy.ChecksumInput{
			Algorithm: checksum.Algorithm,
			Present:   !checksum.IsZero(),
		},
		Strict: p.opts.Strict,
	}
}

// EvaluatePolicy evaluates the source policy without fetching anything. It returns a
// nil result when no policy engine is configured.
func (p *Provisioner) EvaluatePolicy(ctx context.Context) (*policy.Result, error) {
	if p.policy == nil {
		return nil, nil
	}
	result, err := p.policy.Evaluate(ctx, p.PolicyInput())
	if err != nil {
		return nil, newError(ErrorClassPolicy, StepPolicy, "source policy evaluation failed", err)
	}
	return result, nil
}

// gate evaluates the source policy for the configured platform. Blocking violations
// fail with a policy error; the rest are logged.
func (p *Provisioner) gate(ctx context.Context, t *tracker) error {
	if p.policy == nil {
		return nil
	}

	return t.step(ctx, StepPolicy, func(ctx context.Context) (string, error) {
		result, err := p.EvaluatePolicy(ctx)
		if err != nil {
			return "", err
		}

		log := telemetry.FromContext(ctx)
		for _, v := range result.Violations {
			vlog := log.WithField("policy", v.Policy).WithField("severity", string(v.Severity))
			switch {
			case v.Severity.Blocking():
				vlog.Error(v.Message)
			case v.Severity == policy.SeverityWarning:
				vlog.Warn(v.Message)
			default:
				vlog.Info(v.Message)
			}
		}

		if blocking := result.Blocking(); len(blocking) > 0 {
			msgs := make([]string, len(blocking))
			for i, v := range blocking {
				msgs[i] = v.Policy + ": " + v.Message
			}
			return "", newError(ErrorClassPolicy, StepPolicy,
				fmt.Sprintf("source rejected: %s", strings.Join(msgs, "; ")), nil).
				WithDetail("violations", blocking)
		}

		return fmt.Sprintf("%d policies, %d violations", len(result.EvaluatedPolicies), len(result.Violations)), nil
	})
}

// download reads the whole archive at rawURL into memory.
func (p *Provisioner) download(ctx context.Context, rawURL string) ([]byte, error) {
	shown := redactURL(rawURL)

	rc, err := p.fetcher.Open(ctx, rawURL)
	if err != nil {
		e := NewNetworkError(StepFetch, fmt.Sprintf("failed to download %s", shown), err).
			WithDetail("url", shown)
		var statusErr *fetch.StatusError
		if errors.As(err, &statusErr) {
			e.WithDetail("status_code", statusErr.StatusCode)
		}
		return nil, e
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, NewNetworkError(StepFetch, fmt.Sprintf("failed to read %s", shown), err)
	}

	p.telemetry.Metrics.RecordDownload(schemeOf(rawURL), len(data))
	telemetry.FromContext(ctx).WithField("url", shown).WithField("bytes", len(data)).Info("Archive downloaded")

	return data, nil
}

// verify checks data against a configured checksum.
func (p *Provisioner) verify(checksum Checksum, data []byte) error {
	if err := checksum.Verify(data); err != nil {
		if IsIntegrity(err) {
			p.telemetry.Metrics.RecordChecksumFailure(checksum.Algorithm)
		}
		return err
	}
	return nil
}

// Ensure provisions the artifacts for the configured platform. Exactly one of the
// Unix or Windows paths runs.
func (p *Provisioner) Ensure(ctx context.Context) (*Result, error) {
	if err := p.opts.Validate(); err != nil {
		return nil, err
	}

	platform := p.opts.EffectivePlatform()
	runID := uuid.New().String()
	start := time.Now()

	ctx, span := p.telemetry.Tracer.StartRunSpan(ctx, runID, string(platform), p.opts.Target)
	defer span.End()

	ctx, t := p.newTracker(ctx, runID)
	log := telemetry.FromContext(ctx)
	log.WithField("out_dir", p.opts.OutDir).Info("Provisioning started")

	p.telemetry.Metrics.RecordRunStarted(string(platform))
	p.ledger.begin(ctx, &stores.Run{
		ID:        runID,
		OutDir:    p.opts.OutDir,
		Platform:  string(platform),
		Target:    p.opts.Target,
		Version:   p.opts.Version,
		SourceURL: redactURL(p.opts.SourceURL()),
		Status:    stores.RunStatusRunning,
		StartedAt: start,
	})

	var outcome Outcome
	var err error
	switch platform {
	case PlatformWindows:
		outcome, err = p.ensureWindows(ctx, t)
	default:
		outcome, err = p.ensureUnix(ctx, t)
	}

	duration := time.Since(start)
	if err != nil {
		p.finishFailed(ctx, span, runID, platform, duration, err)
		log.WithError(err).WithField("step", StepOf(err)).Error("Provisioning failed")
		return nil, err
	}

	artifacts := Artifacts(platform, p.opts.OutDir)
	if outcome == OutcomeProvisioned {
		p.ledger.artifacts(ctx, runID, artifacts)
	}

	status := stores.RunStatusProvisioned
	if outcome == OutcomePresent {
		status = stores.RunStatusPresent
	}
	p.ledger.finish(ctx, runID, status, nil)
	p.telemetry.Metrics.RecordRunCompleted(string(platform), string(status), duration)
	span.SetAttributes(telemetry.AttrOutcome.String(string(outcome)))
	telemetry.RecordSuccess(span)

	log.WithField("outcome", string(outcome)).
		Infof("Provisioning finished in %s", duration.Round(time.Millisecond))

	return &Result{
		RunID:     runID,
		Platform:  platform,
		Outcome:   outcome,
		Artifacts: artifacts,
		Duration:  duration,
	}, nil
}

func (p *Provisioner) finishFailed(ctx context.Context, span trace.Span, runID string, platform Platform, duration time.Duration, err error) {
	p.ledger.finish(ctx, runID, stores.RunStatusFailed, err)
	p.telemetry.Metrics.RecordRunCompleted(string(platform), string(stores.RunStatusFailed), duration)
	span.SetAttributes(telemetry.AttrErrorClass.String(string(ClassOf(err))))
	telemetry.RecordError(span, err)
}

// VerifyReport describes a fetched archive and its digest.
type VerifyReport struct {
	URL       string `json:"url"`
	Bytes     int    `json:"bytes"`
	Algorithm string `json:"algorithm"`
	Digest    string `json:"digest"`

	// Verified is false when no checksum is configured; Digest is then the SHA-256
	// of the archive.
	Verified bool `json:"verified"`
}

// Verify fetches the configured archive and checks its digest without writing,
// extracting or building anything.
func (p *Provisioner) Verify(ctx context.Context) (*VerifyReport, error) {
	if err := p.opts.Validate(); err != nil {
		return nil, err
	}

	ctx, t := p.newTracker(ctx, "")
	if err := p.gate(ctx, t); err != nil {
		return nil, err
	}

	rawURL := p.opts.SourceURL()
	var data []byte
	err := t.step(ctx, StepFetch, func(ctx context.Context) (string, error) {
		var err error
		data, err = p.download(ctx, rawURL)
		return "", err
	})
	if err != nil {
		return nil, err
	}

	report := &VerifyReport{URL: redactURL(rawURL), Bytes: len(data)}
	checksum := p.opts.SourceChecksum()
	if checksum.IsZero() {
		report.Algorithm = AlgorithmSHA256
		report.Digest = SHA256Hex(data)
		telemetry.FromContext(ctx).WithField("url", report.URL).Warn("No checksum configured; reporting sha256 only")
		return report, nil
	}

	err = t.step(ctx, StepVerify, func(ctx context.Context) (string, error) {
		return checksum.String(), p.verify(checksum, data)
	})
	if err != nil {
		return nil, err
	}

	report.Algorithm = checksum.Algorithm
	report.Digest = checksum.Hex
	report.Verified = true
	return report, nil
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return fetch.Redact(u)
}

func schemeOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}
