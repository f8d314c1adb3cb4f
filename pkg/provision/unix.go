package provision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/openfroyo/fftwprov/pkg/telemetry"
)

// EnsureUnix builds the static libraries from source unless lib/libfftw3.a and
// lib/libfftw3f.a already exist in the output directory.
func (p *Provisioner) EnsureUnix(ctx context.Context) (Outcome, error) {
	if err := p.opts.Validate(); err != nil {
		return "", err
	}
	ctx, t := p.newTracker(ctx, "")
	return p.ensureUnix(ctx, t)
}

func (p *Provisioner) ensureUnix(ctx context.Context, t *tracker) (Outcome, error) {
	outDir := p.opts.OutDir
	artifacts := Artifacts(PlatformUnix, outDir)

	present := false
	_ = t.step(ctx, StepProbe, func(context.Context) (string, error) {
		present = exists(artifacts...)
		if present {
			return "present", nil
		}
		return "absent", nil
	})
	if present {
		telemetry.FromContext(ctx).WithField("out_dir", outDir).Info("Static libraries already built")
		return OutcomePresent, nil
	}

	if err := p.gate(ctx, t); err != nil {
		return "", err
	}

	var payload []byte
	err := t.step(ctx, StepFetch, func(ctx context.Context) (string, error) {
		var err error
		payload, err = p.download(ctx, p.opts.Unix.URL)
		return redactURL(p.opts.Unix.URL), err
	})
	if err != nil {
		return "", err
	}

	// Nothing touches the disk until the payload is verified.
	err = t.step(ctx, StepVerify, func(context.Context) (string, error) {
		return p.opts.Unix.Checksum.String(), p.verify(p.opts.Unix.Checksum, payload)
	})
	if err != nil {
		return "", err
	}

	archive := filepath.Join(outDir, p.opts.Version+".tar.gz")
	err = t.step(ctx, StepPersist, func(context.Context) (string, error) {
		if err := os.MkdirAll(outDir, 0755); err != nil {
			return "", NewFilesystemError(StepPersist, fmt.Sprintf("failed to create %s", outDir), err)
		}
		if err := os.WriteFile(archive, payload, 0644); err != nil {
			return "", NewFilesystemError(StepPersist, fmt.Sprintf("failed to write %s", archive), err)
		}
		return archive, nil
	})
	if err != nil {
		return "", err
	}

	err = t.step(ctx, StepExtract, func(ctx context.Context) (string, error) {
		return archive, extractTar(ctx, p.runner, archive, outDir)
	})
	if err != nil {
		return "", err
	}

	srcDir := filepath.Join(outDir, p.opts.Version)
	for _, v := range Variants {
		if err := p.buildVariant(ctx, t, v, srcDir); err != nil {
			return "", err
		}
	}

	if absent := missing(artifacts); len(absent) > 0 {
		return "", NewFilesystemError(StepInstall,
			fmt.Sprintf("install finished without producing %s", strings.Join(absent, ", ")), nil)
	}

	return OutcomeProvisioned, nil
}

// buildVariant runs configure, make and make install for one precision variant.
func (p *Provisioner) buildVariant(ctx context.Context, t *tracker, v Variant, srcDir string) error {
	args := []string{"--with-pic", "--enable-static", "--prefix=" + p.opts.OutDir}
	args = append(args, v.ConfigureFlags...)

	var env []string
	if p.opts.Configure != nil {
		extraArgs, extraEnv, err := p.opts.Configure(ctx, v)
		if err != nil {
			return newError(ErrorClassConfig, StepConfigure,
				fmt.Sprintf("configure hook failed for %s precision", v.Name), err)
		}
		args = append(args, extraArgs...)
		env = extraEnv
	}

	commands := []Command{
		{Name: "./configure", Args: args, Dir: srcDir, Env: env, Step: StepConfigure},
		{Name: "make", Args: []string{"-j" + strconv.Itoa(p.jobs())}, Dir: srcDir, Env: env, Step: StepBuild},
		{Name: "make", Args: []string{"install"}, Dir: srcDir, Env: env, Step: StepInstall},
	}

	for _, c := range commands {
		err := t.step(ctx, c.Step, func(ctx context.Context) (string, error) {
			return v.Name + ": " + c.String(), p.runner.Run(ctx, c)
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// jobs returns the make parallelism, defaulting to the host CPU count.
func (p *Provisioner) jobs() int {
	if p.opts.Jobs > 0 {
		return p.opts.Jobs
	}
	return runtime.NumCPU()
}
