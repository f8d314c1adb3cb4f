package provision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/openfroyo/fftwprov/pkg/telemetry"
)

// LibrarianCandidates are the tools tried, in order, when no librarian is configured.
var LibrarianCandidates = []string{"lib.exe", "llvm-lib"}

// EnsureWindows repackages the prebuilt DLLs unless both DLLs and their import
// libraries already exist in the output directory.
func (p *Provisioner) EnsureWindows(ctx context.Context) (Outcome, error) {
	if err := p.opts.Validate(); err != nil {
		return "", err
	}
	ctx, t := p.newTracker(ctx, "")
	return p.ensureWindows(ctx, t)
}

func (p *Provisioner) ensureWindows(ctx context.Context, t *tracker) (Outcome, error) {
	outDir := p.opts.OutDir
	artifacts := Artifacts(PlatformWindows, outDir)

	present := false
	_ = t.step(ctx, StepProbe, func(context.Context) (string, error) {
		present = exists(artifacts...)
		if present {
			return "present", nil
		}
		return "absent", nil
	})
	if present {
		telemetry.FromContext(ctx).WithField("out_dir", outDir).Info("DLLs and import libraries already present")
		return OutcomePresent, nil
	}

	if err := p.gate(ctx, t); err != nil {
		return "", err
	}

	if err := p.acquireZip(ctx, t); err != nil {
		return "", err
	}

	var entries []string
	for _, name := range WindowsLibraries {
		entries = append(entries, "lib"+name+".dll", "lib"+name+".def")
	}
	archive := p.zipPath()
	err := t.step(ctx, StepExtract, func(context.Context) (string, error) {
		return strings.Join(entries, ","), extractZipEntries(archive, outDir, entries)
	})
	if err != nil {
		return "", err
	}

	err = t.step(ctx, StepLibrarian, func(ctx context.Context) (string, error) {
		return p.runLibrarian(ctx)
	})
	if err != nil {
		return "", err
	}

	if absent := missing(artifacts); len(absent) > 0 {
		return "", NewFilesystemError(StepLibrarian,
			fmt.Sprintf("librarian finished without producing %s", strings.Join(absent, ", ")), nil)
	}

	return OutcomeProvisioned, nil
}

func (p *Provisioner) zipPath() string {
	name := p.opts.Windows.ArchiveName
	if name == "" {
		name = "fftw_windows.zip"
	}
	return filepath.Join(p.opts.OutDir, name)
}

// acquireZip downloads the zip into the output directory, or reuses a cached copy.
// A configured checksum is enforced on both.
func (p *Provisioner) acquireZip(ctx context.Context, t *tracker) error {
	archive := p.zipPath()
	checksum := p.opts.Windows.Checksum
	log := telemetry.FromContext(ctx)

	if checksum.IsZero() {
		log.WithField("url", redactURL(p.opts.Windows.URL)).Warn("No checksum configured; archive contents are not verified")
	}

	var payload []byte
	cached := exists(archive)
	if cached {
		log.WithField("archive", archive).Info("Reusing cached archive")
		if checksum.IsZero() {
			return nil
		}
		data, err := os.ReadFile(archive)
		if err != nil {
			return NewFilesystemError(StepVerify, fmt.Sprintf("failed to read %s", archive), err)
		}
		payload = data
	} else {
		err := t.step(ctx, StepFetch, func(ctx context.Context) (string, error) {
			var err error
			payload, err = p.download(ctx, p.opts.Windows.URL)
			return redactURL(p.opts.Windows.URL), err
		})
		if err != nil {
			return err
		}
	}

	if !checksum.IsZero() {
		err := t.step(ctx, StepVerify, func(context.Context) (string, error) {
			return checksum.String(), p.verify(checksum, payload)
		})
		if err != nil {
			return err
		}
	}

	if cached {
		return nil
	}

	return t.step(ctx, StepPersist, func(context.Context) (string, error) {
		if err := os.MkdirAll(p.opts.OutDir, 0755); err != nil {
			return "", NewFilesystemError(StepPersist, fmt.Sprintf("failed to create %s", p.opts.OutDir), err)
		}
		if err := os.WriteFile(archive, payload, 0644); err != nil {
			return "", NewFilesystemError(StepPersist, fmt.Sprintf("failed to write %s", archive), err)
		}
		return archive, nil
	})
}

// findLibrarian resolves the librarian tool: the configured override first, then
// LibrarianCandidates through PATH.
func (p *Provisioner) findLibrarian() (string, error) {
	candidates := LibrarianCandidates
	if p.opts.Windows.Librarian != "" {
		candidates = []string{p.opts.Windows.Librarian}
	}

	for _, c := range candidates {
		if path, err := p.lookPath(c); err == nil {
			return path, nil
		}
	}

	return "", newError(ErrorClassMissingTool, StepLibrarian,
		fmt.Sprintf("no librarian found for target %q (tried %s)", p.opts.Target, strings.Join(candidates, ", ")), nil)
}

// runLibrarian synthesises an import library for every DLL/DEF pair.
func (p *Provisioner) runLibrarian(ctx context.Context) (string, error) {
	machine, err := MachineForTarget(p.opts.Target)
	if err != nil {
		return "", newError(ErrorClassMissingTool, StepLibrarian, "unsupported librarian target", err)
	}

	tool, err := p.findLibrarian()
	if err != nil {
		return "", err
	}

	for _, name := range WindowsLibraries {
		c := Command{
			Name: tool,
			Args: []string{
				"/MACHINE:" + machine,
				"/DEF:lib" + name + ".def",
				"/OUT:lib" + name + ".lib",
			},
			Dir:  p.opts.OutDir,
			Step: StepLibrarian,
		}
		if err := p.runner.Run(ctx, c); err != nil {
			return tool, err
		}
	}

	return tool + " /MACHINE:" + machine, nil
}
