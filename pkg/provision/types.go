package provision

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Platform selects which provisioning path runs. The two paths are mutually exclusive.
type Platform string

const (
	// PlatformUnix builds static libraries from source.
	PlatformUnix Platform = "unix"

	// PlatformWindows repackages prebuilt DLLs and synthesises import libraries.
	PlatformWindows Platform = "windows"
)

// PlatformForTarget derives the platform from a target triple such as
// "x86_64-pc-windows-msvc". An empty target falls back to the host OS.
func PlatformForTarget(target string) Platform {
	if target == "" {
		if runtime.GOOS == "windows" {
			return PlatformWindows
		}
		return PlatformUnix
	}
	if strings.Contains(strings.ToLower(target), "windows") {
		return PlatformWindows
	}
	return PlatformUnix
}

// MachineForTarget maps a target triple to the librarian /MACHINE value.
func MachineForTarget(target string) (string, error) {
	arch := target
	if arch == "" {
		arch = runtime.GOARCH
	}
	if i := strings.IndexByte(arch, '-'); i >= 0 {
		arch = arch[:i]
	}

	switch strings.ToLower(arch) {
	case "x86_64", "amd64", "x64":
		return "X64", nil
	case "i386", "i586", "i686", "x86", "386":
		return "X86", nil
	case "aarch64", "arm64":
		return "ARM64", nil
	default:
		return "", fmt.Errorf("no librarian machine type for target %q", target)
	}
}

// Variant is one precision build of the library.
type Variant struct {
	// Name identifies the variant in logs and recipes ("single" or "double").
	Name string

	// Library is the link name of the produced library.
	Library string

	// ConfigureFlags are the variant-specific configure flags.
	ConfigureFlags []string
}

// Variants lists the precision builds in the order they are produced.
var Variants = []Variant{
	{Name: "single", Library: "fftw3f", ConfigureFlags: []string{"--enable-single"}},
	{Name: "double", Library: "fftw3"},
}

// WindowsLibraries are the base names of the prebuilt DLL/DEF pairs.
var WindowsLibraries = []string{"fftw3-3", "fftw3f-3"}

// ConfigureHook returns extra configure arguments and KEY=VALUE environment entries for
// a variant. It is called once per variant before configure runs.
type ConfigureHook func(ctx context.Context, variant Variant) (args []string, env []string, err error)

// UnixSource describes the source tarball used on Unix.
type UnixSource struct {
	// URL is the location of the source tarball.
	URL string

	// Checksum is the expected digest of the tarball. It must be set.
	Checksum Checksum
}

// WindowsSource describes the prebuilt zip used on Windows.
type WindowsSource struct {
	// URL is the location of the zip archive.
	URL string

	// Checksum is the expected digest of the zip. Verification is skipped when zero.
	Checksum Checksum

	// ArchiveName is the cached archive file name inside the output directory.
	ArchiveName string

	// Librarian overrides the librarian tool path.
	Librarian string
}

// Options are the explicit configuration values of a provisioning run.
type Options struct {
	// OutDir is the output directory that receives every artifact.
	OutDir string

	// Target is the target triple.
	Target string

	// Platform overrides the platform derived from Target when set.
	Platform Platform

	// Version is the library version string; it names the archive and source directory.
	Version string

	// Jobs is the make parallelism degree.
	Jobs int

	Unix    UnixSource
	Windows WindowsSource

	// Configure is an optional hook adding configure arguments per variant.
	Configure ConfigureHook

	// Strict escalates source policy warnings that have a strict variant.
	Strict bool
}

// EffectivePlatform returns the configured platform or derives it from the target.
func (o *Options) EffectivePlatform() Platform {
	if o.Platform != "" {
		return o.Platform
	}
	return PlatformForTarget(o.Target)
}

// SourceURL returns the archive URL for the effective platform.
func (o *Options) SourceURL() string {
	if o.EffectivePlatform() == PlatformWindows {
		return o.Windows.URL
	}
	return o.Unix.URL
}

// SourceChecksum returns the expected digest for the effective platform.
func (o *Options) SourceChecksum() Checksum {
	if o.EffectivePlatform() == PlatformWindows {
		return o.Windows.Checksum
	}
	return o.Unix.Checksum
}

// Validate checks the options needed by every path.
func (o *Options) Validate() error {
	if o.OutDir == "" {
		return NewConfigError("output directory is required", nil)
	}
	if !filepath.IsAbs(o.OutDir) {
		return NewConfigError(fmt.Sprintf("output directory must be absolute: %s", o.OutDir), nil)
	}

	switch o.EffectivePlatform() {
	case PlatformUnix:
		if o.Version == "" {
			return NewConfigError("library version is required", nil)
		}
		if o.Unix.URL == "" {
			return NewConfigError("unix source URL is required", nil)
		}
		if o.Unix.Checksum.IsZero() {
			return NewConfigError("unix source checksum is required", nil)
		}
	case PlatformWindows:
		if o.Windows.URL == "" {
			return NewConfigError("windows archive URL is required", nil)
		}
		if err := o.checkArchiveMachine(); err != nil {
			return err
		}
	default:
		return NewConfigError(fmt.Sprintf("unknown platform: %s", o.Platform), nil)
	}

	return nil
}

// checkArchiveMachine rejects an explicit non-x64 target when the configured zip
// carries only 64-bit DLLs. An empty target is left to the librarian step.
func (o *Options) checkArchiveMachine() error {
	if o.Target == "" || !strings.Contains(strings.ToLower(path.Base(o.Windows.URL)), "dll64") {
		return nil
	}
	machine, err := MachineForTarget(o.Target)
	if err != nil || machine == "X64" {
		return nil
	}
	return NewConfigError(fmt.Sprintf("target %s needs a %s archive but %s ships x64 DLLs only",
		o.Target, machine, redactURL(o.Windows.URL)), nil)
}

// Outcome describes what a run did.
type Outcome string

const (
	// OutcomePresent means every artifact already existed and nothing ran.
	OutcomePresent Outcome = "present"

	// OutcomeProvisioned means the pipeline ran and produced the artifacts.
	OutcomeProvisioned Outcome = "provisioned"
)

// Result is returned by a successful run.
type Result struct {
	RunID     string        `json:"run_id,omitempty"`
	Platform  Platform      `json:"platform"`
	Outcome   Outcome       `json:"outcome"`
	Artifacts []string      `json:"artifacts"`
	Duration  time.Duration `json:"duration"`
}

// Artifacts returns the absolute paths whose presence marks the output directory as done.
func Artifacts(platform Platform, outDir string) []string {
	if platform == PlatformWindows {
		paths := make([]string, 0, len(WindowsLibraries)*2)
		for _, name := range WindowsLibraries {
			paths = append(paths,
				filepath.Join(outDir, "lib"+name+".dll"),
				filepath.Join(outDir, "lib"+name+".lib"),
			)
		}
		return paths
	}

	paths := make([]string, 0, len(Variants))
	for _, v := range Variants {
		paths = append(paths, filepath.Join(outDir, "lib", "lib"+v.Library+".a"))
	}
	return paths
}
