package provision

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/openfroyo/fftwprov/pkg/fetch"
)

const testVersion = "fftw-3.3.6-pl1"

var tarball = []byte("fixture tarball bytes")

func unixOptions(t *testing.T, url string) Options {
	t.Helper()
	return Options{
		OutDir:   t.TempDir(),
		Platform: PlatformUnix,
		Target:   "x86_64-unknown-linux-gnu",
		Version:  testVersion,
		Jobs:     4,
		Unix: UnixSource{
			URL:      url,
			Checksum: Checksum{Algorithm: AlgorithmMD5, Hex: md5Hex(tarball)},
		},
	}
}

func TestEnsureUnixFromHTTPFixture(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/"+testVersion+".tar.gz" {
			http.NotFound(w, r)
			return
		}
		w.Write(tarball)
	}))
	defer server.Close()

	opts := unixOptions(t, server.URL+"/"+testVersion+".tar.gz")
	runner := &fakeRunner{version: testVersion, prefix: opts.OutDir}
	p := New(opts, Dependencies{Runner: runner, Fetcher: fetch.NewDefaultRegistry(fetch.Options{})})

	outcome, err := p.EnsureUnix(context.Background())
	if err != nil {
		t.Fatalf("EnsureUnix() error = %v", err)
	}
	if outcome != OutcomeProvisioned {
		t.Errorf("outcome = %s, want provisioned", outcome)
	}

	for _, lib := range []string{"libfftw3.a", "libfftw3f.a"} {
		if _, err := os.Stat(filepath.Join(opts.OutDir, "lib", lib)); err != nil {
			t.Errorf("expected %s: %v", lib, err)
		}
	}

	saved, err := os.ReadFile(filepath.Join(opts.OutDir, testVersion+".tar.gz"))
	if err != nil {
		t.Fatalf("archive not persisted: %v", err)
	}
	if string(saved) != string(tarball) {
		t.Error("persisted archive differs from payload")
	}

	srcDir := filepath.Join(opts.OutDir, testVersion)
	prefix := "--prefix=" + opts.OutDir
	want := []string{
		"tar xf " + filepath.Join(opts.OutDir, testVersion+".tar.gz"),
		"./configure --with-pic --enable-static " + prefix + " --enable-single",
		"make -j4",
		"make install",
		"./configure --with-pic --enable-static " + prefix,
		"make -j4",
		"make install",
	}
	if got := runner.names(); !reflect.DeepEqual(got, want) {
		t.Errorf("commands =\n%s\nwant\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
	for _, c := range runner.commands[1:] {
		if c.Dir != srcDir {
			t.Errorf("%s ran in %s, want %s", c, c.Dir, srcDir)
		}
	}

	var buf strings.Builder
	if err := p.Emit(&buf, FormatCargo); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "cargo:rustc-link-lib=static=fftw3\n") ||
		!strings.Contains(buf.String(), "cargo:rustc-link-lib=static=fftw3f\n") {
		t.Errorf("directives = %q", buf.String())
	}

	// A second pass finds the artifacts and touches neither network nor tools.
	before := hits.Load()
	outcome, err = p.EnsureUnix(context.Background())
	if err != nil {
		t.Fatalf("second EnsureUnix() error = %v", err)
	}
	if outcome != OutcomePresent {
		t.Errorf("second outcome = %s, want present", outcome)
	}
	if hits.Load() != before {
		t.Error("second pass fetched the archive")
	}
	if len(runner.commands) != len(want) {
		t.Error("second pass ran commands")
	}
}

func TestEnsureUnixChecksumMismatch(t *testing.T) {
	opts := unixOptions(t, "http://mirror.test/fftw.tar.gz")
	fetcher := &fakeFetcher{payloads: map[string][]byte{opts.Unix.URL: []byte("tampered")}}
	runner := &fakeRunner{version: testVersion, prefix: opts.OutDir}
	p := New(opts, Dependencies{Runner: runner, Fetcher: fetcher})

	_, err := p.EnsureUnix(context.Background())
	if !IsIntegrity(err) {
		t.Fatalf("expected integrity error, got %v", err)
	}
	if StepOf(err) != StepVerify {
		t.Errorf("step = %s", StepOf(err))
	}
	msg := err.Error()
	if !strings.Contains(msg, opts.Unix.Checksum.Hex) || !strings.Contains(msg, md5Hex([]byte("tampered"))) {
		t.Errorf("error should name both digests: %s", msg)
	}

	if len(runner.commands) != 0 {
		t.Errorf("commands ran after mismatch: %v", runner.names())
	}
	entries, _ := os.ReadDir(opts.OutDir)
	if len(entries) != 0 {
		t.Errorf("output directory written after mismatch: %d entries", len(entries))
	}
}

func TestEnsureUnixHTTPStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	opts := unixOptions(t, server.URL+"/missing.tar.gz")
	runner := &fakeRunner{version: testVersion, prefix: opts.OutDir}
	p := New(opts, Dependencies{Runner: runner, Fetcher: fetch.NewDefaultRegistry(fetch.Options{})})

	_, err := p.EnsureUnix(context.Background())
	if !IsNetwork(err) {
		t.Fatalf("expected network error, got %v", err)
	}

	var pe *Error
	if !errors.As(err, &pe) || pe.Details["status_code"] != http.StatusNotFound {
		t.Errorf("expected status_code detail, got %+v", pe)
	}
	var se *fetch.StatusError
	if !errors.As(err, &se) {
		t.Error("expected wrapped *fetch.StatusError")
	}
	if len(runner.commands) != 0 {
		t.Error("commands ran after failed download")
	}
}

func TestEnsureUnixFailurePropagation(t *testing.T) {
	tests := []struct {
		failStep string
		wantRuns int
		class    ErrorClass
	}{
		{failStep: StepExtract, wantRuns: 1, class: ErrorClassExit},
		{failStep: StepConfigure, wantRuns: 2, class: ErrorClassExit},
		{failStep: StepBuild, wantRuns: 3, class: ErrorClassExit},
		{failStep: StepInstall, wantRuns: 4, class: ErrorClassExit},
	}

	for _, tt := range tests {
		t.Run(tt.failStep, func(t *testing.T) {
			opts := unixOptions(t, "http://mirror.test/fftw.tar.gz")
			fetcher := &fakeFetcher{payloads: map[string][]byte{opts.Unix.URL: tarball}}
			runner := &fakeRunner{version: testVersion, prefix: opts.OutDir, failStep: tt.failStep}
			p := New(opts, Dependencies{Runner: runner, Fetcher: fetcher})

			_, err := p.EnsureUnix(context.Background())
			if ClassOf(err) != tt.class {
				t.Fatalf("class = %s, want %s (err %v)", ClassOf(err), tt.class, err)
			}
			if !IsSubprocess(err) {
				t.Error("expected subprocess error")
			}
			if StepOf(err) != tt.failStep {
				t.Errorf("step = %s, want %s", StepOf(err), tt.failStep)
			}
			if len(runner.commands) != tt.wantRuns {
				t.Errorf("ran %d commands, want %d: %v", len(runner.commands), tt.wantRuns, runner.names())
			}
		})
	}
}

func TestEnsureUnixSpawnFailure(t *testing.T) {
	opts := unixOptions(t, "http://mirror.test/fftw.tar.gz")
	fetcher := &fakeFetcher{payloads: map[string][]byte{opts.Unix.URL: tarball}}
	runner := &fakeRunner{
		version:  testVersion,
		prefix:   opts.OutDir,
		failStep: StepConfigure,
		failErr:  newError(ErrorClassSpawn, StepConfigure, "failed to execute `./configure`", os.ErrNotExist),
	}
	p := New(opts, Dependencies{Runner: runner, Fetcher: fetcher})

	_, err := p.EnsureUnix(context.Background())
	if ClassOf(err) != ErrorClassSpawn {
		t.Fatalf("expected spawn error, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Error("expected wrapped cause")
	}
}

func TestEnsureUnixConfigureHook(t *testing.T) {
	opts := unixOptions(t, "http://mirror.test/fftw.tar.gz")
	opts.Configure = func(_ context.Context, v Variant) ([]string, []string, error) {
		return []string{"--enable-sse2"}, []string{"CFLAGS=-O3 -D" + strings.ToUpper(v.Name)}, nil
	}
	fetcher := &fakeFetcher{payloads: map[string][]byte{opts.Unix.URL: tarball}}
	runner := &fakeRunner{version: testVersion, prefix: opts.OutDir}
	p := New(opts, Dependencies{Runner: runner, Fetcher: fetcher})

	if _, err := p.EnsureUnix(context.Background()); err != nil {
		t.Fatalf("EnsureUnix() error = %v", err)
	}

	var configures []Command
	for _, c := range runner.commands {
		if c.Step == StepConfigure {
			configures = append(configures, c)
		}
	}
	if len(configures) != 2 {
		t.Fatalf("expected 2 configure runs, got %d", len(configures))
	}
	if last := configures[0].Args[len(configures[0].Args)-1]; last != "--enable-sse2" {
		t.Errorf("hook args not appended: %v", configures[0].Args)
	}
	if configures[0].Env[0] != "CFLAGS=-O3 -DSINGLE" || configures[1].Env[0] != "CFLAGS=-O3 -DDOUBLE" {
		t.Errorf("env = %v / %v", configures[0].Env, configures[1].Env)
	}
}

func TestEnsureUnixConfigureHookError(t *testing.T) {
	opts := unixOptions(t, "http://mirror.test/fftw.tar.gz")
	opts.Configure = func(context.Context, Variant) ([]string, []string, error) {
		return nil, nil, errors.New("recipe exploded")
	}
	fetcher := &fakeFetcher{payloads: map[string][]byte{opts.Unix.URL: tarball}}
	runner := &fakeRunner{version: testVersion, prefix: opts.OutDir}
	p := New(opts, Dependencies{Runner: runner, Fetcher: fetcher})

	_, err := p.EnsureUnix(context.Background())
	if ClassOf(err) != ErrorClassConfig || StepOf(err) != StepConfigure {
		t.Fatalf("expected config error at configure, got %v", err)
	}
	for _, c := range runner.commands {
		if c.Step == StepConfigure {
			t.Error("configure ran despite hook failure")
		}
	}
}

func TestEnsureUnixMissingInstallOutput(t *testing.T) {
	opts := unixOptions(t, "http://mirror.test/fftw.tar.gz")
	fetcher := &fakeFetcher{payloads: map[string][]byte{opts.Unix.URL: tarball}}
	// A prefix elsewhere means make install "succeeds" without producing anything.
	runner := &fakeRunner{version: testVersion, prefix: t.TempDir()}
	p := New(opts, Dependencies{Runner: runner, Fetcher: fetcher})

	_, err := p.EnsureUnix(context.Background())
	if ClassOf(err) != ErrorClassFilesystem || StepOf(err) != StepInstall {
		t.Fatalf("expected filesystem error at install, got %v", err)
	}
}

func TestEnsureUnixJobsDefault(t *testing.T) {
	opts := unixOptions(t, "https://mirror.test/"+testVersion+".tar.gz")
	opts.Jobs = 0
	runner := &fakeRunner{version: testVersion, prefix: opts.OutDir}
	fetcher := &fakeFetcher{payloads: map[string][]byte{opts.Unix.URL: tarball}}
	p := New(opts, Dependencies{Runner: runner, Fetcher: fetcher})

	if _, err := p.EnsureUnix(context.Background()); err != nil {
		t.Fatalf("EnsureUnix() error = %v", err)
	}

	want := "make -j" + strconv.Itoa(runtime.NumCPU())
	var builds int
	for _, name := range runner.names() {
		if strings.HasPrefix(name, "make -j") {
			builds++
			if name != want {
				t.Errorf("build command = %s, want %s", name, want)
			}
		}
	}
	if builds != len(Variants) {
		t.Errorf("build commands = %d, want %d", builds, len(Variants))
	}
}
