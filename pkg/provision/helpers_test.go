package provision

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"encoding/json"
	"sync"
	"testing"

	"github.com/openfroyo/fftwprov/pkg/telemetry"
)

// fakeRunner records commands and simulates the files the real tools produce.
type fakeRunner struct {
	mu       sync.Mutex
	commands []Command
	failStep string
	failErr  error
	version  string
	prefix   string
}

func (r *fakeRunner) Run(_ context.Context, c Command) error {
	r.mu.Lock()
	r.commands = append(r.commands, c)
	r.mu.Unlock()

	if r.failStep != "" && c.Step == r.failStep {
		if r.failErr != nil {
			return r.failErr
		}
		return newError(ErrorClassExit, c.Step, fmt.Sprintf("`%s` failed: exit status 2", c), nil).
			WithDetail("exit_code", 2)
	}

	switch {
	case c.Name == "tar":
		return os.MkdirAll(filepath.Join(c.Dir, r.version), 0755)
	case c.Name == "make" && len(c.Args) == 1 && c.Args[0] == "install":
		// The library installed is the one the latest configure selected.
		lib := "libfftw3.a"
		for _, prev := range r.commands {
			if prev.Step == StepConfigure {
				lib = "libfftw3.a"
				if hasArg(prev.Args, "--enable-single") {
					lib = "libfftw3f.a"
				}
			}
		}
		dir := filepath.Join(r.prefix, "lib")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(dir, lib), []byte("!<arch>\n"), 0644)
	case c.Step == StepLibrarian:
		for _, a := range c.Args {
			if out, ok := strings.CutPrefix(a, "/OUT:"); ok {
				return os.WriteFile(filepath.Join(c.Dir, out), []byte("import"), 0644)
			}
		}
	}
	return nil
}

func (r *fakeRunner) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.commands))
	for i, c := range r.commands {
		out[i] = c.String()
	}
	return out
}

func hasArg(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}

// fakeFetcher serves fixed payloads by URL and counts calls.
type fakeFetcher struct {
	mu       sync.Mutex
	payloads map[string][]byte
	err      error
	calls    []string
}

func (f *fakeFetcher) Open(_ context.Context, raw string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, raw)
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.payloads[raw]
	if !ok {
		return nil, fmt.Errorf("no fixture for %s", raw)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// windowsZip builds an archive holding the DLL/DEF pairs, minus any skipped entry.
func windowsZip(t *testing.T, skip ...string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range WindowsLibraries {
		for _, ext := range []string{"dll", "def"} {
			entry := "lib" + name + "." + ext
			if hasArg(skip, entry) {
				continue
			}
			w, err := zw.Create(entry)
			if err != nil {
				t.Fatal(err)
			}
			fmt.Fprintf(w, "%s contents", entry)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// captureLogs routes the provisioner's logs into a buffer as JSON lines.
func captureLogs(p *Provisioner) *bytes.Buffer {
	var buf bytes.Buffer
	cfg := telemetry.LoggingConfig{Level: "debug", Format: "json"}
	p.log = telemetry.NewLoggerWithWriter(cfg, &buf).NewComponentLogger("provision")
	return &buf
}

func logEntries(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}
