package provision

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// extractTar expands a tarball into dir with the system tar.
func extractTar(ctx context.Context, runner Runner, archive, dir string) error {
	return runner.Run(ctx, Command{
		Name: "tar",
		Args: []string{"xf", archive},
		Dir:  dir,
		Step: StepExtract,
	})
}

// extractZipEntries copies the named entries of a zip archive into dir. Every entry
// must exist.
func extractZipEntries(archive, dir string, names []string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return NewArchiveError(StepExtract, fmt.Sprintf("failed to open %s", archive), err)
	}
	defer r.Close()

	for _, name := range names {
		entry, err := r.Open(name)
		if err != nil {
			return NewArchiveError(StepExtract, fmt.Sprintf("archive %s has no entry %s", filepath.Base(archive), name), err)
		}

		err = writeFile(filepath.Join(dir, name), entry)
		entry.Close()
		if err != nil {
			return NewFilesystemError(StepExtract, fmt.Sprintf("failed to write %s", name), err)
		}
	}

	return nil
}

func writeFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// exists reports whether every path exists.
func exists(paths ...string) bool {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

// missing returns the paths that do not exist.
func missing(paths []string) []string {
	var out []string
	for _, p := range paths {
		if !exists(p) {
			out = append(out, p)
		}
	}
	return out
}
