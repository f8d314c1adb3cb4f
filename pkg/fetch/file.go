package fetch

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
)

// FileFetcher opens local files named by file:// URLs.
type FileFetcher struct{}

// Fetch opens the URL path.
func (FileFetcher) Fetch(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Op: "open", URL: u.String(), Err: err}
	}

	p := u.Path
	if p == "" {
		// file:relative/path
		p = u.Opaque
	}

	f, err := os.Open(filepath.FromSlash(p))
	if err != nil {
		return nil, &Error{Op: "open", URL: u.String(), Err: err}
	}
	return f, nil
}
