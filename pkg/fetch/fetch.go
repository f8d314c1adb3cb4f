// Package fetch retrieves archives from remote or local locations by URL scheme.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Fetcher opens a single resource for reading. Callers must close the returned reader.
type Fetcher interface {
	Fetch(ctx context.Context, u *url.URL) (io.ReadCloser, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, u *url.URL) (io.ReadCloser, error)

// Fetch calls f(ctx, u).
func (f FetcherFunc) Fetch(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	return f(ctx, u)
}

// ErrUnsupportedScheme is returned when no fetcher is registered for a URL scheme.
var ErrUnsupportedScheme = errors.New("unsupported URL scheme")

// Error represents a failed fetch stage.
type Error struct {
	// Op is the stage that failed (e.g. "connect", "login", "cwd", "retr", "open").
	Op string

	// URL is the resource being fetched.
	URL string

	// Err is the underlying error
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusError is returned when an HTTP server answers with a non-success status.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("failed to download %s: status %s", e.URL, e.Status)
}

// Options configures the default fetchers.
type Options struct {
	// HTTPClient is used for http and https. Defaults to a client without timeout,
	// cancellation comes from the context.
	HTTPClient *http.Client

	// FTP configures the ftp fetcher.
	FTP FTPConfig

	// SFTP configures the sftp fetcher.
	SFTP SSHConfig
}

// Registry dispatches fetches by URL scheme.
type Registry struct {
	fetchers map[string]Fetcher
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{fetchers: make(map[string]Fetcher)}
}

// NewDefaultRegistry creates a registry with http, https, ftp, sftp and file fetchers.
func NewDefaultRegistry(opts Options) *Registry {
	r := NewRegistry()

	httpFetcher := NewHTTPFetcher(opts.HTTPClient)
	r.Register("http", httpFetcher)
	r.Register("https", httpFetcher)
	r.Register("ftp", NewFTPFetcher(opts.FTP))
	r.Register("sftp", NewSFTPFetcher(opts.SFTP))
	r.Register("file", FileFetcher{})

	return r
}

// Register adds or replaces the fetcher for a scheme.
func (r *Registry) Register(scheme string, f Fetcher) {
	r.fetchers[strings.ToLower(scheme)] = f
}

// Supports reports whether a fetcher is registered for scheme.
func (r *Registry) Supports(scheme string) bool {
	_, ok := r.fetchers[strings.ToLower(scheme)]
	return ok
}

// Schemes returns the registered schemes in sorted order.
func (r *Registry) Schemes() []string {
	schemes := make([]string, 0, len(r.fetchers))
	for s := range r.fetchers {
		schemes = append(schemes, s)
	}
	sort.Strings(schemes)
	return schemes
}

// Open parses raw and opens it with the fetcher registered for its scheme.
func (r *Registry) Open(ctx context.Context, raw string) (io.ReadCloser, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &Error{Op: "parse", URL: raw, Err: err}
	}

	f, ok := r.fetchers[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, &Error{Op: "dispatch", URL: Redact(u), Err: fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)}
	}

	return f.Fetch(ctx, u)
}

// Redact returns the URL string with any password removed.
func Redact(u *url.URL) string {
	return u.Redacted()
}
