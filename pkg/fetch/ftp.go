package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"path"
	"time"

	"github.com/jlaffaye/ftp"
)

// FTPConfig holds FTP login settings. Credentials embedded in the URL take precedence.
type FTPConfig struct {
	User     string
	Password string
	Timeout  time.Duration
}

// DefaultFTPConfig returns anonymous credentials.
func DefaultFTPConfig() FTPConfig {
	return FTPConfig{
		User:     "anonymous",
		Password: "anonymous",
		Timeout:  30 * time.Second,
	}
}

// FTPFetcher retrieves a single file: connect, login, change into the URL
// directory, then RETR the file name.
type FTPFetcher struct {
	config FTPConfig
}

// NewFTPFetcher creates an FTP fetcher. Empty credentials fall back to anonymous.
func NewFTPFetcher(cfg FTPConfig) *FTPFetcher {
	def := DefaultFTPConfig()
	if cfg.User == "" {
		cfg.User = def.User
		if cfg.Password == "" {
			cfg.Password = def.Password
		}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	return &FTPFetcher{config: cfg}
}

// Fetch retrieves the file named by u.
func (f *FTPFetcher) Fetch(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	dir, name, err := splitRemotePath(u)
	if err != nil {
		return nil, &Error{Op: "parse", URL: Redact(u), Err: err}
	}

	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), "21")
	}

	user, password := f.config.User, f.config.Password
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			password = p
		}
	}

	conn, err := ftp.Dial(host,
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(f.config.Timeout),
	)
	if err != nil {
		return nil, &Error{Op: "connect", URL: Redact(u), Err: err}
	}

	if err := conn.Login(user, password); err != nil {
		_ = conn.Quit()
		return nil, &Error{Op: "login", URL: Redact(u), Err: err}
	}

	if dir != "" {
		if err := conn.ChangeDir(dir); err != nil {
			_ = conn.Quit()
			return nil, &Error{Op: "cwd", URL: Redact(u), Err: err}
		}
	}

	resp, err := conn.Retr(name)
	if err != nil {
		_ = conn.Quit()
		return nil, &Error{Op: "retr", URL: Redact(u), Err: err}
	}

	return &ftpReader{resp: resp, conn: conn}, nil
}

// ftpReader closes the data connection before ending the control session.
type ftpReader struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpReader) Read(p []byte) (int, error) {
	return r.resp.Read(p)
}

func (r *ftpReader) Close() error {
	err := r.resp.Close()
	if qerr := r.conn.Quit(); err == nil {
		err = qerr
	}
	return err
}

// splitRemotePath splits the URL path into the directory to change into and the file
// to retrieve. The leading slash is dropped so the directory is relative to the login
// directory, matching how FTP URLs are resolved.
func splitRemotePath(u *url.URL) (dir, name string, err error) {
	p := u.Path
	if len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	dir, name = path.Split(p)
	if name == "" {
		return "", "", fmt.Errorf("URL names a directory, not a file")
	}
	return path.Clean("/" + dir)[1:], name, nil
}
