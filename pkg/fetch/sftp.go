package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SFTPFetcher downloads from an SSH mirror.
type SFTPFetcher struct {
	config SSHConfig
}

// NewSFTPFetcher creates an sftp fetcher with the given SSH settings.
func NewSFTPFetcher(cfg SSHConfig) *SFTPFetcher {
	if cfg.AuthMethod == "" {
		def := DefaultSSHConfig()
		cfg.AuthMethod = def.AuthMethod
		if cfg.KnownHostsPath == "" {
			cfg.KnownHostsPath = def.KnownHostsPath
		}
	}
	if cfg.ConnectionTimeout == 0 {
		cfg.ConnectionTimeout = DefaultSSHConfig().ConnectionTimeout
	}
	return &SFTPFetcher{config: cfg}
}

// Fetch dials the URL host, opens an SFTP session and opens the URL path.
func (f *SFTPFetcher) Fetch(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	cfg := f.config
	if u.User != nil {
		cfg.User = u.User.Username()
		if p, ok := u.User.Password(); ok {
			cfg.AuthMethod = AuthMethodPassword
			cfg.Password = p
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, &Error{Op: "config", URL: Redact(u), Err: err}
	}

	clientConfig, err := cfg.BuildSSHClientConfig()
	if err != nil {
		return nil, &Error{Op: "config", URL: Redact(u), Err: err}
	}

	address := u.Host
	if u.Port() == "" {
		address = net.JoinHostPort(u.Hostname(), "22")
	}

	dialer := net.Dialer{Timeout: cfg.ConnectionTimeout}
	netConn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, &Error{Op: "connect", URL: Redact(u), Err: err}
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, address, clientConfig)
	if err != nil {
		_ = netConn.Close()
		return nil, &Error{Op: "handshake", URL: Redact(u), Err: err}
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		_ = client.Close()
		return nil, &Error{Op: "sftp-init", URL: Redact(u), Err: fmt.Errorf("failed to create SFTP client: %w", err)}
	}

	rc, err := openRemote(sftpClient, u)
	if err != nil {
		_ = sftpClient.Close()
		_ = client.Close()
		return nil, err
	}

	return &sftpReader{ReadCloser: rc, closers: []io.Closer{sftpClient, client}}, nil
}

// openRemote opens the URL path on an established SFTP session.
func openRemote(c *sftp.Client, u *url.URL) (io.ReadCloser, error) {
	file, err := c.Open(u.Path)
	if err != nil {
		return nil, &Error{Op: "open", URL: Redact(u), Err: err}
	}
	return file, nil
}

type sftpReader struct {
	io.ReadCloser
	closers []io.Closer
}

func (r *sftpReader) Close() error {
	errs := []error{r.ReadCloser.Close()}
	for _, c := range r.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
