package fetcher

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPOptions configures the FTP fetcher.
type FTPOptions struct {
	Timeout time.Duration
}

// FTPFetcher pulls catalog files off FTP mirrors with anonymous login.
type FTPFetcher struct {
	timeout time.Duration
}

// NewFTPFetcher creates an FTPFetcher. A zero timeout defaults to 30s.
func NewFTPFetcher(opts FTPOptions) *FTPFetcher {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &FTPFetcher{timeout: timeout}
}

// DownloadToFile retrieves ftpURL into the local file at path and reports
// bytes written. The connection lives for the duration of the call.
func (f *FTPFetcher) DownloadToFile(ctx context.Context, ftpURL string, path string) (int64, error) {
	addr, remote, err := splitFTPURL(ftpURL)
	if err != nil {
		return 0, err
	}

	zap.L().Debug("ftp: downloading",
		zap.String("addr", addr),
		zap.String("remote", remote),
		zap.String("dest", path))

	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(f.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return 0, eris.Wrapf(err, "ftp: dial %s", addr)
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login("anonymous", "anonymous@"); err != nil {
		return 0, eris.Wrap(err, "ftp: anonymous login")
	}

	resp, err := conn.Retr(remote)
	if err != nil {
		return 0, eris.Wrapf(err, "ftp: retrieve %s", remote)
	}
	defer resp.Close() //nolint:errcheck

	out, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "ftp: create local file")
	}

	n, err := io.Copy(out, resp)
	if err != nil {
		out.Close() //nolint:errcheck
		return n, eris.Wrap(err, "ftp: write local file")
	}
	if err := out.Close(); err != nil {
		return n, eris.Wrap(err, "ftp: close local file")
	}
	return n, nil
}

// splitFTPURL returns the dial address (default port 21) and remote path of
// an FTP URL.
func splitFTPURL(rawURL string) (addr, remote string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "ftp: parse url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("ftp: unsupported scheme %q", u.Scheme)
	}
	if u.Path == "" {
		return "", "", eris.Errorf("ftp: url %q has no file path", rawURL)
	}

	addr = u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "21")
	}
	return addr, u.Path, nil
}
