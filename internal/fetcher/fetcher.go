// Package fetcher downloads and parses the bulk datasets behind the wine
// reference catalog: CSV and XLSX files served over HTTP or FTP, sometimes
// inside a ZIP archive. Downloads are rate limited per host and support
// conditional requests so an unchanged dataset is never re-imported.
package fetcher

import (
	"context"
	"io"
)

// streamRowBuffer sizes the row channels of the CSV and XLSX streamers.
const streamRowBuffer = 64

// Conditional carries the HTTP validators from a previous download. Zero
// values mean no previous download.
type Conditional struct {
	ETag         string
	LastModified string
}

// IsZero reports whether no validators are set.
func (c Conditional) IsZero() bool {
	return c.ETag == "" && c.LastModified == ""
}

// Fetcher downloads remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path.
	// Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)

	// DownloadIfChanged fetches the URL only if it changed since the given
	// validators. When unchanged, body is nil and changed is false. The
	// returned Conditional holds the freshest validators known either way.
	DownloadIfChanged(ctx context.Context, url string, cond Conditional) (body io.ReadCloser, fresh Conditional, changed bool, err error)
}
