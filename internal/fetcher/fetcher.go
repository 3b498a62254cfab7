// Package fetcher loads invoice documents from local paths, HTTP(S) URLs
// and FTP URLs.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/invoice-cli/internal/config"
)

// Fetcher downloads a remote document.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// ErrTooLarge is returned when a document exceeds the configured size limit.
var ErrTooLarge = eris.New("fetcher: document exceeds size limit")

// Loader resolves a source string to document bytes.
type Loader struct {
	http     Fetcher
	ftp      Fetcher
	maxBytes int64
}

// NewLoader creates a Loader from configuration.
func NewLoader(cfg config.FetchConfig) *Loader {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	maxMB := cfg.MaxSizeMB
	if maxMB <= 0 {
		maxMB = 25
	}
	return &Loader{
		http: NewHTTPFetcher(HTTPOptions{
			UserAgent:  cfg.UserAgent,
			Timeout:    timeout,
			MaxRetries: cfg.MaxRetries,
		}),
		ftp:      NewFTPFetcher(FTPOptions{Timeout: timeout}),
		maxBytes: int64(maxMB) << 20,
	}
}

// NewLoaderWith creates a Loader over explicit fetchers.
func NewLoaderWith(httpFetcher, ftpFetcher Fetcher, maxBytes int64) *Loader {
	return &Loader{http: httpFetcher, ftp: ftpFetcher, maxBytes: maxBytes}
}

// Load reads source, which is a local path or an http, https or ftp URL. It
// returns the document's base name and contents.
func (l *Loader) Load(ctx context.Context, source string) (string, []byte, error) {
	u, err := url.Parse(source)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		return l.loadFile(source)
	}

	var f Fetcher
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		f = l.http
	case "ftp":
		f = l.ftp
	case "file":
		return l.loadFile(u.Path)
	default:
		return "", nil, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}

	body, err := f.Download(ctx, source)
	if err != nil {
		return "", nil, eris.Wrapf(err, "fetcher: download %s", source)
	}
	defer body.Close() //nolint:errcheck

	data, err := l.readLimited(body)
	if err != nil {
		return "", nil, eris.Wrapf(err, "fetcher: read %s", source)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		name = u.Host
	}
	return name, data, nil
}

func (l *Loader) loadFile(p string) (string, []byte, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", nil, eris.Wrapf(err, "fetcher: open %s", p)
	}
	defer f.Close() //nolint:errcheck

	data, err := l.readLimited(f)
	if err != nil {
		return "", nil, eris.Wrapf(err, "fetcher: read %s", p)
	}
	return filepath.Base(p), data, nil
}

func (l *Loader) readLimited(r io.Reader) ([]byte, error) {
	if l.maxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > l.maxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}
