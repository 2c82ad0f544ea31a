package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"

	"github.com/lox/jwstcurves/internal/httputil"
)

// ErrNotFound is returned when a source has no file at the requested path.
var ErrNotFound = errors.New("not found")

// Source fetches files relative to a data root.
type Source interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
	Name() string
}

// NewSource picks a source for dataURL by scheme: http(s), ftp, or a local
// directory for file:// URLs and bare paths.
func NewSource(dataURL string) (Source, error) {
	u, err := url.Parse(dataURL)
	if err != nil || u.Scheme == "" {
		return NewDirSource(dataURL), nil
	}
	switch u.Scheme {
	case "http", "https":
		return NewHTTPSource(dataURL), nil
	case "ftp":
		return NewFTPSource(u), nil
	case "file":
		return NewDirSource(u.Path), nil
	}
	return nil, fmt.Errorf("unsupported data url scheme %q", u.Scheme)
}

// cleanPath rejects paths that would escape the data root.
func cleanPath(p string) (string, error) {
	c := path.Clean("/" + p)
	if c == "/" || strings.Contains(p, "..") {
		return "", fmt.Errorf("invalid data path %q", p)
	}
	return strings.TrimPrefix(c, "/"), nil
}

type HTTPSource struct {
	base       string
	client     *http.Client
	userAgent  string
	maxElapsed time.Duration
}

func NewHTTPSource(base string) *HTTPSource {
	return &HTTPSource{
		base:       strings.TrimRight(base, "/"),
		client:     httputil.NewClient(),
		userAgent:  httputil.UserAgent,
		maxElapsed: 30 * time.Second,
	}
}

func (h *HTTPSource) Name() string { return "http" }

func (h *HTTPSource) Fetch(ctx context.Context, p string) ([]byte, error) {
	clean, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	u := h.base + "/" + clean

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("User-Agent", h.userAgent)

		resp, err := h.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("fetch %s: %w", clean, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(fmt.Errorf("fetch %s: %w", clean, ErrNotFound))
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden ||
			resp.StatusCode == http.StatusUnauthorized || resp.StatusCode >= 500:
			return fmt.Errorf("fetch %s: status %d", clean, resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("fetch %s: status %d: %s", clean, resp.StatusCode, string(b)))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read body: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = h.maxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

type DirSource struct {
	root string
}

func NewDirSource(root string) *DirSource {
	return &DirSource{root: root}
}

func (d *DirSource) Name() string { return "dir" }

func (d *DirSource) Fetch(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filepath.Join(d.root, filepath.FromSlash(clean)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", clean, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", clean, err)
	}
	return b, nil
}

// FTPSource reads files from an FTP server, one connection per fetch.
type FTPSource struct {
	addr     string
	user     string
	password string
	root     string
	timeout  time.Duration
}

func NewFTPSource(u *url.URL) *FTPSource {
	s := &FTPSource{
		addr:     u.Host,
		user:     "anonymous",
		password: "anonymous",
		root:     u.Path,
		timeout:  30 * time.Second,
	}
	if u.Port() == "" {
		s.addr = u.Hostname() + ":21"
	}
	if u.User != nil {
		s.user = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			s.password = pw
		}
	}
	return s
}

func (f *FTPSource) Name() string { return "ftp" }

func (f *FTPSource) Fetch(ctx context.Context, p string) ([]byte, error) {
	clean, err := cleanPath(p)
	if err != nil {
		return nil, err
	}

	conn, err := ftp.Dial(f.addr, ftp.DialWithTimeout(f.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login(f.user, f.password); err != nil {
		return nil, fmt.Errorf("ftp login: %w", err)
	}

	resp, err := conn.Retr(path.Join(f.root, clean))
	if err != nil {
		var tpErr *textproto.Error
		if errors.As(err, &tpErr) && tpErr.Code == 550 {
			return nil, fmt.Errorf("ftp retr %s: %w", clean, ErrNotFound)
		}
		return nil, fmt.Errorf("ftp retr %s: %w", clean, err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("ftp read: %w", err)
	}
	return data, nil
}
