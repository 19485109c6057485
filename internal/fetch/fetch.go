// Package fetch renders listing pages over plain HTTP, without a browser.
// It backs the static renderer mode for server-rendered shops and for
// environments where Chrome cannot run.
package fetch

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"syscall"
	"time"

	"github.com/andybalholm/brotli"

	"prodex/internal/dom"
	"prodex/internal/types"
)

const (
	// DefaultTimeout bounds one whole request including body read.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxBodySize caps the decoded document size.
	DefaultMaxBodySize = 10 << 20

	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// Options tunes the static renderer. Zero values select the defaults.
type Options struct {
	Timeout     time.Duration
	MaxBodySize int64
	UserAgent   string
}

// Renderer fetches a URL and parses the response into a queryable page.
type Renderer struct {
	client      *http.Client
	maxBodySize int64
	userAgent   string
	logger      *slog.Logger
}

// NewRenderer builds a static renderer with its own cookie jar and
// transport. Compression is handled here so brotli responses decode too.
func NewRenderer(opts Options, logger *slog.Logger) (*Renderer, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultMaxBodySize
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableCompression:  true, // we decompress ourselves, including brotli
	}

	return &Renderer{
		client: &http.Client{
			Transport: transport,
			Jar:       jar,
			Timeout:   opts.Timeout,
		},
		maxBodySize: opts.MaxBodySize,
		userAgent:   opts.UserAgent,
		logger:      logger.With("component", "static_renderer"),
	}, nil
}

// Render fetches pageURL and returns the parsed document.
func (r *Renderer) Render(ctx context.Context, pageURL string) (dom.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &types.RenderError{URL: pageURL, Err: err}
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &types.RenderError{URL: pageURL, Err: err, Transient: isRetryable(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &types.RenderError{
			URL:       pageURL,
			Err:       fmt.Errorf("HTTP %d", resp.StatusCode),
			Transient: true,
		}
	}
	if resp.StatusCode >= 400 {
		return nil, &types.RenderError{URL: pageURL, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	reader, err := decompressReader(resp, io.LimitReader(resp.Body, r.maxBodySize))
	if err != nil {
		return nil, &types.RenderError{URL: pageURL, Err: err}
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, &types.RenderError{URL: pageURL, Err: err, Transient: true}
	}

	r.logger.Debug("page fetched",
		"url", pageURL,
		"status", resp.StatusCode,
		"size", len(body),
		"duration", time.Since(start),
	)

	page, err := dom.NewStaticPage(pageURL, string(body))
	if err != nil {
		return nil, &types.RenderError{URL: pageURL, Err: err}
	}
	return page, nil
}

// Close releases idle connections.
func (r *Renderer) Close() error {
	r.client.CloseIdleConnections()
	return nil
}

// decompressReader wraps reader with the decoder the response asks for.
func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}

// isRetryable reports whether a transport error is worth another attempt.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection reset") || strings.Contains(msg, "unexpected EOF")
}

// Session adapts a Renderer to the per-worker session surface the worker
// pool expects. The underlying HTTP client is safe to share, so every
// worker can hold a Session over the same Renderer.
type Session struct {
	r *Renderer
}

func NewSession(r *Renderer) *Session { return &Session{r: r} }

// Navigate fetches and parses the page. Static pages need no settle wait,
// so waitSeconds is ignored.
func (s *Session) Navigate(ctx context.Context, pageURL string, _ int) (dom.Page, func(), error) {
	page, err := s.r.Render(ctx, pageURL)
	if err != nil {
		return nil, nil, err
	}
	return page, func() {}, nil
}

// Recycle is a no-op: there is no per-worker process to rotate.
func (s *Session) Recycle() {}

// Close is a no-op; the shared Renderer is closed by its owner.
func (s *Session) Close() {}
