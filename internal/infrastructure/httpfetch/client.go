// Package httpfetch performs GET requests with fixed headers, a timeout and per-host pacing.
package httpfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"NewsIngest/internal/crawlerr"
	"NewsIngest/internal/ports"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	defaultAccept    = "text/html,application/xhtml+xml,application/xml;q=0.9,application/rss+xml,application/atom+xml,image/*;q=0.8,*/*;q=0.5"
	maxTextBytes     = 10 << 20
	maxBinaryBytes   = 20 << 20
)

// Options configures the client.
type Options struct {
	Timeout           time.Duration
	UserAgent         string
	RequestsPerSecond float64
	// MaxBinaryBytes caps Binary downloads; larger bodies fail instead of being truncated.
	MaxBinaryBytes int64
}

// Client implements ports.Fetcher over net/http.
type Client struct {
	http    *http.Client
	timeout time.Duration
	headers http.Header
	rps     float64
	maxBin  int64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

var _ ports.Fetcher = (*Client)(nil)

// New builds a client; a nil httpClient gets a default transport.
func New(httpClient *http.Client, opts Options) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.MaxBinaryBytes <= 0 {
		opts.MaxBinaryBytes = maxBinaryBytes
	}

	headers := http.Header{}
	headers.Set("User-Agent", opts.UserAgent)
	headers.Set("Accept", defaultAccept)
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Pragma", "no-cache")

	return &Client{
		http:     httpClient,
		timeout:  opts.Timeout,
		headers:  headers,
		rps:      opts.RequestsPerSecond,
		maxBin:   opts.MaxBinaryBytes,
		limiters: map[string]*rate.Limiter{},
	}
}

// Text fetches rawURL and returns the body as a string.
func (c *Client) Text(ctx context.Context, rawURL string) (string, error) {
	body, err := c.read(ctx, rawURL, maxTextBytes)
	if err != nil {
		return "", err
	}
	if len(body) > maxTextBytes {
		body = body[:maxTextBytes]
	}
	return string(body), nil
}

// Binary fetches rawURL and returns the raw bytes. Bodies over the configured cap are rejected.
func (c *Client) Binary(ctx context.Context, rawURL string) ([]byte, error) {
	body, err := c.read(ctx, rawURL, c.maxBin)
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > c.maxBin {
		return nil, crawlerr.Network("get "+rawURL, fmt.Errorf("body exceeds %d bytes", c.maxBin))
	}
	return body, nil
}

// Stream returns the open body; the timeout stays armed until the caller closes it.
func (c *Client) Stream(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	resp, err := c.do(ctx, rawURL)
	if err != nil {
		cancel()
		return nil, err
	}
	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}

// read returns at most limit+1 bytes so callers can tell an exact fit from an overflow.
func (c *Client) read(ctx context.Context, rawURL string, limit int64) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.do(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, crawlerr.Network("read "+rawURL, err)
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, rawURL string) (*http.Response, error) {
	if err := c.wait(ctx, rawURL); err != nil {
		return nil, crawlerr.Network("wait "+rawURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, crawlerr.Network("build request", err)
	}
	for key, values := range c.headers {
		req.Header[key] = values
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, crawlerr.Network("get "+rawURL, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		_ = resp.Body.Close()
		return nil, crawlerr.Network("get "+rawURL,
			fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(snippet))))
	}
	return resp, nil
}

// wait paces requests per host when a rate is configured.
func (c *Client) wait(ctx context.Context, rawURL string) error {
	if c.rps <= 0 {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	host := strings.ToLower(u.Hostname())

	c.mu.Lock()
	limiter, ok := c.limiters[host]
	if !ok {
		burst := int(c.rps)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(c.rps), burst)
		c.limiters[host] = limiter
	}
	c.mu.Unlock()

	return limiter.Wait(ctx)
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}
