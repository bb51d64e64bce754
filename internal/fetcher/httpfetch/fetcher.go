// Package httpfetch implements feed.Fetcher over net/http. It performs one
// GET with the supplied headers and timeout, records the ordered redirect
// history, and keeps HTTP-level error statuses distinct from transport
// failures.
package httpfetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/amaudy/feedhq/internal/feed"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultMaxBodyBytes = 10 << 20
	maxRedirects        = 10
)

// Config controls fetcher behavior.
type Config struct {
	// MaxBodyBytes caps how much of a response body is read.
	MaxBodyBytes int64
}

// Fetcher issues single HTTP GETs with a shared pooled transport.
type Fetcher struct {
	cfg       Config
	transport http.RoundTripper
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &Fetcher{
		cfg:       cfg,
		transport: newHTTPTransport(),
	}
}

// Fetch executes one GET. HTTP error statuses come back in the result; only
// transport failures (DNS, connect, timeout, truncated body) return an
// error. Redirects are followed by the client up to maxRedirects, each hop
// recorded as the status and URL of the response that redirected.
func (f *Fetcher) Fetch(ctx context.Context, req feed.FetchRequest) (feed.FetchResult, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return feed.FetchResult{}, fmt.Errorf("build request: %w", err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	var hops []feed.RedirectHop
	client := &http.Client{
		Transport: f.transport,
		CheckRedirect: func(r *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			if r.Response != nil {
				hops = append(hops, feed.RedirectHop{
					StatusCode: r.Response.StatusCode,
					URL:        via[len(via)-1].URL.String(),
				})
			}
			return nil
		},
	}

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		return feed.FetchResult{}, fmt.Errorf("fetch %s: %w", req.URL, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		return feed.FetchResult{}, fmt.Errorf("read body of %s: %w", req.URL, err)
	}

	return feed.FetchResult{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
		History:    hops,
		Duration:   time.Since(start),
	}, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
