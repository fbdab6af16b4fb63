// Package dldclient is the authenticated gateway to the land-department open
// data API: credential exchange, bearer injection, request pacing and the
// single 401 retry live here so callers only see typed results.
package dldclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"marketpulse/internal/platform/config"
	perr "marketpulse/internal/platform/errors"
	"marketpulse/internal/platform/logger"
	"marketpulse/internal/platform/metrics"
	"marketpulse/internal/platform/ratelimit"
)

// Config carries everything needed to talk to the upstream
type Config struct {
	BaseURL     string
	AuthURL     string
	APIKey      string
	APISecret   string
	MinInterval time.Duration
	Timeout     time.Duration
	PageSize    int
}

// ConfigFromEnv reads the DLD_ env block. Credentials are required; the rest
// has defaults.
func ConfigFromEnv(cfg config.Conf) Config {
	c := cfg.Prefix("DLD_")
	return Config{
		BaseURL:     c.MustURL("BASE_URL").String(),
		AuthURL:     c.MustURL("AUTH_URL").String(),
		APIKey:      c.MustString("API_KEY"),
		APISecret:   c.MustString("API_SECRET"),
		MinInterval: c.MayDuration("MIN_INTERVAL", 500*time.Millisecond),
		Timeout:     c.MayDuration("TIMEOUT", 30*time.Second),
		PageSize:    c.MayInt("PAGE_SIZE", 200),
	}
}

// Client is the rate-limited, token-refreshing HTTP gateway
type Client struct {
	httpc    *http.Client
	base     *url.URL
	tokens   *TokenManager
	limiter  *ratelimit.Limiter
	pageSize int
	log      logger.Logger
}

// New builds a Client from config. The BaseURL must be absolute; Must* in
// ConfigFromEnv already guarantees that for env-driven construction.
func New(cfg Config, log logger.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || !base.IsAbs() {
		return nil, perr.Newf(perr.ErrorCodeConfiguration, "invalid base URL %q", cfg.BaseURL)
	}
	httpc := &http.Client{Timeout: cfg.Timeout}
	l := log.With().Str("component", "dldclient").Logger()
	return &Client{
		httpc:    httpc,
		base:     base,
		tokens:   NewTokenManager(httpc, cfg.AuthURL, cfg.APIKey, cfg.APISecret, l),
		limiter:  ratelimit.New(cfg.MinInterval),
		pageSize: cfg.PageSize,
		log:      l,
	}, nil
}

// getJSON performs one paced, authenticated GET and decodes the body into dst.
// A 401 invalidates the token and retries exactly once with a fresh one; a
// second 401 surfaces as an auth failure. Every other non-2xx is an upstream
// error with no retry.
func (c *Client) getJSON(ctx context.Context, endpoint string, query url.Values, dst any) error {
	if err := c.limiter.Acquire(ctx); err != nil {
		return perr.Wrap(err, perr.ErrorCodeUnavailable, "rate limit wait aborted")
	}

	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return perr.WithOp(err, endpoint)
	}

	status, err := c.do(ctx, endpoint, query, tok, dst)
	if err == nil && status != http.StatusUnauthorized {
		return nil
	}
	if status != http.StatusUnauthorized {
		return err
	}

	// token rejected upstream: drop it and retry once with a fresh one
	c.tokens.Invalidate(tok)
	c.log.Warn().Str("endpoint", endpoint).Msg("token rejected, refreshing and retrying")

	tok, err = c.tokens.Token(ctx)
	if err != nil {
		return perr.WithOp(err, endpoint)
	}
	status, err = c.do(ctx, endpoint, query, tok, dst)
	if status == http.StatusUnauthorized {
		return perr.Newf(perr.ErrorCodeAuthFailed, "endpoint %s rejected a fresh token", endpoint)
	}
	return err
}

// do issues the request and reports the HTTP status alongside any error so
// the caller can distinguish the retryable 401 case
func (c *Client) do(ctx context.Context, endpoint string, query url.Values, tok string, dst any) (int, error) {
	u := *c.base
	u.Path, _ = url.JoinPath(u.Path, endpoint)
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, perr.Wrap(err, perr.ErrorCodeUpstream, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(endpoint, "transport_error").Inc()
		return 0, perr.Wrapf(err, perr.ErrorCodeUpstream, "request to %s failed", endpoint)
	}
	defer resp.Body.Close()

	metrics.UpstreamRequests.WithLabelValues(endpoint, statusClass(resp.StatusCode)).Inc()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return resp.StatusCode, perr.Newf(perr.ErrorCodeTooManyRequests, "endpoint %s throttled", endpoint)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return resp.StatusCode, perr.Newf(perr.ErrorCodeUpstream, "endpoint %s returned %d", endpoint, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return resp.StatusCode, perr.Wrapf(err, perr.ErrorCodeUpstream, "decode %s response", endpoint)
	}
	return resp.StatusCode, nil
}

// getAllPages walks the paged listing endpoint until a short page
func (c *Client) getAllPages(ctx context.Context, endpoint string, query url.Values) ([]map[string]any, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("page_size", strconv.Itoa(c.pageSize))

	var all []map[string]any
	for page := 1; ; page++ {
		query.Set("page", strconv.Itoa(page))

		var body pageResponse
		if err := c.getJSON(ctx, endpoint, query, &body); err != nil {
			return nil, err
		}
		all = append(all, body.Data...)
		if len(body.Data) < c.pageSize {
			return all, nil
		}
		if page >= maxPages {
			return all, perr.Newf(perr.ErrorCodeUpstream, "endpoint %s exceeded %d pages", endpoint, maxPages)
		}
	}
}

// maxPages caps pagination so a broken upstream cursor cannot loop forever
const maxPages = 500

func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}
