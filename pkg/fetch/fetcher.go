package fetch

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/seo-audit/pkg/config"
	"github.com/Sriram-PR/seo-audit/pkg/metrics"
	"github.com/Sriram-PR/seo-audit/pkg/utils"
)

const (
	acceptHeader         = "text/html,application/xhtml+xml"
	acceptEncodingHeader = "gzip, deflate, br"
)

// Response is a fully read HTTP response. Any HTTP status yields a Response;
// only transport-level failures yield an error.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
	FinalURL    string // URL after redirects
	Header      http.Header
	Duration    time.Duration
}

// IsHTML reports whether the response carries an HTML document
func (r *Response) IsHTML() bool {
	ct := strings.ToLower(r.ContentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}

// Fetcher performs GET/HEAD requests with politeness and retry policy, using an underlying http.Client
type Fetcher struct {
	client  *http.Client
	cfg     *config.AppConfig
	limiter *RateLimiter       // optional per-host spacing
	slots   *HostSlots         // optional per-host concurrency cap
	metrics *metrics.Metrics   // optional
	log     *logrus.Entry
}

// Option customizes a Fetcher
type Option func(*Fetcher)

// WithRateLimiter spaces requests per host
func WithRateLimiter(rl *RateLimiter) Option {
	return func(f *Fetcher) { f.limiter = rl }
}

// WithHostSlots caps concurrent requests per host
func WithHostSlots(slots *HostSlots) Option {
	return func(f *Fetcher) { f.slots = slots }
}

// WithMetrics records fetch latency and retries
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

// NewFetcher creates a new Fetcher instance
func NewFetcher(client *http.Client, cfg *config.AppConfig, log *logrus.Entry, opts ...Option) *Fetcher {
	f := &Fetcher{
		client: client,
		cfg:    cfg,
		log:    log,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch issues method against rawURL and reads the (decoded, size-capped) body.
// Transient failures (network errors, 5xx, 429) are retried up to max_retries times
// with exponential backoff and jitter; when retries run out the last response is returned as-is.
func (f *Fetcher) Fetch(ctx context.Context, method, rawURL string) (*Response, error) {
	return f.do(ctx, method, rawURL, method != http.MethodHead)
}

// Probe checks a link: HEAD first, falling back to GET when HEAD is refused (403, 405) or fails server-side (5xx).
// Returns the final status code, or an error for transport failures.
func (f *Fetcher) Probe(ctx context.Context, rawURL string) (int, error) {
	resp, err := f.do(ctx, http.MethodHead, rawURL, false)
	if err != nil {
		return 0, err
	}
	status := resp.StatusCode
	if status == http.StatusMethodNotAllowed || status == http.StatusForbidden || status >= 500 {
		f.log.WithFields(logrus.Fields{"url": rawURL, "status_code": status}).Debug("HEAD refused, retrying probe with GET")
		resp, err = f.do(ctx, http.MethodGet, rawURL, false)
		if err != nil {
			return 0, err
		}
		status = resp.StatusCode
	}
	return status, nil
}

func (f *Fetcher) do(ctx context.Context, method, rawURL string, readBody bool) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid URL '%s'", utils.ErrRequestCreation, rawURL)
	}
	host := u.Host
	reqLog := f.log.WithFields(logrus.Fields{"url": rawURL, "method": method})

	if f.slots != nil {
		release, err := f.slots.Acquire(ctx, host)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	maxRetries := f.cfg.MaxRetries
	initialRetryDelay := f.cfg.InitialRetryDelay
	maxRetryDelay := f.cfg.MaxRetryDelay

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return nil, fmt.Errorf("context cancelled (%v) during retry backoff after error: %w", err, lastErr)
			}
			return nil, err
		}

		if attempt > 0 {
			delay := backoffDelay(attempt, initialRetryDelay, maxRetryDelay)
			f.metrics.IncRetries()
			reqLog.WithFields(logrus.Fields{"attempt": attempt, "max_retries": maxRetries, "delay": delay}).Warn("Retrying request...")
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, fmt.Errorf("context cancelled during retry delay: %w", ctx.Err())
			}
		}

		if err := f.limiter.Wait(ctx, host); err != nil {
			return nil, err
		}

		resp, err := f.attempt(ctx, method, rawURL, readBody)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			reqLog.WithField("attempt", attempt).Debugf("Network error: %v", err)
			lastErr = err
			continue
		}

		resLog := reqLog.WithFields(logrus.Fields{"status_code": resp.StatusCode, "attempt": attempt})
		retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		if retryable && attempt < maxRetries {
			resLog.Warn("Transient HTTP status, retrying...")
			lastErr = StatusError(resp.StatusCode)
			continue
		}
		resLog.Debug("Fetched")
		return resp, nil
	}

	reqLog.Debugf("All %d fetch attempts failed. Last error: %v", maxRetries+1, lastErr)
	if maxRetries == 0 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr)
}

type requestTimeoutKey struct{}

// WithRequestTimeout bounds every request made with the returned context to d, body read included.
// The client's own timeout still applies, so d only tightens it.
func WithRequestTimeout(ctx context.Context, d time.Duration) context.Context {
	if d <= 0 {
		return ctx
	}
	return context.WithValue(ctx, requestTimeoutKey{}, d)
}

// attempt performs a single request and fully consumes the response
func (f *Fetcher) attempt(ctx context.Context, method, rawURL string, readBody bool) (*Response, error) {
	if d, ok := ctx.Value(requestTimeoutKey{}).(time.Duration); ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrRequestCreation, err)
	}
	req.Header.Set("User-Agent", f.cfg.Scan.UserAgent)
	req.Header.Set("Accept", acceptHeader)
	if readBody {
		req.Header.Set("Accept-Encoding", acceptEncodingHeader)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		f.metrics.ObserveFetch(time.Since(start))
		return nil, err
	}
	defer resp.Body.Close()

	out := &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    rawURL,
		Header:      resp.Header,
	}
	if resp.Request != nil && resp.Request.URL != nil {
		out.FinalURL = resp.Request.URL.String()
	}

	if readBody && method != http.MethodHead {
		body, err := f.readBody(resp)
		if err != nil {
			f.metrics.ObserveFetch(time.Since(start))
			return nil, err
		}
		out.Body = body
	} else {
		// Drain a little so the connection can be reused
		_, _ = io.CopyN(io.Discard, resp.Body, 64<<10)
	}

	out.Duration = time.Since(start)
	f.metrics.ObserveFetch(out.Duration)
	return out, nil
}

func (f *Fetcher) readBody(resp *http.Response) ([]byte, error) {
	reader, err := decodedBody(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrResponseBodyRead, err)
	}
	defer reader.Close()

	limit := f.cfg.Scan.MaxBodyBytes
	if limit <= 0 {
		limit = 5 << 20
	}
	body, err := io.ReadAll(io.LimitReader(reader, limit))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrResponseBodyRead, err)
	}
	return body, nil
}

// backoffDelay computes initial * 2^(attempt-1), capped by max, with +/- 10% jitter
func backoffDelay(attempt int, initial, max time.Duration) time.Duration {
	backoff := float64(initial) * math.Pow(2, float64(attempt-1))
	delay := time.Duration(backoff)
	if delay <= 0 || (max > 0 && delay > max) {
		delay = max
	}

	var jitter time.Duration
	if delay/5 > 0 {
		jitter = time.Duration(rand.Int63n(int64(delay)/5)) - (delay / 10)
	}
	if final := delay + jitter; final > 0 {
		return final
	}
	return 0
}

// StatusError wraps an HTTP status in the matching sentinel error
func StatusError(code int) error {
	switch {
	case code >= 500:
		return fmt.Errorf("%w: status %d", utils.ErrServerHTTPError, code)
	case code >= 400:
		return fmt.Errorf("%w: status %d", utils.ErrClientHTTPError, code)
	default:
		return fmt.Errorf("%w: status %d", utils.ErrOtherHTTPError, code)
	}
}
