package source

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	apierr "accwatch/internal/errors"
)

// Fetcher obtains the raw source text containing credential pairs.
type Fetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// Option customizes HTTPFetcher creation.
type Option func(*HTTPFetcher)

// HTTPFetcher retrieves the source document over HTTP with bounded retries.
type HTTPFetcher struct {
	url         string
	userAgent   string
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	httpClient  *http.Client
}

// NewHTTPFetcher creates a fetcher for the given source URL.
func NewHTTPFetcher(url string, opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		url:         url,
		maxAttempts: 3,
		baseBackoff: time.Second,
		maxBackoff:  8 * time.Second,
		httpClient:  &http.Client{Timeout: 20 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// WithHTTPClient overrides the HTTP client used for source fetches.
func WithHTTPClient(client *http.Client) Option {
	return func(f *HTTPFetcher) {
		if client != nil {
			f.httpClient = client
		}
	}
}

// WithUserAgent sets the User-Agent header sent on fetches.
func WithUserAgent(ua string) Option {
	return func(f *HTTPFetcher) { f.userAgent = ua }
}

// WithMaxAttempts bounds the number of fetch attempts per cycle.
func WithMaxAttempts(n int) Option {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxAttempts = n
		}
	}
}

// Fetch GETs the source document, retrying retryable statuses and network
// errors with exponential backoff. A final failure is a cycle-level
// FetchError; the caller keeps its prior snapshot.
func (f *HTTPFetcher) Fetch(ctx context.Context) (string, error) {
	var lastErr error
	for attempt := 0; attempt < f.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := f.nextBackoff(attempt - 1)
			log.WithFields(log.Fields{
				"url":      f.url,
				"attempt":  attempt + 1,
				"delay_ms": delay.Milliseconds(),
			}).Debug("retrying source fetch")
			select {
			case <-ctx.Done():
				return "", &apierr.FetchError{URL: f.url, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		body, retryAfter, err := f.fetchOnce(ctx)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if retryAfter > 0 && retryAfter < f.maxBackoff {
			select {
			case <-ctx.Done():
				return "", &apierr.FetchError{URL: f.url, Err: ctx.Err()}
			case <-time.After(retryAfter):
			}
		}
		if ctx.Err() != nil {
			break
		}
	}
	return "", &apierr.FetchError{URL: f.url, Err: lastErr}
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return "", 0, err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return "", retryAfter, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", 0, err
	}
	return string(body), 0, nil
}

func (f *HTTPFetcher) nextBackoff(attempt int) time.Duration {
	base := float64(f.baseBackoff)
	max := float64(f.maxBackoff)
	dur := base * math.Pow(2, float64(attempt))
	if dur > max {
		dur = max
	}
	jitter := 0.5 + rand.Float64()
	return time.Duration(dur * jitter)
}

func parseRetryAfter(v string) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			secs = 0
		}
		return time.Duration(secs) * time.Second, true
	}
	layouts := []string{time.RFC1123, time.RFC1123Z, time.RFC850, time.ANSIC}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			d := time.Until(t)
			if d < 0 {
				d = 0
			}
			return d, true
		}
	}
	return 0, false
}
