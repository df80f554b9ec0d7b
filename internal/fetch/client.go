package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/curator/metadata-resolver/internal/metrics"
	"github.com/curator/metadata-resolver/internal/resolver"
)

// RenderedFetcher executes a full browser fetch. Used once per URL after the
// identity pool is exhausted against a bot wall.
type RenderedFetcher interface {
	Render(ctx context.Context, url string, identity Identity) (resolver.Page, error)
}

// Config controls Client behavior.
type Config struct {
	// Timeout bounds each individual page fetch attempt.
	Timeout time.Duration
	// BackoffBase and BackoffMax shape the linear inter-attempt delay.
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// Client implements resolver.PageFetcher using Colly with identity rotation.
// Access denials rotate to the next identity with progressive backoff; the
// retry budget equals the identity pool size.
type Client struct {
	cfg      Config
	rotator  *Rotator
	backoff  LinearBackoff
	detector *WallDetector
	rendered RenderedFetcher
	base     *colly.Collector
	logger   *zap.Logger
}

// New builds a Client. rendered may be nil to disable headless escalation.
func New(cfg Config, rotator *Rotator, rendered RenderedFetcher, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if rotator == nil {
		rotator = NewRotator(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())

	return &Client{
		cfg:      cfg,
		rotator:  rotator,
		backoff:  NewLinearBackoff(cfg.BackoffBase, cfg.BackoffMax),
		detector: NewWallDetector(0),
		rendered: rendered,
		base:     c,
		logger:   logger,
	}
}

// FetchPage fetches the URL, rotating identities on access denial or
// transient failure until the pool is exhausted. When every identity was
// blocked and a rendered fetcher is configured, one headless pass is made
// before giving up.
func (c *Client) FetchPage(ctx context.Context, url string) (resolver.Page, error) {
	var (
		lastErr    error
		lastStatus int
		lastBody   []byte
	)

	attempts := c.rotator.Size()
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			metrics.ObserveIdentityRotation()
			if err := c.backoff.Sleep(ctx, attempt-1); err != nil {
				return resolver.Page{}, err
			}
		}

		identity := c.rotator.Next()
		page, err := c.fetchOnce(ctx, url, identity)
		if err == nil && !blockedStatus(page.StatusCode) {
			metrics.ObserveFetchAttempt(url, "ok")
			return page, nil
		}

		lastErr = err
		lastStatus = page.StatusCode
		lastBody = page.Body
		outcome := "error"
		if blockedStatus(page.StatusCode) {
			outcome = "blocked"
			lastErr = fmt.Errorf("fetch %s: blocked with status %d", url, page.StatusCode)
		}
		metrics.ObserveFetchAttempt(url, outcome)
		c.logger.Debug("fetch attempt failed",
			zap.String("url", url),
			zap.String("identity", identity.Name),
			zap.Int("status", page.StatusCode),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			return resolver.Page{}, fmt.Errorf("fetch %s: %w", url, ctx.Err())
		}
	}

	if c.rendered != nil && c.detector.Walled(lastStatus, lastBody) {
		metrics.ObserveRenderedFetch()
		page, err := c.rendered.Render(ctx, url, c.rotator.Next())
		if err == nil {
			metrics.ObserveFetchAttempt(url, "rendered")
			return page, nil
		}
		c.logger.Warn("rendered fetch failed", zap.String("url", url), zap.Error(err))
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("fetch %s: identities exhausted", url)
	}
	return resolver.Page{}, lastErr
}

// fetchOnce executes a single HTTP GET under one identity. Block-class
// statuses are returned as a Page with no error so the caller can classify.
func (c *Client) fetchOnce(ctx context.Context, url string, identity Identity) (resolver.Page, error) {
	var (
		result   resolver.Page
		fetchErr error
	)
	start := time.Now()

	collector := c.base.Clone()
	// Clone shares the visited-URL store; allow revisits so identity
	// rotation can retry the same URL.
	collector.AllowURLRevisit = true
	collector.UserAgent = identity.UserAgent
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(c.cfg.Timeout)
	collector.WithTransport(newHTTPTransport())

	collector.OnRequest(func(r *colly.Request) {
		for key, value := range identity.Headers {
			r.Headers.Set(key, value)
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		result = resolver.Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
			Identity:   identity.Name,
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && blockedStatus(r.StatusCode) {
			result = resolver.Page{
				URL:        url,
				StatusCode: r.StatusCode,
				Body:       append([]byte(nil), r.Body...),
				Duration:   time.Since(start),
				Identity:   identity.Name,
			}
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return resolver.Page{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if blockedStatus(result.StatusCode) {
			return result, nil
		}
		if err != nil && fetchErr == nil {
			fetchErr = err
		}
		if fetchErr != nil {
			return resolver.Page{}, fmt.Errorf("visit %s: %w", url, fetchErr)
		}
		return result, nil
	}
}

func blockedStatus(status int) bool {
	return status == http.StatusForbidden || status == http.StatusTooManyRequests
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
